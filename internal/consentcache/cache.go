// Package consentcache keeps a short-lived copy of consent decisions so a
// checkout visit does not re-negotiate every time. The Consent Broker stays
// authoritative; entries are an optimization and may be dropped at any time.
package consentcache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/wso2/bookstore-consent-api/internal/config"
	"github.com/wso2/bookstore-consent-api/internal/models"
)

// Key identifies a cached decision. SessionKey scopes entries to one shopper.
type Key struct {
	SessionKey string
	SubjectID  string
	TenantID   string
}

// String renders the key for storage
func (k Key) String() string {
	return fmt.Sprintf("consent:%s:%s:%s", k.SessionKey, k.TenantID, k.SubjectID)
}

// Store caches consent decisions
type Store interface {
	// Get returns the cached decision, or nil when nothing is cached
	Get(ctx context.Context, key Key) (*models.ConsentDecision, error)
	Put(ctx context.Context, key Key, decision *models.ConsentDecision) error
	Invalidate(ctx context.Context, key Key) error
}

// New creates the store selected by cfg.Backend
func New(cfg config.CacheConfig, logger *logrus.Logger) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(cfg.TTL), nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		logger.WithField("addr", cfg.RedisAddr).Info("Using Redis consent cache")
		return NewRedisStore(client, cfg.TTL), nil
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", cfg.Backend)
	}
}

// entryTTL bounds the storage TTL by the decision's own expiry
func entryTTL(decision *models.ConsentDecision, ttl time.Duration, now time.Time) time.Duration {
	if decision.ExpiresAt != nil {
		if untilExpiry := decision.ExpiresAt.Sub(now); untilExpiry < ttl || ttl <= 0 {
			return untilExpiry
		}
	}
	return ttl
}

package negotiator

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wso2/bookstore-consent-api/internal/models"
)

// State of a negotiation session
type State string

const (
	StateNegotiating State = "negotiating"
	StateDecided     State = "decided"
	StateAbandoned   State = "abandoned"
	StateExpired     State = "expired"
	StateCancelled   State = "cancelled"
)

// Session is one negotiation. It owns the surface and closes it on exit.
type Session struct {
	ID string

	negotiator *Negotiator
	surface    Surface
	callback   func(Result)
	initType   string
	token      string
	expiresAt  time.Time
	logger     *logrus.Entry

	mu       sync.Mutex
	state    State
	result   *Result
	posts    int
	done     chan struct{}
	decide   sync.Once
	finished sync.Once
}

func newSession(n *Negotiator, surface Surface, callback func(Result), initType string, issued *models.IssuedToken) *Session {
	id := newSessionID()
	return &Session{
		ID:         id,
		negotiator: n,
		surface:    surface,
		callback:   callback,
		initType:   initType,
		token:      issued.Token,
		expiresAt:  issued.ExpiresAt,
		logger:     n.logger.WithField("sessionId", id),
		state:      StateNegotiating,
		done:       make(chan struct{}),
	}
}

// State returns the current session state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Result returns the accepted decision, or nil if none was accepted
func (s *Session) Result() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return nil
	}
	r := *s.result
	return &r
}

// TokenPosts returns how many times the authorization token was posted
func (s *Session) TokenPosts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.posts
}

// ExpiresAt returns the authorization token expiry bounding the session
func (s *Session) ExpiresAt() time.Time {
	return s.expiresAt
}

// Done is closed when the session ends for any reason
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session ends or ctx is done
func (s *Session) Wait(ctx context.Context) (State, *Result) {
	select {
	case <-s.done:
	case <-ctx.Done():
	}
	return s.State(), s.Result()
}

func (s *Session) run(ctx context.Context) {
	remaining := s.expiresAt.Sub(s.negotiator.now())
	if remaining < 0 {
		remaining = 0
	}
	expiry := time.NewTimer(remaining)
	defer expiry.Stop()

	inbound := s.surface.Inbound()
	for {
		select {
		case <-ctx.Done():
			s.finish(StateCancelled, nil)
			return

		case <-expiry.C:
			s.logger.Info("Authorization token expired before a decision arrived")
			s.finish(StateExpired, nil)
			return

		case <-s.surface.Done():
			s.abandon("Presentation surface closed without a decision")
			return

		case envelope, ok := <-inbound:
			if !ok {
				s.finish(StateAbandoned, nil)
				return
			}
			if s.handle(ctx, envelope) {
				return
			}
		}
	}
}

// handle processes one inbound message and reports whether the session ended
func (s *Session) handle(ctx context.Context, envelope Envelope) bool {
	if !s.negotiator.isTrusted(envelope.Origin) {
		s.logger.WithField("origin", envelope.Origin).Warn("Dropped message from untrusted origin")
		return false
	}

	kind, result := classify(envelope.Data)
	switch kind {
	case kindReady:
		if !s.negotiator.now().Before(s.expiresAt) {
			s.finish(StateExpired, nil)
			return true
		}
		s.postToken(ctx)
		return false

	case kindDecision:
		s.finish(StateDecided, &result)
		return true

	case kindClose:
		s.abandon("Presentation surface requested close without a decision")
		return true

	default:
		s.logger.Debug("Ignored unrecognised surface message")
		return false
	}
}

// abandon ends the session without a decision unless one is already queued.
// A decision received before the close signal is still honored.
func (s *Session) abandon(reason string) {
	if s.drainDecision() {
		return
	}
	s.logger.Info(reason)
	s.finish(StateAbandoned, nil)
}

// drainDecision accepts the first trusted decision already waiting in the
// inbound queue without blocking
func (s *Session) drainDecision() bool {
	inbound := s.surface.Inbound()
	for {
		select {
		case envelope, ok := <-inbound:
			if !ok {
				return false
			}
			if !s.negotiator.isTrusted(envelope.Origin) {
				continue
			}
			if kind, result := classify(envelope.Data); kind == kindDecision {
				s.finish(StateDecided, &result)
				return true
			}
		default:
			return false
		}
	}
}

// postToken sends the authorization token in response to a ready signal.
// Every ready gets a post so a reloaded surface can recover.
func (s *Session) postToken(ctx context.Context) {
	msg := InitMessage{Type: s.initType, Token: s.token}
	if err := s.surface.Post(ctx, s.negotiator.targetOrigin, msg); err != nil {
		s.logger.WithError(err).Warn("Failed to post authorization token to surface")
		return
	}

	s.mu.Lock()
	s.posts++
	posts := s.posts
	s.mu.Unlock()

	s.logger.WithField("posts", posts).Debug("Authorization token posted to surface")
}

// finish ends the session once. Only a decided session invokes the callback.
func (s *Session) finish(state State, result *Result) {
	s.finished.Do(func() {
		s.mu.Lock()
		s.state = state
		s.result = result
		s.mu.Unlock()

		if err := s.surface.Close(); err != nil {
			s.logger.WithError(err).Debug("Failed to close presentation surface")
		}

		if state == StateDecided && result != nil && s.callback != nil {
			s.decide.Do(func() {
				s.callback(*result)
			})
		}

		s.logger.WithFields(logrus.Fields{
			"state":  state,
			"agreed": result != nil && result.Agreed,
		}).Info("Consent negotiation finished")

		close(s.done)
	})
}

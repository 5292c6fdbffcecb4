package broker

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/bookstore-consent-api/internal/config"
	"github.com/wso2/bookstore-consent-api/internal/models"
	"github.com/wso2/bookstore-consent-api/internal/system/correlation"
	"github.com/wso2/bookstore-consent-api/internal/system/error/serviceerror"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return NewClient(&config.ConsentBrokerConfig{
		BaseURL:              server.URL,
		StatusEndpoint:       "/consent-status",
		PartnerTokenEndpoint: "/issue-partner-jwt",
		Timeout:              2 * time.Second,
	}, logger)
}

func TestConsentStatus_Connected(t *testing.T) {
	expiresAt := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/consent-status", r.URL.Path)
		assert.Equal(t, "Bearer shared-key", r.Header.Get("Authorization"))
		assert.Equal(t, "corr-1", r.Header.Get("X-Correlation-ID"))

		var req models.ConsentStatusRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "user123", req.SubjectID)
		assert.Equal(t, "mall001", req.TenantID)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"connected","consentType":"always","expiresAt":"` + expiresAt.Format(time.RFC3339) + `"}`))
	})

	ctx := correlation.WithID(context.Background(), "corr-1")
	status, err := client.ConsentStatus(ctx, []byte("shared-key"), "user123", "mall001")
	require.NoError(t, err)
	assert.Equal(t, models.BrokerStatusConnected, status.Status)
	assert.Equal(t, "always", status.ConsentType)
	require.NotNil(t, status.ExpiresAt)
	assert.True(t, status.ExpiresAt.Time().Equal(expiresAt))
}

func TestConsentStatus_NeedConnect(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"need_connect"}`))
	})

	status, err := client.ConsentStatus(context.Background(), []byte("shared-key"), "user123", "mall001")
	require.NoError(t, err)
	assert.Equal(t, models.BrokerStatusNeedConnect, status.Status)
	assert.Nil(t, status.ToDecision(time.Now()))
}

func TestConsentStatus_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"boom"}`))
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`not json`))
			},
		},
		{
			name: "unknown status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"status":"maybe"}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, tt.handler)
			_, err := client.ConsentStatus(context.Background(), []byte("shared-key"), "user123", "mall001")
			assert.ErrorIs(t, err, serviceerror.ErrConsentStatusUnavailable)
		})
	}
}

func TestConsentStatus_TransportFailure(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	client := NewClient(&config.ConsentBrokerConfig{BaseURL: "http://127.0.0.1:1", StatusEndpoint: "/consent-status"}, logger)

	_, err := client.ConsentStatus(context.Background(), []byte("shared-key"), "user123", "mall001")
	assert.ErrorIs(t, err, serviceerror.ErrConsentStatusUnavailable)
}

func TestConsentStatus_MissingSharedKey(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("broker must not be called without a shared key")
	})

	_, err := client.ConsentStatus(context.Background(), nil, "user123", "mall001")
	assert.ErrorIs(t, err, serviceerror.ErrConfigurationMissing)
}

func TestIssuePartnerToken_ReadsHeader(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/issue-partner-jwt", r.URL.Path)
		assert.Equal(t, "Bearer auth-token", r.Header.Get("Authorization"))
		w.Header().Set("Authorization", "Bearer partner-token")
		_, _ = w.Write([]byte(`{"ignored":"body"}`))
	})

	token, err := client.IssuePartnerToken(context.Background(), "auth-token")
	require.NoError(t, err)
	assert.Equal(t, "partner-token", token)
}

func TestIssuePartnerToken_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "error body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"token expired"}`))
			},
		},
		{
			name: "no header",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"partnerToken":"in-body-is-not-accepted"}`))
			},
		},
		{
			name: "wrong scheme",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Authorization", "Basic abc")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, tt.handler)
			_, err := client.IssuePartnerToken(context.Background(), "auth-token")
			assert.ErrorIs(t, err, serviceerror.ErrDelegationMissing)
		})
	}
}

func TestIssuePartnerToken_BrokerUnavailable(t *testing.T) {
	for _, status := range []int{http.StatusInternalServerError, http.StatusServiceUnavailable} {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"maintenance"}`))
		})

		_, err := client.IssuePartnerToken(context.Background(), "auth-token")
		assert.ErrorIs(t, err, serviceerror.ErrBrokerUnavailable, "status %d", status)
		assert.NotErrorIs(t, err, serviceerror.ErrDelegationMissing, "status %d", status)
	}
}

func TestIssuePartnerToken_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	client := NewClient(&config.ConsentBrokerConfig{
		BaseURL:              url,
		PartnerTokenEndpoint: "/issue-partner-jwt",
		Timeout:              time.Second,
	}, logger)

	_, err := client.IssuePartnerToken(context.Background(), "auth-token")
	assert.ErrorIs(t, err, serviceerror.ErrBrokerUnavailable)
	assert.NotErrorIs(t, err, serviceerror.ErrDelegationMissing)
}

func TestBearerToken(t *testing.T) {
	token, ok := bearerToken("bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	_, ok = bearerToken("Bearer ")
	assert.False(t, ok)

	_, ok = bearerToken("")
	assert.False(t, ok)
}

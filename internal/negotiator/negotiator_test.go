package negotiator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/bookstore-consent-api/internal/config"
	"github.com/wso2/bookstore-consent-api/internal/models"
	"github.com/wso2/bookstore-consent-api/internal/system/error/serviceerror"
)

const (
	brokerOrigin = "https://broker.example.com"
	devOrigin    = "http://localhost:5173"
)

type postedMessage struct {
	targetOrigin string
	data         any
}

type fakeSurface struct {
	mu       sync.Mutex
	posts    []postedMessage
	closes   int
	inbound  chan Envelope
	done     chan struct{}
	doneOnce sync.Once
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{
		inbound: make(chan Envelope, 16),
		done:    make(chan struct{}),
	}
}

func (f *fakeSurface) Post(_ context.Context, targetOrigin string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, postedMessage{targetOrigin: targetOrigin, data: data})
	return nil
}

func (f *fakeSurface) Inbound() <-chan Envelope { return f.inbound }
func (f *fakeSurface) Done() <-chan struct{}    { return f.done }

func (f *fakeSurface) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeSurface) userClosed() {
	f.doneOnce.Do(func() { close(f.done) })
}

func (f *fakeSurface) send(origin, payload string) {
	f.inbound <- Envelope{Origin: origin, Data: json.RawMessage(payload)}
}

func (f *fakeSurface) postCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posts)
}

func (f *fakeSurface) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

type fakeOpener struct {
	surface *fakeSurface
	err     error
	url     string
}

func (o *fakeOpener) Open(_ context.Context, url string) (Surface, error) {
	o.url = url
	if o.err != nil {
		return nil, o.err
	}
	return o.surface, nil
}

type fakeIssuer struct {
	validity time.Duration
	err      error
	calls    int32
}

func (i *fakeIssuer) IssueAuthorizationToken(_ context.Context, subjectID, tenantID string) (*models.IssuedToken, error) {
	atomic.AddInt32(&i.calls, 1)
	if i.err != nil {
		return nil, i.err
	}
	validity := i.validity
	if validity == 0 {
		validity = 5 * time.Minute
	}
	return &models.IssuedToken{Token: "auth-token-for-" + subjectID, ExpiresAt: time.Now().Add(validity)}, nil
}

func newTestNegotiator(issuer TokenIssuer) *Negotiator {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return New(issuer, &config.ConsentBrokerConfig{
		BaseURL:        brokerOrigin + "/",
		Origin:         brokerOrigin,
		AllowedOrigins: []string{devOrigin},
		ConsentPath:    "consent",
		PreviewPath:    "preview",
	}, logger)
}

type callbackRecorder struct {
	mu      sync.Mutex
	results []Result
}

func (r *callbackRecorder) record(result Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

func (r *callbackRecorder) all() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Result(nil), r.results...)
}

func waitFor(t *testing.T, session *Session) (State, *Result) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	state, result := session.Wait(ctx)
	require.NoError(t, ctx.Err(), "session did not finish")
	return state, result
}

func TestStart_PostsTokenOnlyAfterReady(t *testing.T) {
	surface := newFakeSurface()
	opener := &fakeOpener{surface: surface}
	recorder := &callbackRecorder{}

	session, err := newTestNegotiator(&fakeIssuer{}).Start(context.Background(), opener, Request{
		SubjectID: "user123",
		TenantID:  "mall001",
		Callback:  recorder.record,
	})
	require.NoError(t, err)
	assert.Equal(t, brokerOrigin+"/consent", opener.url)
	assert.Equal(t, StateNegotiating, session.State())

	assert.Never(t, func() bool { return surface.postCount() > 0 }, 50*time.Millisecond, 10*time.Millisecond)

	surface.send(brokerOrigin, `{"type":"ready"}`)
	require.Eventually(t, func() bool { return surface.postCount() == 1 }, time.Second, 5*time.Millisecond)

	surface.mu.Lock()
	posted := surface.posts[0]
	surface.mu.Unlock()
	assert.Equal(t, brokerOrigin, posted.targetOrigin)
	assert.Equal(t, InitMessage{Type: MessageTypeInitConsent, Token: "auth-token-for-user123"}, posted.data)

	surface.send(brokerOrigin, `{"type":"consent_result","consentType":"always","token":"delegated"}`)
	state, result := waitFor(t, session)
	assert.Equal(t, StateDecided, state)
	require.NotNil(t, result)
	assert.True(t, result.Agreed)
	assert.Equal(t, "delegated", result.EmbeddedToken)
	assert.Equal(t, []Result{*result}, recorder.all())
	assert.Equal(t, 1, surface.closeCount())
}

func TestStart_DuplicateReadyAndDecisionsInvokeCallbackOnce(t *testing.T) {
	surface := newFakeSurface()
	recorder := &callbackRecorder{}

	session, err := newTestNegotiator(&fakeIssuer{}).Start(context.Background(), &fakeOpener{surface: surface}, Request{
		SubjectID: "user123",
		TenantID:  "mall001",
		Callback:  recorder.record,
	})
	require.NoError(t, err)

	surface.send(brokerOrigin, `{"type":"ready"}`)
	surface.send(brokerOrigin, `{"type":"ready"}`)
	require.Eventually(t, func() bool { return session.TokenPosts() == 2 }, time.Second, 5*time.Millisecond)

	surface.send(brokerOrigin, `{"type":"consent_result","consentType":"once"}`)
	surface.send(brokerOrigin, `{"type":"consent_result","consentType":"always"}`)
	surface.send(brokerOrigin, `{"type":"consent_rejected"}`)

	state, _ := waitFor(t, session)
	assert.Equal(t, StateDecided, state)

	// give any stray delivery a chance to show up
	time.Sleep(20 * time.Millisecond)
	results := recorder.all()
	require.Len(t, results, 1)
	assert.Equal(t, "once", results[0].ConsentType)
}

func TestStart_RejectionReportsNotAgreed(t *testing.T) {
	surface := newFakeSurface()
	recorder := &callbackRecorder{}

	session, err := newTestNegotiator(&fakeIssuer{}).Start(context.Background(), &fakeOpener{surface: surface}, Request{
		SubjectID: "user123",
		Callback:  recorder.record,
	})
	require.NoError(t, err)

	surface.send(brokerOrigin, `{"type":"consent_rejected"}`)

	state, result := waitFor(t, session)
	assert.Equal(t, StateDecided, state)
	require.NotNil(t, result)
	assert.False(t, result.Agreed)
	require.Len(t, recorder.all(), 1)
	assert.False(t, recorder.all()[0].Agreed)
}

func TestStart_UntypedStatusMessage(t *testing.T) {
	tests := []struct {
		name          string
		payload       string
		agreed        bool
		embeddedToken string
	}{
		{name: "active extended", payload: `{"isActive":true,"consentType":"always","token":"t1"}`, agreed: true, embeddedToken: "t1"},
		{name: "inactive", payload: `{"isActive":false,"consentType":"always","token":"t1"}`, agreed: false},
		{name: "denied type", payload: `{"isActive":true,"consentType":"denied"}`, agreed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			surface := newFakeSurface()
			session, err := newTestNegotiator(&fakeIssuer{}).Start(context.Background(), &fakeOpener{surface: surface}, Request{SubjectID: "user123"})
			require.NoError(t, err)

			surface.send(devOrigin, tt.payload)

			state, result := waitFor(t, session)
			assert.Equal(t, StateDecided, state)
			require.NotNil(t, result)
			assert.Equal(t, tt.agreed, result.Agreed)
			assert.Equal(t, tt.embeddedToken, result.EmbeddedToken)
		})
	}
}

func TestStart_DropsUntrustedOrigins(t *testing.T) {
	surface := newFakeSurface()
	recorder := &callbackRecorder{}

	session, err := newTestNegotiator(&fakeIssuer{}).Start(context.Background(), &fakeOpener{surface: surface}, Request{
		SubjectID: "user123",
		Callback:  recorder.record,
	})
	require.NoError(t, err)

	for _, origin := range []string{
		"https://broker.example.com.evil.test",
		"https://evil.test/https://broker.example.com",
		"http://broker.example.com",
		"http://localhost:5174",
		"",
	} {
		surface.send(origin, `{"type":"ready"}`)
		surface.send(origin, `{"type":"consent_result","consentType":"always","token":"forged"}`)
	}
	surface.send(brokerOrigin, `{"type":"close_popup"}`)

	state, result := waitFor(t, session)
	assert.Equal(t, StateAbandoned, state)
	assert.Nil(t, result)
	assert.Empty(t, recorder.all())
	assert.Equal(t, 0, surface.postCount())
}

func TestStart_TrustsBaseURLOriginWhenOriginUnset(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	n := New(&fakeIssuer{}, &config.ConsentBrokerConfig{
		BaseURL:     brokerOrigin + "/consent-ui/",
		ConsentPath: "consent",
	}, logger)

	surface := newFakeSurface()
	recorder := &callbackRecorder{}
	session, err := n.Start(context.Background(), &fakeOpener{surface: surface}, Request{
		SubjectID: "user123",
		Callback:  recorder.record,
	})
	require.NoError(t, err)

	surface.send(brokerOrigin, `{"type":"ready"}`)
	surface.send(brokerOrigin, `{"type":"consent_result","consentType":"always"}`)

	state, result := waitFor(t, session)
	assert.Equal(t, StateDecided, state)
	require.NotNil(t, result)
	assert.True(t, result.Agreed)
	assert.Equal(t, 1, surface.postCount())
	assert.Len(t, recorder.all(), 1)
}

func TestStart_ManualCloseAbandonsSilently(t *testing.T) {
	surface := newFakeSurface()
	recorder := &callbackRecorder{}

	session, err := newTestNegotiator(&fakeIssuer{}).Start(context.Background(), &fakeOpener{surface: surface}, Request{
		SubjectID: "user123",
		Callback:  recorder.record,
	})
	require.NoError(t, err)

	surface.userClosed()

	state, result := waitFor(t, session)
	assert.Equal(t, StateAbandoned, state)
	assert.Nil(t, result)
	assert.Empty(t, recorder.all())
}

func TestStart_QueuedDecisionWinsOverClose(t *testing.T) {
	for i := 0; i < 50; i++ {
		surface := newFakeSurface()
		recorder := &callbackRecorder{}
		surface.send(brokerOrigin, `{"type":"consent_result","consentType":"once"}`)
		surface.userClosed()

		session, err := newTestNegotiator(&fakeIssuer{}).Start(context.Background(), &fakeOpener{surface: surface}, Request{
			SubjectID: "user123",
			Callback:  recorder.record,
		})
		require.NoError(t, err)

		state, result := waitFor(t, session)
		require.Equal(t, StateDecided, state, "run %d", i)
		require.NotNil(t, result)
		assert.True(t, result.Agreed)
		assert.Len(t, recorder.all(), 1)
	}
}

func TestStart_QueuedDecisionWinsOverClosePopup(t *testing.T) {
	surface := newFakeSurface()
	recorder := &callbackRecorder{}
	surface.send(brokerOrigin, `{"type":"close_popup"}`)
	surface.send(devOrigin, `{"type":"consent_rejected"}`)

	session, err := newTestNegotiator(&fakeIssuer{}).Start(context.Background(), &fakeOpener{surface: surface}, Request{
		SubjectID: "user123",
		Callback:  recorder.record,
	})
	require.NoError(t, err)

	state, result := waitFor(t, session)
	assert.Equal(t, StateDecided, state)
	require.NotNil(t, result)
	assert.False(t, result.Agreed)
}

func TestStart_UntrustedQueuedDecisionStillAbandons(t *testing.T) {
	surface := newFakeSurface()
	recorder := &callbackRecorder{}
	surface.send("https://evil.example.com", `{"type":"consent_result","consentType":"always"}`)
	surface.userClosed()

	session, err := newTestNegotiator(&fakeIssuer{}).Start(context.Background(), &fakeOpener{surface: surface}, Request{
		SubjectID: "user123",
		Callback:  recorder.record,
	})
	require.NoError(t, err)

	state, _ := waitFor(t, session)
	assert.Equal(t, StateAbandoned, state)
	assert.Empty(t, recorder.all())
}

func TestStart_TokenExpiryEndsSession(t *testing.T) {
	surface := newFakeSurface()
	recorder := &callbackRecorder{}

	session, err := newTestNegotiator(&fakeIssuer{validity: 30 * time.Millisecond}).Start(context.Background(), &fakeOpener{surface: surface}, Request{
		SubjectID: "user123",
		Callback:  recorder.record,
	})
	require.NoError(t, err)

	state, result := waitFor(t, session)
	assert.Equal(t, StateExpired, state)
	assert.Nil(t, result)
	assert.Empty(t, recorder.all())
	assert.Equal(t, 1, surface.closeCount())
}

func TestStart_ContextCancellation(t *testing.T) {
	surface := newFakeSurface()
	ctx, cancel := context.WithCancel(context.Background())

	session, err := newTestNegotiator(&fakeIssuer{}).Start(ctx, &fakeOpener{surface: surface}, Request{SubjectID: "user123"})
	require.NoError(t, err)

	cancel()

	state, _ := waitFor(t, session)
	assert.Equal(t, StateCancelled, state)
}

func TestStart_PresentationBlocked(t *testing.T) {
	issuer := &fakeIssuer{}
	opener := &fakeOpener{err: serviceerror.ErrPresentationBlocked}

	session, err := newTestNegotiator(issuer).Start(context.Background(), opener, Request{SubjectID: "user123"})
	assert.Nil(t, session)
	assert.ErrorIs(t, err, serviceerror.ErrPresentationBlocked)
	assert.Equal(t, int32(1), atomic.LoadInt32(&issuer.calls))
}

func TestStart_TokenIssuanceFailure(t *testing.T) {
	opener := &fakeOpener{surface: newFakeSurface()}

	_, err := newTestNegotiator(&fakeIssuer{err: errors.New("network unreachable")}).Start(context.Background(), opener, Request{SubjectID: "user123"})
	assert.ErrorIs(t, err, serviceerror.ErrTokenIssuanceFailed)
	assert.Empty(t, opener.url, "surface must not open without a token")

	_, err = newTestNegotiator(&fakeIssuer{err: serviceerror.ErrConfigurationMissing}).Start(context.Background(), opener, Request{SubjectID: "user123"})
	assert.ErrorIs(t, err, serviceerror.ErrConfigurationMissing)
}

func TestStart_PreviewPath(t *testing.T) {
	surface := newFakeSurface()
	opener := &fakeOpener{surface: surface}

	session, err := newTestNegotiator(&fakeIssuer{}).Start(context.Background(), opener, Request{SubjectID: "user123", Path: PathPreview})
	require.NoError(t, err)
	assert.Equal(t, brokerOrigin+"/preview", opener.url)

	surface.send(brokerOrigin, `{"type":"ready"}`)
	require.Eventually(t, func() bool { return surface.postCount() == 1 }, time.Second, 5*time.Millisecond)

	surface.mu.Lock()
	posted := surface.posts[0].data.(InitMessage)
	surface.mu.Unlock()
	assert.Equal(t, MessageTypeInitPreview, posted.Type)

	surface.userClosed()
	waitFor(t, session)
}

func TestStart_InvalidRequests(t *testing.T) {
	negotiator := newTestNegotiator(&fakeIssuer{})

	_, err := negotiator.Start(context.Background(), &fakeOpener{surface: newFakeSurface()}, Request{})
	assert.ErrorIs(t, err, serviceerror.ErrInvalidRequest)

	_, err = negotiator.Start(context.Background(), &fakeOpener{surface: newFakeSurface()}, Request{SubjectID: "user123", Path: "admin"})
	assert.ErrorIs(t, err, serviceerror.ErrInvalidRequest)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		payload string
		kind    messageKind
	}{
		{payload: `{"type":"ready"}`, kind: kindReady},
		{payload: `{"type":"close_popup"}`, kind: kindClose},
		{payload: `{"type":"consent_rejected"}`, kind: kindDecision},
		{payload: `{"type":"consent_result"}`, kind: kindDecision},
		{payload: `{"isActive":true}`, kind: kindDecision},
		{payload: `{"type":"something_else"}`, kind: kindIgnored},
		{payload: `{}`, kind: kindIgnored},
		{payload: `"ready"`, kind: kindIgnored},
		{payload: `not json`, kind: kindIgnored},
	}

	for _, tt := range tests {
		kind, _ := classify(json.RawMessage(tt.payload))
		assert.Equal(t, tt.kind, kind, "payload %s", tt.payload)
	}
}

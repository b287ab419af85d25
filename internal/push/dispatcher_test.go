package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AlibekovAA/webpush-relay/internal/common/logger"
	"github.com/AlibekovAA/webpush-relay/internal/subscription/domain"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type sendCall struct {
	endpoint string
	payload  []byte
}

type mockTransport struct {
	mu    sync.Mutex
	calls []sendCall
	errs  map[string]error
}

func (m *mockTransport) Send(ctx context.Context, sub domain.PushSubscription, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, sendCall{endpoint: sub.Endpoint, payload: payload})
	return m.errs[sub.Endpoint]
}

func (m *mockTransport) endpoints() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.calls))
	for _, c := range m.calls {
		out = append(out, c.endpoint)
	}
	return out
}

type mockAlerts struct {
	mu       sync.Mutex
	messages []string
}

func (m *mockAlerts) Forward(ctx context.Context, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, message)
}

type mockRecipient struct {
	mu         sync.Mutex
	name       string
	attached   map[string]struct{}
	sessions   []*mockSession
	sessionErr error
}

type mockSession struct {
	recipient    *mockRecipient
	token        string
	sub          domain.PushSubscription
	hasSub       bool
	unregistered int
}

func newMockRecipient(name string) *mockRecipient {
	return &mockRecipient{name: name, attached: map[string]struct{}{}}
}

func (r *mockRecipient) addSession(token, endpoint string) *mockSession {
	s := &mockSession{
		recipient: r,
		token:     token,
		sub: domain.PushSubscription{
			Endpoint: endpoint,
			Keys:     domain.Keys{P256dh: "p256dh", Auth: "auth"},
		},
		hasSub: endpoint != "",
	}
	r.sessions = append(r.sessions, s)
	return s
}

func (r *mockRecipient) Name() string { return r.name }

func (r *mockRecipient) AttachedTokens() map[string]struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]struct{}, len(r.attached))
	for k := range r.attached {
		out[k] = struct{}{}
	}
	return out
}

func (r *mockRecipient) Sessions(ctx context.Context) ([]Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessionErr != nil {
		return nil, r.sessionErr
	}
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, &mockSessionView{session: s})
	}
	return out, nil
}

// mockSessionView reads the session under the recipient lock so pruning from
// delivery goroutines is race free.
type mockSessionView struct {
	session *mockSession
}

func (v *mockSessionView) Token() string { return v.session.token }

func (v *mockSessionView) Subscription() (domain.PushSubscription, bool) {
	v.session.recipient.mu.Lock()
	defer v.session.recipient.mu.Unlock()
	return v.session.sub, v.session.hasSub
}

func (v *mockSessionView) UnregisterSubscription(ctx context.Context) error {
	v.session.recipient.mu.Lock()
	defer v.session.recipient.mu.Unlock()
	v.session.hasSub = false
	v.session.sub = domain.PushSubscription{}
	v.session.unregistered++
	return nil
}

func (s *mockSession) subscribed() bool {
	s.recipient.mu.Lock()
	defer s.recipient.mu.Unlock()
	return s.hasSub
}

func newTestDispatcher(transport Transport, alerts AlertForwarder, suppress bool) (*Dispatcher, *lockedBuffer) {
	buf := &lockedBuffer{}
	return NewDispatcher(DispatcherDeps{
		Transport: transport,
		Alerts:    alerts,
		Log:       logger.NewWithWriter(buf, "test", "DEBUG"),
	}, DispatcherConfig{SuppressWhenAttached: suppress}), buf
}

func drain(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Drain(ctx); err != nil {
		t.Fatalf("drain failed: %v", err)
	}
}

var testPayload = Payload{Title: "bob", Body: "hello"}

func TestPush_AttachedRecipientGetsNothing(t *testing.T) {
	tests := []struct {
		name        string
		onlyOffline bool
	}{
		{"all sessions", false},
		{"only offline sessions", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &mockTransport{}
			alerts := &mockAlerts{}
			d, _ := newTestDispatcher(transport, alerts, true)

			r := newMockRecipient("alice")
			r.addSession("tok-a", "https://push.example/a")
			r.addSession("tok-b", "https://push.example/b")
			r.attached["tok-a"] = struct{}{}

			d.Push(context.Background(), r, testPayload, tt.onlyOffline)
			drain(t, d)

			if got := transport.endpoints(); len(got) != 0 {
				t.Errorf("expected no deliveries, got %v", got)
			}
			if len(alerts.messages) != 0 {
				t.Errorf("expected no alerts, got %v", alerts.messages)
			}
		})
	}
}

func TestPush_FansOutToEverySubscribedSession(t *testing.T) {
	transport := &mockTransport{}
	d, _ := newTestDispatcher(transport, nil, true)

	r := newMockRecipient("alice")
	r.addSession("tok-a", "https://push.example/a")
	r.addSession("tok-b", "https://push.example/b")
	r.addSession("tok-c", "https://push.example/c")
	r.addSession("tok-d", "")

	d.Push(context.Background(), r, testPayload, false)
	drain(t, d)

	if got := transport.endpoints(); len(got) != 3 {
		t.Fatalf("expected 3 deliveries, got %v", got)
	}

	for _, c := range transport.calls {
		var decoded map[string]any
		if err := json.Unmarshal(c.payload, &decoded); err != nil {
			t.Fatalf("payload is not json: %v", err)
		}
		if decoded["title"] != "bob" || decoded["body"] != "hello" {
			t.Errorf("unexpected payload %v", decoded)
		}
	}
}

func TestPush_OnlyOfflineSkipsAttachedSessions(t *testing.T) {
	transport := &mockTransport{}
	d, _ := newTestDispatcher(transport, nil, false)

	r := newMockRecipient("alice")
	r.addSession("tok-a", "https://push.example/a")
	r.addSession("tok-b", "https://push.example/b")
	r.attached["tok-a"] = struct{}{}

	d.Push(context.Background(), r, testPayload, true)
	drain(t, d)

	got := transport.endpoints()
	if len(got) != 1 || got[0] != "https://push.example/b" {
		t.Fatalf("expected only B, got %v", got)
	}
}

func TestPush_WithoutOnlyOfflineIncludesAttachedSessions(t *testing.T) {
	transport := &mockTransport{}
	d, _ := newTestDispatcher(transport, nil, false)

	r := newMockRecipient("alice")
	r.addSession("tok-a", "https://push.example/a")
	r.addSession("tok-b", "https://push.example/b")
	r.attached["tok-a"] = struct{}{}

	d.Push(context.Background(), r, testPayload, false)
	drain(t, d)

	if got := transport.endpoints(); len(got) != 2 {
		t.Fatalf("expected A and B, got %v", got)
	}
}

func TestPush_ClientErrorPrunesEveryMatchingSession(t *testing.T) {
	gone := "https://push.example/gone"
	transport := &mockTransport{errs: map[string]error{
		gone: &DeliveryError{StatusCode: 410, Endpoint: gone},
	}}
	d, logs := newTestDispatcher(transport, nil, true)

	r := newMockRecipient("alice")
	a := r.addSession("tok-a", gone)
	b := r.addSession("tok-b", gone)
	c := r.addSession("tok-c", "https://push.example/ok")

	d.Push(context.Background(), r, testPayload, false)
	drain(t, d)

	if a.subscribed() || b.subscribed() {
		t.Error("expected both sessions sharing the endpoint to be unregistered")
	}
	if !c.subscribed() {
		t.Error("expected unrelated session kept")
	}

	out := logs.String()
	if !strings.Contains(out, "[WARNING]") ||
		!strings.Contains(out, "WebPush subscription for alice returned an error (410), removing subscription") {
		t.Errorf("expected removal warning, got %q", out)
	}

	transport.mu.Lock()
	transport.calls = nil
	transport.mu.Unlock()

	d.Push(context.Background(), r, testPayload, false)
	drain(t, d)

	got := transport.endpoints()
	if len(got) != 1 || got[0] != "https://push.example/ok" {
		t.Errorf("expected pruned endpoint never targeted again, got %v", got)
	}
}

func TestPush_ServerErrorKeepsSubscription(t *testing.T) {
	ep := "https://push.example/flaky"
	transport := &mockTransport{errs: map[string]error{
		ep: &DeliveryError{StatusCode: 500, Endpoint: ep},
	}}
	d, logs := newTestDispatcher(transport, nil, true)

	r := newMockRecipient("alice")
	s := r.addSession("tok-a", ep)

	d.Push(context.Background(), r, testPayload, false)
	drain(t, d)

	if !s.subscribed() {
		t.Error("expected subscription kept after 500")
	}
	out := logs.String()
	if !strings.Contains(out, "[ERROR]") || !strings.Contains(out, "WebPush Error (") {
		t.Errorf("expected error log, got %q", out)
	}
}

func TestPush_NetworkErrorKeepsSubscription(t *testing.T) {
	ep := "https://push.example/unreachable"
	transport := &mockTransport{errs: map[string]error{ep: errors.New("dial tcp: connection refused")}}
	d, _ := newTestDispatcher(transport, nil, true)

	r := newMockRecipient("alice")
	s := r.addSession("tok-a", ep)

	d.Push(context.Background(), r, testPayload, false)
	drain(t, d)

	if !s.subscribed() {
		t.Error("expected subscription kept after transport error")
	}
}

func TestPush_PruneIsIdempotent(t *testing.T) {
	gone := "https://push.example/gone"
	transport := &mockTransport{errs: map[string]error{
		gone: &DeliveryError{StatusCode: 404, Endpoint: gone},
	}}
	d, _ := newTestDispatcher(transport, nil, true)

	r := newMockRecipient("alice")
	s := r.addSession("tok-a", gone)
	sub := s.sub

	d.DeliverSingle(context.Background(), r, sub, testPayload)
	d.DeliverSingle(context.Background(), r, sub, testPayload)
	drain(t, d)

	if s.subscribed() {
		t.Error("expected subscription removed")
	}
}

func TestPush_ForwardsAlert(t *testing.T) {
	alerts := &mockAlerts{}
	d, _ := newTestDispatcher(&mockTransport{}, alerts, true)

	r := newMockRecipient("alice")
	d.Push(context.Background(), r, Payload{Title: "x", Body: "y"}, false)
	drain(t, d)

	if len(alerts.messages) != 1 || alerts.messages[0] != "x: y" {
		t.Errorf("expected alert %q, got %v", "x: y", alerts.messages)
	}
}

func TestPush_SessionLookupFailure(t *testing.T) {
	transport := &mockTransport{}
	d, logs := newTestDispatcher(transport, nil, true)

	r := newMockRecipient("alice")
	r.sessionErr = errors.New("db down")

	d.Push(context.Background(), r, testPayload, false)
	drain(t, d)

	if got := transport.endpoints(); len(got) != 0 {
		t.Errorf("expected no deliveries, got %v", got)
	}
	if !strings.Contains(logs.String(), "failed to load push sessions") {
		t.Errorf("expected failure log, got %q", logs.String())
	}
}

func TestPush_ReturnsBeforeSessionLookup(t *testing.T) {
	transport := &mockTransport{}
	d, _ := newTestDispatcher(transport, nil, true)

	release := make(chan struct{})
	r := &slowRecipient{mockRecipient: newMockRecipient("alice"), release: release}
	r.addSession("tok-a", "https://push.example/a")

	done := make(chan struct{})
	go func() {
		d.Push(context.Background(), r, testPayload, false)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Push blocked on the session lookup")
	}

	close(release)
	drain(t, d)

	if got := transport.endpoints(); len(got) != 1 {
		t.Errorf("expected 1 delivery after lookup, got %v", got)
	}
}

type slowRecipient struct {
	*mockRecipient
	release chan struct{}
}

func (r *slowRecipient) Sessions(ctx context.Context) ([]Session, error) {
	select {
	case <-r.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return r.mockRecipient.Sessions(ctx)
}

func TestPush_DeliveryOutlivesCallerContext(t *testing.T) {
	transport := &ctxCheckingTransport{}
	d, _ := newTestDispatcher(transport, nil, true)

	r := newMockRecipient("alice")
	r.addSession("tok-a", "https://push.example/a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Push(ctx, r, testPayload, false)
	drain(t, d)

	transport.mu.Lock()
	defer transport.mu.Unlock()
	if transport.calls != 1 || transport.sawCanceled {
		t.Errorf("expected one delivery with a live context, calls=%d canceled=%v", transport.calls, transport.sawCanceled)
	}
}

type ctxCheckingTransport struct {
	mu          sync.Mutex
	calls       int
	sawCanceled bool
}

func (c *ctxCheckingTransport) Send(ctx context.Context, sub domain.PushSubscription, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if ctx.Err() != nil {
		c.sawCanceled = true
	}
	return nil
}

func TestDrain_RespectsDeadline(t *testing.T) {
	release := make(chan struct{})
	transport := &blockingTransport{release: release}
	d, _ := newTestDispatcher(transport, nil, true)

	r := newMockRecipient("alice")
	r.addSession("tok-a", "https://push.example/a")
	d.Push(context.Background(), r, testPayload, false)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Drain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}

	close(release)
	drain(t, d)
}

type blockingTransport struct {
	release chan struct{}
}

func (b *blockingTransport) Send(ctx context.Context, sub domain.PushSubscription, payload []byte) error {
	<-b.release
	return nil
}

func TestPayload_MarshalFlattensExtra(t *testing.T) {
	raw, err := json.Marshal(Payload{
		Title: "bob",
		Body:  "hi",
		Extra: map[string]any{"chanId": 3, "title": "ignored"},
	})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]any
	_ = json.Unmarshal(raw, &decoded)
	if decoded["title"] != "bob" || decoded["body"] != "hi" || decoded["chanId"] != float64(3) {
		t.Errorf("unexpected payload %v", decoded)
	}
}

func TestDeliveryError_IsClientError(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{399, false},
		{400, true},
		{404, true},
		{410, true},
		{499, true},
		{500, false},
	}
	for _, tt := range tests {
		err := &DeliveryError{StatusCode: tt.status}
		if got := err.IsClientError(); got != tt.want {
			t.Errorf("status %d: expected %v, got %v", tt.status, tt.want, got)
		}
	}
}

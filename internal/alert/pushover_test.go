package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AlibekovAA/webpush-relay/internal/common/config"
	"github.com/AlibekovAA/webpush-relay/internal/common/logger"
)

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func drain(t *testing.T, f *PushoverForwarder) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.Drain(ctx); err != nil {
		t.Fatalf("drain failed: %v", err)
	}
}

func TestNewPushoverForwarder_DisabledWithoutCredentials(t *testing.T) {
	log := logger.NewWithWriter(&safeBuffer{}, "test", "DEBUG")

	if f := NewPushoverForwarder(config.PushoverConfig{APIToken: "app"}, log); f != nil {
		t.Fatal("expected nil forwarder without user key")
	}
	if f := NewPushoverForwarder(config.PushoverConfig{UserKey: "user"}, log); f != nil {
		t.Fatal("expected nil forwarder without api token")
	}
}

func TestPushoverForwarder_PostsMessage(t *testing.T) {
	var mu sync.Mutex
	var received pushoverMessage
	var contentType string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		contentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	buf := &safeBuffer{}
	f := NewPushoverForwarder(config.PushoverConfig{
		APIToken: "app-token",
		UserKey:  "user-key",
		URL:      srv.URL,
		Timeout:  time.Second,
	}, logger.NewWithWriter(buf, "test", "DEBUG"))

	f.Forward(context.Background(), "alice: hello")
	drain(t, f)

	mu.Lock()
	defer mu.Unlock()
	if received.Token != "app-token" || received.User != "user-key" {
		t.Errorf("unexpected credentials %+v", received)
	}
	if received.Message != "alice: hello" {
		t.Errorf("expected message %q, got %q", "alice: hello", received.Message)
	}
	if contentType != "application/json" {
		t.Errorf("expected json content type, got %q", contentType)
	}
	if !strings.Contains(buf.String(), "pushover push successful.") {
		t.Errorf("expected success log, got %q", buf.String())
	}
}

func TestPushoverForwarder_NonOKStatusIsLogged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	buf := &safeBuffer{}
	f := NewPushoverForwarder(config.PushoverConfig{
		APIToken: "app-token",
		UserKey:  "user-key",
		URL:      srv.URL,
	}, logger.NewWithWriter(buf, "test", "DEBUG"))

	f.Forward(context.Background(), "x: y")
	drain(t, f)

	out := buf.String()
	if !strings.Contains(out, "[WARNING]") || !strings.Contains(out, "pushover push failed") {
		t.Errorf("expected warning log, got %q", out)
	}
	if !strings.Contains(out, "status 400") {
		t.Errorf("expected status in log, got %q", out)
	}
}

func TestPushoverForwarder_ForwardDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := NewPushoverForwarder(config.PushoverConfig{
		APIToken: "app-token",
		UserKey:  "user-key",
		URL:      srv.URL,
		Timeout:  5 * time.Second,
	}, logger.NewWithWriter(&safeBuffer{}, "test", "DEBUG"))

	done := make(chan struct{})
	go func() {
		f.Forward(context.Background(), "x: y")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Forward blocked on the request")
	}

	close(release)
	drain(t, f)
}

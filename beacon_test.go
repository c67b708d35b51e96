package beacon

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamesignals/beacon/internal/logging"
)

const (
	testGameKey   = "01234567890123456789012345678901"
	testSecretKey = "0123456789012345678901234567890123456789"
)

// fakeCollector records every event batch the SDK posts.
type fakeCollector struct {
	mu     sync.Mutex
	inits  int
	events []map[string]any
}

func (f *fakeCollector) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.Header.Get("Content-Encoding") == "gzip" {
			if zr, err := gzip.NewReader(strings.NewReader(string(body))); err == nil {
				body, _ = io.ReadAll(zr)
			}
		}

		f.mu.Lock()
		defer f.mu.Unlock()

		if strings.HasSuffix(r.URL.Path, "/init") {
			f.inits++
			_, _ = w.Write([]byte(`{"enabled":true,"server_ts":1500000000}`))
			return
		}

		var batch []map[string]any
		_ = json.Unmarshal(body, &batch)
		f.events = append(f.events, batch...)
		_, _ = w.Write([]byte(`[]`))
	})
}

func (f *fakeCollector) categories() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, ev := range f.events {
		if c, ok := ev["category"].(string); ok {
			out = append(out, c)
		}
	}
	return out
}

func TestEndToEndSession(t *testing.T) {
	collector := &fakeCollector{}
	srv := httptest.NewServer(collector.handler())
	defer srv.Close()

	sdk := New(
		WithCollectorURL(srv.URL),
		WithLogger(logging.New(io.Discard)),
	)
	sdk.ConfigureWritablePath(t.TempDir())
	sdk.ConfigureBuild("1.0 test")
	sdk.Initialize(testGameKey, testSecretKey)

	sdk.AddDesignEvent("test:event", nil)
	sdk.OnQuit()

	collector.mu.Lock()
	inits := collector.inits
	collector.mu.Unlock()
	assert.Equal(t, 1, inits)

	cats := collector.categories()
	assert.Contains(t, cats, "user", "session start was sent")
	assert.Contains(t, cats, "design")
	assert.Contains(t, cats, "session_end", "OnQuit closed and flushed the session")
}

func TestInitializeRejectsBadKeys(t *testing.T) {
	collector := &fakeCollector{}
	srv := httptest.NewServer(collector.handler())
	defer srv.Close()

	sdk := New(
		WithCollectorURL(srv.URL),
		WithLogger(logging.New(io.Discard)),
	)
	sdk.ConfigureWritablePath(t.TempDir())
	sdk.Initialize("bad", "keys")
	sdk.OnQuit()

	collector.mu.Lock()
	defer collector.mu.Unlock()
	assert.Zero(t, collector.inits, "no handshake with invalid keys")
	assert.Empty(t, collector.events)
}

func TestConfigureAfterInitializeIsRefused(t *testing.T) {
	collector := &fakeCollector{}
	srv := httptest.NewServer(collector.handler())
	defer srv.Close()

	sdk := New(
		WithCollectorURL(srv.URL),
		WithLogger(logging.New(io.Discard)),
	)
	sdk.ConfigureWritablePath(t.TempDir())
	sdk.Initialize(testGameKey, testSecretKey)
	sdk.ConfigureBuild("too late")

	// Worker tasks run in order, so the refused ConfigureBuild has settled
	// before this event is annotated.
	sdk.AddDesignEvent("test:event", nil)
	sdk.OnQuit()

	collector.mu.Lock()
	defer collector.mu.Unlock()
	require.NotEmpty(t, collector.events)
	for _, ev := range collector.events {
		assert.NotContains(t, ev, "build")
	}
}

func TestManualSessionHandling(t *testing.T) {
	collector := &fakeCollector{}
	srv := httptest.NewServer(collector.handler())
	defer srv.Close()

	sdk := New(
		WithCollectorURL(srv.URL),
		WithLogger(logging.New(io.Discard)),
	)
	sdk.ConfigureWritablePath(t.TempDir())
	sdk.SetEnabledManualSessionHandling(true)
	sdk.Initialize(testGameKey, testSecretKey)

	// With manual handling, OnSuspend must not end the session.
	sdk.OnSuspend()
	sdk.EndSession()
	sdk.OnQuit()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(collector.categories()) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	cats := collector.categories()
	assert.Contains(t, cats, "user")
	assert.Contains(t, cats, "session_end", "explicit EndSession closed the session")
}

func TestRemoteConfigThroughInit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/init") {
			_, _ = w.Write([]byte(`{"enabled":true,"server_ts":1500000000,"configurations":[{"key":"difficulty","value":"hard"}]}`))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	sdk := New(
		WithCollectorURL(srv.URL),
		WithLogger(logging.New(io.Discard)),
	)
	sdk.ConfigureWritablePath(t.TempDir())

	ready := make(chan struct{})
	sdk.AddRemoteConfigListener(func() { close(ready) })
	sdk.Initialize(testGameKey, testSecretKey)

	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("remote config never became ready")
	}

	assert.True(t, sdk.IsRemoteConfigReady())
	assert.Equal(t, "hard", sdk.GetRemoteConfigValueAsString("difficulty", ""))
	assert.Equal(t, "fallback", sdk.GetRemoteConfigValueAsString("missing", "fallback"))

	sdk.OnQuit()
}

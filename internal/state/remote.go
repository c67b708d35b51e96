package state

import (
	"strconv"
	"sync"
	"sync/atomic"
)

// remoteConfig holds the server-supplied key-value overrides. Readers load
// an immutable snapshot through an atomic pointer, so host-thread lookups
// never contend with the worker's repopulation. Only the listener list needs
// a mutex.
type remoteConfig struct {
	snapshot atomic.Pointer[map[string]string]
	ready    atomic.Bool

	mu        sync.Mutex
	listeners []func()
}

func newRemoteConfig() *remoteConfig {
	rc := &remoteConfig{}
	empty := map[string]string{}
	rc.snapshot.Store(&empty)
	return rc
}

// publish swaps in a freshly built snapshot and fires listeners once. The
// snapshot must not be mutated after publish.
func (rc *remoteConfig) publish(values map[string]string) {
	rc.snapshot.Store(&values)
	rc.ready.Store(true)

	rc.mu.Lock()
	listeners := make([]func(), len(rc.listeners))
	copy(listeners, rc.listeners)
	rc.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

func (rc *remoteConfig) value(key, defaultValue string) string {
	snap := *rc.snapshot.Load()
	if v, ok := snap[key]; ok {
		return v
	}
	return defaultValue
}

func (rc *remoteConfig) isReady() bool {
	return rc.ready.Load()
}

func (rc *remoteConfig) addListener(fn func()) {
	if fn == nil {
		return
	}
	rc.mu.Lock()
	rc.listeners = append(rc.listeners, fn)
	rc.mu.Unlock()
}

// trimFloat renders numeric remote-config values without a trailing ".0"
// when they are integral.
func trimFloat(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Package beacon is an embedded game-analytics client: events are validated,
// annotated and written to a local SQLite outbox, then shipped to the
// collector in signed, gzipped batches by a single background worker.
//
// The API is fire-and-forget. Every call returns immediately; the actual work
// runs on the SDK's worker goroutine, so hosts never block on disk or network
// and never need their own locking. Events survive crashes and offline
// periods in the outbox and are retried on the next run.
//
// Typical use:
//
//	sdk := beacon.New()
//	sdk.ConfigureBuild("1.2.0")
//	sdk.Initialize("game key", "secret key")
//	sdk.AddDesignEvent("tutorial:step01", nil)
//	...
//	sdk.OnQuit()
package beacon

import (
	"net/http"

	"github.com/gamesignals/beacon/internal/device"
	"github.com/gamesignals/beacon/internal/events"
	"github.com/gamesignals/beacon/internal/httpapi"
	"github.com/gamesignals/beacon/internal/logging"
	"github.com/gamesignals/beacon/internal/scheduler"
	"github.com/gamesignals/beacon/internal/state"
	"github.com/gamesignals/beacon/internal/store"
	"github.com/gamesignals/beacon/internal/telemetry"
	"github.com/gamesignals/beacon/internal/validate"
)

// SDK is one analytics client instance. All methods are safe to call from any
// goroutine; mutations are serialized on the internal worker.
type SDK struct {
	log     *logging.Logger
	sched   *scheduler.Scheduler
	device  *device.Info
	state   *state.State
	metrics *telemetry.Metrics

	// Created during Initialize, touched only on the worker after that.
	store  *store.Store
	client *httpapi.Client
	events *events.Dispatcher

	// Transport overrides captured before Initialize.
	baseURL    string
	httpClient *http.Client
}

// Option configures an SDK at construction time.
type Option func(*SDK)

// WithLogger substitutes the SDK logger (tests, host log integration).
func WithLogger(log *logging.Logger) Option {
	return func(s *SDK) { s.log = log }
}

// WithCollectorURL points the SDK at a non-production collector.
func WithCollectorURL(url string) Option {
	return func(s *SDK) { s.baseURL = url }
}

// WithHTTPClient substitutes the HTTP client used for collector calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *SDK) { s.httpClient = hc }
}

// New returns an unconfigured SDK. Call the Configure* methods, then
// Initialize.
func New(opts ...Option) *SDK {
	s := &SDK{
		sched:   scheduler.New(),
		device:  device.Detect(),
		baseURL: httpapi.DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logging.Default()
	}
	s.state = state.New(s.device, s.log)

	m, err := telemetry.Init()
	if err != nil {
		s.log.Warningf("Telemetry disabled: %v", err)
	}
	s.metrics = m
	return s
}

// preInit runs a configuration task on the worker, refusing it after
// Initialize.
func (s *SDK) preInit(name string, task func()) {
	s.sched.Post(func() {
		if s.state.Initialized() {
			s.log.Warningf("%s must be set before SDK is initialized", name)
			return
		}
		task()
	})
}

// ConfigureAvailableCustomDimensions01 whitelists the values accepted by
// SetCustomDimension01. At most 20 values of up to 32 characters.
func (s *SDK) ConfigureAvailableCustomDimensions01(values []string) {
	s.preInit("Available custom dimensions", func() {
		s.state.SetAvailableCustomDimensions01(values)
	})
}

// ConfigureAvailableCustomDimensions02 whitelists the values accepted by
// SetCustomDimension02.
func (s *SDK) ConfigureAvailableCustomDimensions02(values []string) {
	s.preInit("Available custom dimensions", func() {
		s.state.SetAvailableCustomDimensions02(values)
	})
}

// ConfigureAvailableCustomDimensions03 whitelists the values accepted by
// SetCustomDimension03.
func (s *SDK) ConfigureAvailableCustomDimensions03(values []string) {
	s.preInit("Available custom dimensions", func() {
		s.state.SetAvailableCustomDimensions03(values)
	})
}

// ConfigureAvailableResourceCurrencies whitelists resource-event currencies.
// At most 20 values of up to 64 letters.
func (s *SDK) ConfigureAvailableResourceCurrencies(values []string) {
	s.preInit("Available resource currencies", func() {
		s.state.SetAvailableResourceCurrencies(values)
	})
}

// ConfigureAvailableResourceItemTypes whitelists resource-event item types.
func (s *SDK) ConfigureAvailableResourceItemTypes(values []string) {
	s.preInit("Available resource item types", func() {
		s.state.SetAvailableResourceItemTypes(values)
	})
}

// ConfigureBuild sets the host build string attached to every event. At most
// 32 characters.
func (s *SDK) ConfigureBuild(build string) {
	s.preInit("Build version", func() {
		if !validate.Build(build) {
			s.log.Warningf("Validation fail - configure build: Cannot be null, empty or above 32 length. String: %s", build)
			return
		}
		s.state.SetBuild(build)
	})
}

// ConfigureUserID sets an explicit user identity, overriding the persisted
// SDK-generated default. At most 64 characters of the id charset.
func (s *SDK) ConfigureUserID(id string) {
	s.preInit("User id", func() {
		if !validate.UserID(id) {
			s.log.Warningf("Validation fail - configure user_id: Cannot be null, empty or above 64 length. Will use default user_id method. Used string: %s", id)
			return
		}
		s.state.SetUserID(id)
	})
}

// ConfigureSdkGameEngineVersion sets the wrapper-SDK version string reported
// as sdk_version (engine wrappers only).
func (s *SDK) ConfigureSdkGameEngineVersion(version string) {
	s.preInit("Sdk wrapper version", func() {
		if !validate.SdkWrapperVersion(version) {
			s.log.Warningf("Validation fail - configure sdk version: Sdk version not supported. String: %s", version)
			return
		}
		s.device.SetSdkWrapperVersion(version)
	})
}

// ConfigureGameEngineVersion sets the engine_version annotation.
func (s *SDK) ConfigureGameEngineVersion(version string) {
	s.preInit("Engine version", func() {
		if !validate.EngineVersion(version) {
			s.log.Warningf("Validation fail - configure engine: Engine version not supported. String: %s", version)
			return
		}
		s.device.SetEngineVersion(version)
	})
}

// ConfigureWritablePath overrides the directory holding the SDK database.
func (s *SDK) ConfigureWritablePath(path string) {
	s.preInit("Writable path", func() {
		s.device.SetWritablePath(path)
		s.log.Infof("Set writable path: %s", path)
	})
}

// ConfigurePlatform overrides the detected platform annotation.
func (s *SDK) ConfigurePlatform(platform string) {
	s.preInit("Platform", func() { s.device.SetPlatform(platform) })
}

// ConfigureOSVersion overrides the detected os_version annotation.
func (s *SDK) ConfigureOSVersion(version string) {
	s.preInit("OS version", func() { s.device.SetOSVersion(version) })
}

// ConfigureDeviceModel overrides the device annotation.
func (s *SDK) ConfigureDeviceModel(model string) {
	s.preInit("Device model", func() { s.device.SetModel(model) })
}

// ConfigureDeviceManufacturer overrides the manufacturer annotation.
func (s *SDK) ConfigureDeviceManufacturer(manufacturer string) {
	s.preInit("Device manufacturer", func() { s.device.SetManufacturer(manufacturer) })
}

// SetConnectionType reports the host's current connectivity (wwan, wifi, lan
// or offline). May be called at any time.
func (s *SDK) SetConnectionType(connection string) {
	s.sched.Post(func() {
		if !validate.ConnectionType(connection) {
			s.log.Warningf("Validation fail - connection type: %s", connection)
			return
		}
		s.device.SetConnectionType(connection)
	})
}

// Initialize opens the local datastore, restores persisted state, performs
// the collector init handshake and starts the first session. Returns
// immediately; all work happens on the worker.
func (s *SDK) Initialize(gameKey, gameSecret string) {
	s.sched.Post(func() {
		if s.state.Initialized() {
			s.log.Warning("SDK already initialized. Can only be called once.")
			return
		}
		if !validate.Keys(gameKey, gameSecret) {
			s.log.Warningf("SDK failed initialize. Game key or secret key is invalid. Can only contain characters A-z 0-9, gameKey is 32 length, gameSecret is 40 length. Failed keys - gameKey: %s, secretKey: %s", gameKey, gameSecret)
			return
		}
		s.state.SetKeys(gameKey, gameSecret)
		s.internalInitialize(gameKey, gameSecret)
	})
}

func (s *SDK) internalInitialize(gameKey, gameSecret string) {
	st, err := store.Open(s.device.WritablePath(), gameKey, s.log)
	if err != nil {
		s.log.Warningf("Could not open datastore: %v", err)
		return
	}
	if err := st.Ensure(false); err != nil {
		s.log.Warningf("Could not ensure datastore tables: %v", err)
		return
	}
	s.store = st
	s.state.AttachStore(st)

	opts := []httpapi.Option{httpapi.WithBaseURL(s.baseURL)}
	if s.httpClient != nil {
		opts = append(opts, httpapi.WithHTTPClient(s.httpClient))
	}
	s.client = httpapi.New(gameKey, gameSecret, s.log, opts...)
	s.events = events.New(st, s.state, s.sched, s.client, s.metrics, s.log)

	s.state.EnsurePersistedStates()
	s.state.PersistDefaultUserID()
	s.state.SetInitialized()

	s.startNewSession()
	if s.state.IsEnabled() {
		s.events.EnsureQueueRunning()
	}
}

// startNewSession runs the init handshake and opens a session. Worker only.
func (s *SDK) startNewSession() {
	s.state.ValidateAndFixCurrentDimensions()

	resp, doc := s.client.RequestInit(s.state.InitAnnotations())
	s.state.ApplyInitResponse(resp, doc)

	if !s.state.IsEnabled() {
		s.log.Warning("Could not start session: SDK is disabled.")
		s.events.StopQueue()
		return
	}

	s.state.BeginSession()
	s.events.AddSessionStartEvent()
}

// endSessionAndStopQueue closes the running session. Worker only.
func (s *SDK) endSessionAndStopQueue() {
	if s.events == nil {
		return
	}
	s.events.StopQueue()
	if s.state.IsEnabled() && s.state.SessionIsStarted() {
		s.events.AddSessionEndEvent()
		s.state.EndSession()
	}
}

// resumeSessionAndStartQueue restarts the flush timer and opens a session if
// none is running. Worker only.
func (s *SDK) resumeSessionAndStartQueue() {
	if !s.state.Initialized() {
		return
	}
	s.events.EnsureQueueRunning()
	if !s.state.SessionIsStarted() {
		s.startNewSession()
	}
}

// StartSession opens a session explicitly. Only valid with manual session
// handling enabled; a running session is closed first.
func (s *SDK) StartSession() {
	s.sched.Post(func() {
		if !s.state.UseManualSessionHandling() {
			s.log.Warning("Cannot start session. Manual session handling is not enabled.")
			return
		}
		if !s.state.Initialized() {
			return
		}
		if s.state.IsEnabled() && s.state.SessionIsStarted() {
			s.endSessionAndStopQueue()
		}
		s.resumeSessionAndStartQueue()
	})
}

// EndSession closes the running session explicitly. Only valid with manual
// session handling enabled.
func (s *SDK) EndSession() {
	s.sched.Post(func() {
		if !s.state.UseManualSessionHandling() {
			return
		}
		s.endSessionAndStopQueue()
	})
}

// OnResume tells the SDK the host app came to the foreground. With automatic
// session handling this (re)opens a session.
func (s *SDK) OnResume() {
	s.sched.Post(func() {
		if s.state.UseManualSessionHandling() {
			return
		}
		s.resumeSessionAndStartQueue()
	})
}

// OnSuspend tells the SDK the host app went to the background. With automatic
// session handling this closes the session and flushes it.
func (s *SDK) OnSuspend() {
	s.sched.Post(func() {
		if s.state.UseManualSessionHandling() {
			return
		}
		s.endSessionAndStopQueue()
	})
}

// OnQuit closes the session and shuts the worker down. Blocks until the
// worker has drained its due tasks; after OnQuit the SDK accepts no further
// work.
func (s *SDK) OnQuit() {
	s.sched.Post(func() {
		s.endSessionAndStopQueue()
	})
	s.sched.Shutdown()
	<-s.sched.Done()
}

// SetEnabledInfoLog toggles info-level logging.
func (s *SDK) SetEnabledInfoLog(enabled bool) {
	s.sched.Post(func() {
		s.log.SetInfoLog(enabled)
		if enabled {
			s.log.Info("Info logging enabled")
		} else {
			s.log.Info("Info logging disabled")
		}
	})
}

// SetEnabledVerboseLog toggles verbose event logging.
func (s *SDK) SetEnabledVerboseLog(enabled bool) {
	s.sched.Post(func() {
		s.log.SetVerboseLog(enabled)
		if enabled {
			s.log.Info("Verbose logging enabled")
		} else {
			s.log.Info("Verbose logging disabled")
		}
	})
}

// SetEnabledEventSubmission is the local kill switch: when disabled, events
// are silently dropped.
func (s *SDK) SetEnabledEventSubmission(enabled bool) {
	s.sched.Post(func() {
		s.state.SetEnabledEventSubmission(enabled)
		if enabled {
			s.log.Info("Event submission enabled")
		} else {
			s.log.Info("Event submission disabled")
		}
	})
}

// SetEnabledManualSessionHandling hands session start/end control to the
// host; OnResume and OnSuspend stop managing sessions.
func (s *SDK) SetEnabledManualSessionHandling(enabled bool) {
	s.sched.Post(func() {
		s.state.SetManualSessionHandling(enabled)
	})
}

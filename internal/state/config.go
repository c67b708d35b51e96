package state

import (
	"encoding/json"
	"math"
	"time"

	"github.com/gamesignals/beacon/internal/httpapi"
	"github.com/gamesignals/beacon/internal/validate"
)

func unixNow() int64 { return time.Now().Unix() }

// SdkConfig resolves the active configuration by strict fallback order:
// fresh from this session's init call, else the cached copy from an earlier
// session, else the built-in default.
func (s *State) SdkConfig() map[string]any {
	if s.sdkConfig != nil {
		return s.sdkConfig
	}
	if s.sdkConfigCached != nil {
		return s.sdkConfigCached
	}
	return s.sdkConfigDefault
}

// IsEnabled gates the whole event pipeline: the remote enabled flag (default
// true), init-handshake authorization, and the local kill switch all have to
// agree.
func (s *State) IsEnabled() bool {
	if enabled, ok := s.SdkConfig()["enabled"].(bool); ok && !enabled {
		return false
	}
	if !s.initAuthorized {
		return false
	}
	return s.enabledEventSubmission
}

// InitAuthorized reports whether the last init handshake was authorized.
func (s *State) InitAuthorized() bool { return s.initAuthorized }

// ApplyInitResponse reconciles state with an init-handshake outcome: a fresh
// config on Ok (cached to the store with the computed server-time offset),
// de-authorization on Unauthorized, and the cached-else-default fallback on
// every other failure. Always ends by installing the time offset and
// repopulating the remote-config snapshot from whichever config won.
func (s *State) ApplyInitResponse(resp httpapi.Response, doc map[string]any) {
	switch {
	case resp == httpapi.Ok && doc != nil:
		var offset int64
		if serverTs, ok := doc["server_ts"].(int64); ok && serverTs > 0 {
			offset = serverTs - s.now()
		}
		// Keep the offset inside the cached config so it survives offline
		// restarts.
		doc["time_offset"] = offset

		if raw, err := json.Marshal(doc); err == nil {
			s.persistState("sdk_config_cached", string(raw))
		}

		s.sdkConfigCached = doc
		s.sdkConfig = doc
		s.initAuthorized = true

	case resp == httpapi.Unauthorized:
		s.log.Warning("Initialize SDK failed - Unauthorized")
		s.initAuthorized = false

	default:
		switch resp {
		case httpapi.NoResponse, httpapi.RequestTimeout:
			s.log.Info("Init call (session start) failed - no response. Could be offline or timeout.")
		case httpapi.BadResponse, httpapi.JSONEncodeFailed, httpapi.JSONDecodeFailed:
			s.log.Info("Init call (session start) failed - bad response. Could be bad response from proxy or collector.")
		default:
			s.log.Info("Init call (session start) failed - bad request or unknown response.")
		}

		if s.sdkConfig == nil {
			if s.sdkConfigCached != nil {
				s.log.Info("Init call (session start) failed - using cached init values.")
				s.sdkConfig = s.sdkConfigCached
			} else {
				s.log.Info("Init call (session start) failed - using default init values.")
				s.sdkConfig = s.sdkConfigDefault
			}
		} else {
			s.log.Info("Init call (session start) failed - using cached init values.")
		}
		s.initAuthorized = true
	}

	s.clientServerTimeOffset = configOffset(s.SdkConfig())

	if configs, ok := s.SdkConfig()["configurations"].([]any); ok {
		s.PopulateConfigurations(configs)
	}
}

func configOffset(config map[string]any) int64 {
	switch v := config["time_offset"].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}

// loadCachedConfig restores the cached init document persisted by an earlier
// session.
func (s *State) loadCachedConfig(raw string) {
	if raw == "" {
		return
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		s.log.Debugf("Cached sdk config failed to decode: %v", err)
		return
	}
	s.sdkConfigCached = doc
}

// ClientTsAdjusted returns the wall clock shifted by the server-time offset.
// Adjusted values outside the collector's accepted ten-digit range fall back
// to the raw clock.
func (s *State) ClientTsAdjusted() int64 {
	clientTs := s.now()
	adjusted := clientTs + s.clientServerTimeOffset
	if validate.ClientTS(adjusted) {
		return adjusted
	}
	return clientTs
}

// EventAnnotations builds the default annotation set merged under every
// event.
func (s *State) EventAnnotations() map[string]any {
	annotations := map[string]any{
		"v":            2,
		"user_id":      s.Identifier(),
		"client_ts":    s.ClientTsAdjusted(),
		"sdk_version":  s.device.RelevantSdkVersion(),
		"os_version":   s.device.OSVersion(),
		"manufacturer": s.device.Manufacturer(),
		"device":       s.device.Model(),
		"platform":     s.device.Platform(),
		"session_id":   s.sessionID,
		"session_num":  s.sessionNum,
	}

	if ct := s.device.ConnectionType(); validate.ConnectionType(ct) {
		annotations["connection_type"] = ct
	}
	if ev := s.device.EngineVersion(); ev != "" {
		annotations["engine_version"] = ev
	}
	if s.build != "" {
		annotations["build"] = s.build
	}
	if s.facebookID != "" {
		annotations["facebook_id"] = s.facebookID
	}
	if s.gender != "" {
		annotations["gender"] = s.gender
	}
	if s.birthYear != 0 {
		annotations["birth_year"] = s.birthYear
	}
	return annotations
}

// SdkErrorAnnotations builds the reduced annotation set for the internal
// error side channel. No user or session identity is attached.
func (s *State) SdkErrorAnnotations() map[string]any {
	annotations := map[string]any{
		"v":            2,
		"category":     CategorySdkError,
		"sdk_version":  s.device.RelevantSdkVersion(),
		"os_version":   s.device.OSVersion(),
		"manufacturer": s.device.Manufacturer(),
		"device":       s.device.Model(),
		"platform":     s.device.Platform(),
	}
	if ct := s.device.ConnectionType(); validate.ConnectionType(ct) {
		annotations["connection_type"] = ct
	}
	if ev := s.device.EngineVersion(); ev != "" {
		annotations["engine_version"] = ev
	}
	return annotations
}

// InitAnnotations builds the init-handshake request body.
func (s *State) InitAnnotations() map[string]any {
	return map[string]any{
		"sdk_version": s.device.RelevantSdkVersion(),
		"os_version":  s.device.OSVersion(),
		"platform":    s.device.Platform(),
	}
}

// PopulateConfigurations rebuilds the remote-config snapshot from the init
// response's configuration tuples. A tuple is active iff its time window
// strictly contains the adjusted clock; missing bounds are open. Listeners
// fire once after the snapshot is swapped in.
func (s *State) PopulateConfigurations(configs []any) {
	now := s.ClientTsAdjusted()
	values := make(map[string]string)

	for _, raw := range configs {
		tuple, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		key, _ := tuple["key"].(string)
		if key == "" {
			continue
		}

		start := int64(math.MinInt64)
		if v, ok := tuple["start_ts"].(float64); ok {
			start = int64(v)
		}
		end := int64(math.MaxInt64)
		if v, ok := tuple["end_ts"].(float64); ok {
			end = int64(v)
		}

		if !(start < now && now < end) {
			continue
		}

		switch v := tuple["value"].(type) {
		case string:
			values[key] = v
		case float64:
			values[key] = trimFloat(v)
		}
	}

	s.remote.publish(values)
	s.log.Debugf("Remote configs populated: %d active", len(values))
}

// RemoteConfigValue returns the active remote-config value for key, or
// defaultValue when inactive or unknown. Safe to call from any goroutine.
func (s *State) RemoteConfigValue(key, defaultValue string) string {
	return s.remote.value(key, defaultValue)
}

// RemoteConfigReady reports whether a snapshot has been populated. Safe to
// call from any goroutine.
func (s *State) RemoteConfigReady() bool {
	return s.remote.isReady()
}

// AddRemoteConfigListener registers a callback fired after every snapshot
// (re)population. Safe to call from any goroutine.
func (s *State) AddRemoteConfigListener(fn func()) {
	s.remote.addListener(fn)
}

// Package device resolves the platform strings attached to every event.
// Values are computed once and cached; hosts may override any of them before
// initialization (engine bindings report their own model/manufacturer).
package device

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

// SdkVersion is the wire version string reported in annotations.
const SdkVersion = "go 1.0.0"

// Info provides the device/platform annotation strings. All getters are
// cheap and safe from any goroutine after construction.
type Info struct {
	mu sync.RWMutex

	platform       string
	osVersion      string
	manufacturer   string
	model          string
	writablePath   string
	connectionType string

	sdkWrapperVersion string
	engineVersion     string
}

// Detect builds an Info from the running platform. Fields the platform
// cannot determine stay "unknown" until the host overrides them.
func Detect() *Info {
	platform := buildPlatform()
	return &Info{
		platform:       platform,
		osVersion:      platform + " 0.0.0",
		manufacturer:   "unknown",
		model:          "unknown",
		connectionType: "lan",
		writablePath:   defaultWritablePath(),
	}
}

func defaultWritablePath() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "gamesignals")
	}
	return os.TempDir()
}

func buildPlatform() string {
	switch runtime.GOOS {
	case "darwin":
		return "mac_osx"
	default:
		return runtime.GOOS
	}
}

// Platform returns the build platform string.
func (i *Info) Platform() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.platform
}

// SetPlatform overrides the detected platform (engine bindings).
func (i *Info) SetPlatform(v string) {
	i.mu.Lock()
	i.platform = v
	i.mu.Unlock()
}

// OSVersion returns the operating-system version string.
func (i *Info) OSVersion() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.osVersion
}

// SetOSVersion overrides the detected OS version.
func (i *Info) SetOSVersion(v string) {
	i.mu.Lock()
	i.osVersion = v
	i.mu.Unlock()
}

// Manufacturer returns the device manufacturer string.
func (i *Info) Manufacturer() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.manufacturer
}

// SetManufacturer overrides the device manufacturer.
func (i *Info) SetManufacturer(v string) {
	i.mu.Lock()
	i.manufacturer = v
	i.mu.Unlock()
}

// Model returns the device model string.
func (i *Info) Model() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.model
}

// SetModel overrides the device model.
func (i *Info) SetModel(v string) {
	i.mu.Lock()
	i.model = v
	i.mu.Unlock()
}

// ConnectionType returns the current connection type (wwan/wifi/lan/offline).
func (i *Info) ConnectionType() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.connectionType
}

// SetConnectionType updates the reported connection type.
func (i *Info) SetConnectionType(v string) {
	i.mu.Lock()
	i.connectionType = v
	i.mu.Unlock()
}

// WritablePath returns the directory the store file lives under.
func (i *Info) WritablePath() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.writablePath
}

// SetWritablePath overrides the store directory.
func (i *Info) SetWritablePath(v string) {
	i.mu.Lock()
	i.writablePath = v
	i.mu.Unlock()
}

// EngineVersion returns the host game engine version, if set.
func (i *Info) EngineVersion() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.engineVersion
}

// SetEngineVersion records the host game engine version.
func (i *Info) SetEngineVersion(v string) {
	i.mu.Lock()
	i.engineVersion = v
	i.mu.Unlock()
}

// SdkWrapperVersion returns the wrapper SDK version, if set.
func (i *Info) SdkWrapperVersion() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.sdkWrapperVersion
}

// SetSdkWrapperVersion records the wrapper SDK version (engine bindings).
func (i *Info) SetSdkWrapperVersion(v string) {
	i.mu.Lock()
	i.sdkWrapperVersion = v
	i.mu.Unlock()
}

// RelevantSdkVersion prefers the wrapper version when an engine binding set
// one; otherwise the native version is reported.
func (i *Info) RelevantSdkVersion() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.sdkWrapperVersion != "" {
		return i.sdkWrapperVersion
	}
	return SdkVersion
}

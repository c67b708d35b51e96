package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfoGatedByToggle(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)

	l.Info("quiet by default")
	assert.Empty(t, buf.String())

	l.SetInfoLog(true)
	l.Info("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestWarningAlwaysLogs(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)

	l.Warning("something degraded")
	assert.Contains(t, buf.String(), "something degraded")
}

func TestVerboseToggleRestoresLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)

	l.SetVerboseLog(true)
	l.Verbose("payload dump")
	assert.Contains(t, buf.String(), "payload dump")

	// Disabling verbose must drop the logger back out of debug: neither
	// verbose nor plain debug output may leak afterwards.
	buf.Reset()
	l.SetVerboseLog(false)
	l.Verbose("hidden payload")
	l.Debug("hidden diagnostics")
	assert.Empty(t, buf.String())
}

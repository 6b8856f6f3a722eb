package main

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/battstat/pkg/config"
	"github.com/charlie0129/battstat/pkg/events"
	"github.com/charlie0129/battstat/pkg/monitor"
	"github.com/charlie0129/battstat/pkg/powerinfo"
	"github.com/charlie0129/battstat/pkg/utils/ptr"
	"github.com/charlie0129/battstat/pkg/version"
)

func init() {
	color.NoColor = true
}

func TestFormatMinutes(t *testing.T) {
	tests := []struct {
		minutes int
		want    string
	}{
		{-1, "unknown"},
		{0, "0m"},
		{59, "59m"},
		{60, "1h00m"},
		{125, "2h05m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatMinutes(tt.minutes), "minutes=%d", tt.minutes)
	}
}

func TestBuildStatusJSON(t *testing.T) {
	data := &statusData{
		status:  &powerinfo.CompositeStatus{Present: true, Charging: true, OnACPower: true, Percent: 42, Minutes: 73},
		backend: &monitor.Info{Backend: "upower", Composite: true, EventDriven: true},
		config:  &config.RawFileConfig{PollIntervalSeconds: ptr.To(5)},
	}

	out := buildStatusJSON(data)
	assert.Equal(t, "charging", out.Battery.State)
	require.NotNil(t, out.Battery.Minutes)
	assert.Equal(t, 73, *out.Battery.Minutes)
	assert.Equal(t, "upower", out.Backend.Name)
	require.NotNil(t, out.Configuration)
	assert.Equal(t, 5, out.Configuration.PollIntervalSeconds)
	assert.Equal(t, 10, out.Configuration.ACPollIntervalSeconds)
	assert.True(t, out.Configuration.Metrics)

	data.status.Minutes = -1
	data.config = nil
	out = buildStatusJSON(data)
	assert.Nil(t, out.Battery.Minutes)
	assert.Nil(t, out.Configuration)
}

func TestFormatStatusLine(t *testing.T) {
	line := formatStatusLine(events.StatusChangedEvent{
		Status: powerinfo.CompositeStatus{Present: true, Percent: 80, Minutes: 90},
	})
	assert.Contains(t, line, "80%")
	assert.Contains(t, line, "discharging")
	assert.Contains(t, line, "Time remaining: 1h30m")

	line = formatStatusLine(events.StatusChangedEvent{Status: powerinfo.NotPresent()})
	assert.Contains(t, line, "no battery")
}

// fakeDaemon serves canned responses on a unix socket.
func fakeDaemon(t *testing.T, status powerinfo.CompositeStatus) string {
	t.Helper()

	dir, err := os.MkdirTemp("", "battstat")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	writeJSON := func(v any) http.HandlerFunc {
		return func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(v)
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/status", writeJSON(status))
	mux.Handle("/backend", writeJSON(monitor.Info{Backend: "acpi", Composite: true, NeedsPolling: true}))
	mux.Handle("/config", writeJSON(config.RawFileConfig{AllowNonRootAccess: ptr.To(true)}))
	mux.Handle("/version", writeJSON(version.Get()))

	socket := filepath.Join(dir, "d.sock")
	l, err := net.Listen("unix", socket)
	require.NoError(t, err)

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: time.Second}
	go func() { _ = srv.Serve(l) }()
	t.Cleanup(func() { _ = srv.Close() })

	return socket
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var buf bytes.Buffer
	cmd := NewCommand()
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestStatusCommand(t *testing.T) {
	socket := fakeDaemon(t, powerinfo.CompositeStatus{Present: true, OnACPower: true, Percent: 100, Minutes: -1})

	out, err := runCommand(t, "--daemon-socket", socket, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Current charge: 100%")
	assert.Contains(t, out, "State: full")
	assert.Contains(t, out, "Name: acpi")

	out, err = runCommand(t, "--daemon-socket", socket, "status", "--json")
	require.NoError(t, err)

	var got statusJSON
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 100, got.Battery.Percent)
	assert.Equal(t, "full", got.Battery.State)
	assert.Nil(t, got.Battery.Minutes)
	require.NotNil(t, got.Configuration)
	assert.True(t, got.Configuration.AllowNonRootAccess)
}

func TestStatusCommandDaemonNotRunning(t *testing.T) {
	_, err := runCommand(t, "--daemon-socket", filepath.Join(t.TempDir(), "missing.sock"), "status")
	require.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "--daemon-socket", filepath.Join(t.TempDir(), "missing.sock"), "version")
	require.NoError(t, err)
	assert.Contains(t, out, version.Version)
}

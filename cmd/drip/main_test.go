package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/drip/pkg/client"
	"github.com/charlie0129/drip/pkg/config"
	"github.com/charlie0129/drip/pkg/daemon"
	"github.com/charlie0129/drip/pkg/events"
	"github.com/charlie0129/drip/pkg/relay"
	"github.com/charlie0129/drip/pkg/watering"
)

// useTestDaemon points the CLI at an in-process daemon for the rest of the test.
func useTestDaemon(t *testing.T) *daemon.Daemon {
	t.Helper()

	gpio := relay.NewMock(nil)
	require.NoError(t, gpio.Open())

	conf := config.NewFileFromConfig(nil, filepath.Join(t.TempDir(), "drip.json"))
	d, err := daemon.New(conf, gpio, nil)
	require.NoError(t, err)

	srv := httptest.NewServer(d.Handler())
	prevAddr, prevLevel := daemonAddr, logLevel
	daemonAddr = srv.URL
	t.Cleanup(func() {
		srv.Close()
		daemonAddr, logLevel = prevAddr, prevLevel
		require.NoError(t, setupLogger())
	})

	return d
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := executeArgs(&out, args)
	return out.String(), err
}

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0:00:00"},
		{-5, "0:00:00"},
		{61, "0:01:01"},
		{10798, "2:59:58"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatSeconds(tt.in), "formatSeconds(%d)", tt.in)
	}
}

func TestFormatEvent(t *testing.T) {
	started := events.Event{
		Name: events.WateringState,
		Data: json.RawMessage(`{"from":"Idle","to":"Running","reason":"started","interval":"3hrs","remainingSeconds":10800}`),
	}
	assert.Contains(t, formatEvent(started), "watering started: Idle -> Running (3hrs, 3:00:00 left)")

	stopped := events.Event{
		Name: events.WateringState,
		Data: json.RawMessage(`{"from":"Running","to":"Idle","reason":"stopped","previous":"1hr"}`),
	}
	assert.Contains(t, formatEvent(stopped), "watering stopped: Running -> Idle (was 1hr)")

	schedErr := events.Event{
		Name: events.ScheduleError,
		Data: json.RawMessage(`{"message":"watering already in progress"}`),
	}
	assert.Contains(t, formatEvent(schedErr), "schedule error: watering already in progress")

	unknown := events.Event{Name: "something.else", Data: json.RawMessage(`{}`)}
	assert.Equal(t, "something.else {}", formatEvent(unknown))
}

func TestMarshalYAMLUsesJSONNames(t *testing.T) {
	b, err := marshalYAML(struct {
		RemainingSeconds int64  `json:"remainingSeconds"`
		IntervalSet      string `json:"intervalSet"`
	}{RemainingSeconds: 42, IntervalSet: "1hr"})
	require.NoError(t, err)
	assert.Equal(t, "intervalSet: 1hr\nremainingSeconds: 42\n", string(b))
}

func TestStartStatusStop(t *testing.T) {
	d := useTestDaemon(t)

	_, err := run(t, "start", "2hrs")
	require.NoError(t, err)
	assert.Equal(t, "2hrs", d.Timer().Status().Interval.Token())

	out, err := run(t, "status", "--json")
	require.NoError(t, err)

	var st statusJSON
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	require.NotNil(t, st.Watering)
	assert.Equal(t, "2hrs", st.Watering.Interval)
	assert.Greater(t, st.Watering.RemainingSeconds, int64(7000))
	require.NotNil(t, st.Configuration)

	out, err = run(t, "status", "--yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "watering:")
	assert.Contains(t, out, "interval: 2hrs")

	_, err = run(t, "status", "--json", "--yaml")
	require.Error(t, err)

	out, err = run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Watering status:")
	assert.Contains(t, out, "2hrs")

	_, err = run(t, "off")
	require.NoError(t, err)
	assert.Equal(t, int64(0), d.Timer().Status().RemainingSeconds)
}

func TestStartRejectsUnknownInterval(t *testing.T) {
	d := useTestDaemon(t)

	_, err := run(t, "start", "4hrs")
	require.Error(t, err)
	assert.ErrorIs(t, err, watering.ErrUnknownInterval)
	assert.Equal(t, 1, strings.Count(err.Error(), `"4hrs"`), "token repeated in %q", err)
	assert.Equal(t, 1, strings.Count(err.Error(), "3hrs"), "interval list repeated in %q", err)
	assert.Equal(t, int64(0), d.Timer().Status().RemainingSeconds)

	_, err = run(t, "start")
	require.Error(t, err)
}

func TestScheduleCommands(t *testing.T) {
	useTestDaemon(t)

	out, err := run(t, "schedule")
	require.NoError(t, err)
	assert.Contains(t, out, "Watering schedule is not set.")

	out, err = run(t, "schedule", "0 6 * * *", "--interval", "3hrs")
	require.NoError(t, err)
	assert.Contains(t, out, "Watering scheduled for 3hrs.")
	assert.Contains(t, out, "06:00:00")

	out, err = run(t, "schedule", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Schedule '0 6 * * *' waters for 3hrs.")

	_, err = run(t, "schedule", "0 6 * * *", "--interval", "5hrs")
	require.Error(t, err)

	_, err = run(t, "schedule", "postpone", "soon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")

	out, err = run(t, "schedule", "disable")
	require.NoError(t, err)
	assert.Contains(t, out, "Watering schedule disabled.")
}

func TestHistoryWithoutStore(t *testing.T) {
	useTestDaemon(t)

	_, err := run(t, "history")
	require.Error(t, err)
	assert.ErrorIs(t, err, client.ErrUnavailable)

	_, err = run(t, "history", "--limit", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be positive")
}

func TestRunShellLine(t *testing.T) {
	d := useTestDaemon(t)

	var out bytes.Buffer
	assert.False(t, runShellLine(&out, "   "))
	assert.Empty(t, out.String())

	assert.False(t, runShellLine(&out, "shell"))
	assert.Contains(t, out.String(), "Already in the drip shell")

	out.Reset()
	assert.False(t, runShellLine(&out, "daemon"))
	assert.Contains(t, out.String(), "cannot be run from the shell")

	out.Reset()
	assert.False(t, runShellLine(&out, `start "1hr`))
	assert.Contains(t, out.String(), "parse error")

	out.Reset()
	assert.False(t, runShellLine(&out, "start 1hr"))
	assert.Equal(t, "1hr", d.Timer().Status().Interval.Token())

	out.Reset()
	assert.False(t, runShellLine(&out, "help"))
	assert.Contains(t, out.String(), "Shell built-ins:")

	out.Reset()
	assert.True(t, runShellLine(&out, "exit"))
	assert.Equal(t, "Bye!\n", out.String())
}

func TestHandleShellLog(t *testing.T) {
	useTestDaemon(t)

	var out bytes.Buffer
	require.NoError(t, handleShellLog(&out, []string{"--level", "debug"}))
	assert.Equal(t, "debug", logLevel)
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())

	require.NoError(t, handleShellLog(&out, []string{"warn"}))
	assert.Equal(t, "warn", logLevel)

	out.Reset()
	require.NoError(t, handleShellLog(&out, []string{"--show"}))
	assert.Equal(t, "log level: warn\n", out.String())

	assert.Error(t, handleShellLog(&out, []string{"--level", "loud"}))
	assert.Equal(t, "warn", logLevel)

	err := handleShellLog(&out, nil)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "usage:"))
}

func TestDaemonCommandHelp(t *testing.T) {
	cmd := NewDaemonCommand()
	assert.True(t, cmd.Hidden)
	assert.Contains(t, cmd.Long, configPath)
	assert.Contains(t, cmd.Long, unixSocketPath)
	assert.Contains(t, cmd.Long, "SIGHUP")
	assert.NotNil(t, cmd.Flags().Lookup("always-allow-non-root-access"))

	_, err := run(t, "daemon", "extra")
	require.Error(t, err)
}

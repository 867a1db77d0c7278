package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/dayroll/internal/config"
	"git.home.luguber.info/inful/dayroll/internal/daemon"
	ferrors "git.home.luguber.info/inful/dayroll/internal/foundation/errors"
	"git.home.luguber.info/inful/dayroll/internal/server"
	"git.home.luguber.info/inful/dayroll/internal/state"
)

func writeConfig(t *testing.T, backend string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "dayroll.yaml")
	body := "timezone: UTC\n" +
		"data_dir: " + filepath.Join(dir, "data") + "\n" +
		"store:\n  backend: " + backend + "\n" +
		"watch:\n  clock: false\n  timezone: false\n" +
		"metrics:\n  enabled: false\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, root *CLI, cmd interface {
	Run(*Global, *CLI) error
}) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := cmd.Run(&Global{Out: &out}, root)
	return out.String(), err
}

func TestInitWritesLoadableConfig(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, &CLI{}, &InitCmd{Output: dir})
	require.NoError(t, err)
	assert.Contains(t, out, "initialized successfully")

	cfg, err := config.Load(filepath.Join(dir, "dayroll.yaml"))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultCanonicalNamespace, cfg.Store.CanonicalNamespace)

	_, err = run(t, &CLI{}, &InitCmd{Output: dir})
	require.Error(t, err)
	_, err = run(t, &CLI{}, &InitCmd{Output: dir, Force: true})
	require.NoError(t, err)
}

func TestSetProgressThenStatusOffline(t *testing.T) {
	root := &CLI{Config: writeConfig(t, "json")}

	out, err := run(t, root, &SetProgressCmd{Percent: 140, HasGoal: true})
	require.NoError(t, err)
	var saved state.DailyState
	require.NoError(t, json.Unmarshal([]byte(out), &saved))
	assert.Equal(t, 100, saved.Percent)
	assert.True(t, saved.HasGoal)

	out, err = run(t, root, &StatusCmd{})
	require.NoError(t, err)
	var ds daemon.DiagnosticState
	require.NoError(t, json.Unmarshal([]byte(out), &ds))
	require.NotNil(t, ds.DailyState)
	assert.Equal(t, 100, ds.DailyState.Percent)
	assert.True(t, ds.DailyStateValid)
	assert.Equal(t, "UTC", ds.Timezone)
}

func TestTriggerOfflineKeepsTodayProgress(t *testing.T) {
	root := &CLI{Config: writeConfig(t, "json")}

	_, err := run(t, root, &SetProgressCmd{Percent: 40})
	require.NoError(t, err)

	out, err := run(t, root, &TriggerCmd{Cause: "user_present"})
	require.NoError(t, err)
	assert.Equal(t, "triggered user_foregrounded\n", out)

	out, err = run(t, root, &StatusCmd{})
	require.NoError(t, err)
	var ds daemon.DiagnosticState
	require.NoError(t, json.Unmarshal([]byte(out), &ds))
	require.NotNil(t, ds.DailyState)
	assert.Equal(t, 40, ds.DailyState.Percent)
	require.NotNil(t, ds.LastReconciliation)
}

func TestTriggerRejectsUnknownCause(t *testing.T) {
	root := &CLI{Config: writeConfig(t, "json")}
	_, err := run(t, root, &TriggerCmd{Cause: "lunar_eclipse"})
	require.Error(t, err)
	classified, ok := ferrors.AsClassified(err)
	require.True(t, ok)
	assert.Equal(t, ferrors.CategoryValidation, classified.Category())
}

func TestClearAllOfflineRemovesProgress(t *testing.T) {
	root := &CLI{Config: writeConfig(t, "json")}

	_, err := run(t, root, &SetProgressCmd{Percent: 70, HasGoal: true})
	require.NoError(t, err)

	out, err := run(t, root, &ClearCmd{All: true})
	require.NoError(t, err)
	assert.Equal(t, "cleared all\n", out)

	out, err = run(t, root, &StatusCmd{})
	require.NoError(t, err)
	var ds daemon.DiagnosticState
	require.NoError(t, json.Unmarshal([]byte(out), &ds))
	// clear_all refreshes the display with zero progress but never rewrites the store.
	assert.Nil(t, ds.DailyState)
}

func TestDebugWakeNeedsRemote(t *testing.T) {
	_, err := run(t, &CLI{Config: writeConfig(t, "json")}, &DebugWakeCmd{Seconds: 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--remote")
}

func TestMissingConfigFails(t *testing.T) {
	_, err := run(t, &CLI{Config: filepath.Join(t.TempDir(), "nope.yaml")}, &StatusCmd{})
	require.Error(t, err)
}

func TestRemoteCommandsTalkToRunningDaemon(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "memory"))
	require.NoError(t, err)

	d, err := daemon.New(cfg)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, d.Start(ctx))
	t.Cleanup(func() { _ = d.Stop(context.Background()) })

	srv := server.New("127.0.0.1:0", d, d.MetricsHandler())
	require.NoError(t, srv.Start(ctx))
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })

	root := &CLI{Remote: srv.Addr()}

	_, err = run(t, root, &SetProgressCmd{Percent: 55})
	require.NoError(t, err)

	out, err := run(t, root, &TriggerCmd{Cause: "date_changed"})
	require.NoError(t, err)
	assert.Equal(t, "triggered date_changed\n", out)

	out, err = run(t, root, &DebugWakeCmd{Seconds: 30})
	require.NoError(t, err)
	assert.Contains(t, out, "debug")

	out, err = run(t, root, &StatusCmd{})
	require.NoError(t, err)
	var ds daemon.DiagnosticState
	require.NoError(t, json.Unmarshal([]byte(out), &ds))
	require.NotNil(t, ds.DailyState)
	assert.Equal(t, 55, ds.DailyState.Percent)
	assert.NotEmpty(t, ds.Armed)

	_, err = run(t, root, &RefreshCmd{})
	require.NoError(t, err)
	_, err = run(t, root, &ClearCmd{})
	require.NoError(t, err)
}

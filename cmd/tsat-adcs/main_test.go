package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tsat-adcs/internal/adcs"
	"tsat-adcs/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestCheckConfig_PrintsDefaults(t *testing.T) {
	out, err := execute(t, "check-config", "--config", writeConfig(t, "controller:\n  gain: 2\n"))
	require.NoError(t, err)
	assert.Contains(t, out, "# config ok")
	assert.Contains(t, out, "gain: 2")
	assert.Contains(t, out, "spi_device: /dev/spidev0.0")
}

func TestCheckConfig_Invalid(t *testing.T) {
	_, err := execute(t, "check-config", "--config", writeConfig(t, "controller:\n  alpha: 2\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "controller.alpha must be in (0,1)")
}

func TestSimThenSummary(t *testing.T) {
	rec := filepath.Join(t.TempDir(), "run.log")
	out, err := execute(t, "sim", "--duration", "30s", "--record", rec)
	require.NoError(t, err)
	assert.Contains(t, out, "simulated: 30s (3000 steps)")
	assert.Contains(t, out, "cycles: 21")

	out, err = execute(t, "summary", rec)
	require.NoError(t, err)
	assert.Contains(t, out, "segments: 1")
	assert.Contains(t, out, "cycles: 21")
}

func TestSummary_RequiresFile(t *testing.T) {
	_, err := execute(t, "summary")
	require.Error(t, err)
	_, err = execute(t, "summary", filepath.Join(t.TempDir(), "missing.log"))
	require.Error(t, err)
}

func TestRun_HardwareOpenFails(t *testing.T) {
	old := openHardware
	openHardware = func(config.Config) (*adcs.Hardware, error) {
		return nil, errors.New("no spidev")
	}
	t.Cleanup(func() { openHardware = old })

	_, err := execute(t, "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no spidev")
}

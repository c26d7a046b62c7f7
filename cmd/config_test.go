package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/fedsim/sim"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadRunConfig_OverlaysDefaults(t *testing.T) {
	// GIVEN a file setting a few options
	path := writeYAML(t, `
num_clients: 20
frac: 0.25
client_selection: update_norm
lr_interval: [0.3]
iid: true
`)

	// WHEN loaded
	cfg, err := LoadRunConfig(path)

	// THEN set keys override and the rest keep their defaults
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.NumClients)
	assert.Equal(t, 0.25, cfg.Frac)
	assert.Equal(t, sim.PolicyUpdateNorm, cfg.ClientSelection)
	assert.Equal(t, []float64{0.3}, cfg.LRInterval)
	assert.True(t, cfg.IID)
	assert.Equal(t, DefaultRunConfig().Rounds, cfg.Rounds)
	assert.Equal(t, DefaultRunConfig().LR, cfg.LR)
}

func TestLoadRunConfig_RejectsUnknownKeys(t *testing.T) {
	_, err := LoadRunConfig(writeYAML(t, "num_client: 20\n"))
	assert.Error(t, err)
}

func TestLoadRunConfig_MissingFile(t *testing.T) {
	_, err := LoadRunConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestRunConfig_SimConfig(t *testing.T) {
	cfg := DefaultRunConfig()
	cfg.CandidateMode = "weighted"
	cfg.CandidateFrac = 0.3

	sc := cfg.SimConfig()

	assert.Equal(t, cfg.NumClients, sc.NumClients)
	assert.Equal(t, sim.CandidateModeWeighted, sc.Sampling.CandidateMode)
	assert.Equal(t, 0.3, sc.Sampling.CandidateFraction)
	assert.Equal(t, cfg.LocalBS, sc.Local.BatchSize)
	assert.Equal(t, cfg.LRInterval, sc.Schedule.LRIntervals)
	assert.Equal(t, 10, sc.SelectCount())
}

func TestRunConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RunConfig)
		ok     bool
	}{
		{"defaults", func(*RunConfig) {}, true},
		{"unknown policy", func(c *RunConfig) { c.ClientSelection = "oort" }, false},
		{"unknown dataset", func(c *RunConfig) { c.Dataset = "cifar" }, false},
		{"too many classes per client", func(c *RunConfig) { c.ClassesPerClient = 11 }, false},
		{"classes per client ignored when iid", func(c *RunConfig) { c.IID = true; c.ClassesPerClient = 0 }, true},
		{"negative test size", func(c *RunConfig) { c.TestSize = -1 }, false},
		{"zero rounds", func(c *RunConfig) { c.Rounds = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultRunConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestEnvConfig_Apply(t *testing.T) {
	none := func(string) bool { return false }
	all := func(string) bool { return true }

	tests := []struct {
		name    string
		env     envConfig
		changed func(string) bool
		want    func(*RunConfig)
	}{
		{"unset leaves config", envConfig{Workers: -1}, none, func(*RunConfig) {}},
		{"set overrides", envConfig{LogLevel: "debug", ResultDir: "/tmp/out", Workers: 4}, none, func(c *RunConfig) {
			c.LogLevel, c.ResultDir, c.Workers = "debug", "/tmp/out", 4
		}},
		{"explicit flags win", envConfig{LogLevel: "debug", ResultDir: "/tmp/out", Workers: 4}, all, func(*RunConfig) {}},
		{"zero workers is a value", envConfig{Workers: 0}, none, func(c *RunConfig) { c.Workers = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DefaultRunConfig()
			tt.env.apply(&got, tt.changed)
			want := DefaultRunConfig()
			tt.want(&want)
			assert.Equal(t, want, got)
		})
	}
}

func TestLoadEnvConfig_ReadsPrefixedVariables(t *testing.T) {
	t.Setenv("FEDSIM_LOG_LEVEL", "warn")
	t.Setenv("FEDSIM_WORKERS", "3")

	e, err := loadEnvConfig()

	require.NoError(t, err)
	assert.Equal(t, "warn", e.LogLevel)
	assert.Equal(t, 3, e.Workers)
	assert.Empty(t, e.ResultDir)
}

func TestLoadEnvConfig_InvalidNumber(t *testing.T) {
	t.Setenv("FEDSIM_WORKERS", "many")
	_, err := loadEnvConfig()
	assert.Error(t, err)
}

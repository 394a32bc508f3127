package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jules02/NLQ-Agent/internal/config"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, int64(1), config.DefaultApproverID)
	assert.Equal(t, config.DefaultApproverID, cfg.Leave.DefaultApproverID)
	assert.Equal(t, config.DefaultDriver, cfg.Database.Driver)
	assert.Equal(t, config.DefaultModel, cfg.Model.Name)
	assert.Equal(t, config.DefaultMaxSteps, cfg.Model.MaxSteps)
	assert.Equal(t, config.DefaultThreshold, cfg.Leave.Threshold)
	assert.Equal(t, config.DefaultExitKeyword, cfg.Chat.ExitKeyword)
	assert.Equal(t, config.DefaultPrompt, cfg.Chat.Prompt)
	assert.Equal(t, config.DefaultServerBase, cfg.Server.BasePath)
	assert.Zero(t, cfg.Model.Temperature)
}

func TestFromYAMLOverridesDefaults(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`
leave:
  default_approver_id: 7
  threshold: 33.5
  location: Seville,ES
weather:
  timeout: 15s
`))
	require.NoError(t, err)
	assert.Equal(t, int64(7), cfg.Leave.DefaultApproverID)
	assert.Equal(t, 33.5, cfg.Leave.Threshold)
	assert.Equal(t, "Seville,ES", cfg.Leave.Location)
	assert.Equal(t, 15*time.Second, cfg.Weather.Timeout)
	assert.Equal(t, config.DefaultModel, cfg.Model.Name)
}

func TestValidate(t *testing.T) {
	_, err := config.FromYAML([]byte("database:\n  driver: postgres\n"))
	assert.ErrorContains(t, err, "not supported")

	_, err = config.FromYAML([]byte("database:\n  driver: mysql\n  host: db\n"))
	assert.ErrorContains(t, err, "mysql requires")

	_, err = config.FromYAML([]byte("leave:\n  default_approver_id: 0\n"))
	assert.ErrorContains(t, err, "default_approver_id")

	_, err = config.FromYAML([]byte("chat:\n  exit_keyword: \"\"\n"))
	assert.ErrorContains(t, err, "exit_keyword")

	_, err = config.FromYAML([]byte("model: [not, a, map]"))
	assert.ErrorContains(t, err, "invalid config yaml")
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(config.Path(dir), []byte("leave:\n  location: Paris,FR\n"), 0o644))
	t.Setenv("DB_DRIVER", "mysql")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_USER", "nlq")
	t.Setenv("DB_NAME", "hr")
	t.Setenv("DB_PORT", "3307")
	t.Setenv("GOOGLE_API_KEY", "g-key")
	t.Setenv("NLQ_DEFAULT_APPROVER_ID", "42")

	cfg, err := config.Load(viper.New(), dir, "")
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 3307, cfg.Database.Port)
	assert.Equal(t, "g-key", cfg.Model.APIKey)
	assert.Equal(t, int64(42), cfg.Leave.DefaultApproverID)
	assert.Equal(t, "Paris,FR", cfg.Leave.Location)
	assert.NoError(t, cfg.RequireModel())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("NLQ_LEAVE_LOCATION=Oslo,NO\n"), 0o644))
	t.Setenv("NLQ_LEAVE_LOCATION", "")
	os.Unsetenv("NLQ_LEAVE_LOCATION")

	cfg, err := config.Load(viper.New(), dir, "")
	require.NoError(t, err)
	assert.Equal(t, "Oslo,NO", cfg.Leave.Location)
}

func TestRequireKeys(t *testing.T) {
	cfg := config.Default()
	assert.ErrorIs(t, cfg.RequireModel(), config.ErrMissingModelKey)
	assert.ErrorIs(t, cfg.RequireWeather(), config.ErrMissingWeatherKey)
	cfg.Weather.APIKey = "w"
	assert.NoError(t, cfg.RequireWeather())
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := config.Load(viper.New(), t.TempDir(), filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

package hotswap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("should_load_yaml_config", func(t *testing.T) {
		path := writeTempFile(t, "hotswap.yaml", `
hookTimeout: 2s
capabilityTimeout: 45s
maxRollbackPointsPerModule: 5
retentionSchedule: "*/10 * * * *"
retentionKeep: 3
manifestPath: /etc/hotswap/manifest.yaml
`)

		config, err := LoadConfig(path)
		require.NoError(t, err)

		assert.Equal(t, 2*time.Second, config.HookTimeout.Std())
		assert.Equal(t, 45*time.Second, config.CapabilityTimeout.Std())
		assert.Equal(t, 5, config.MaxRollbackPointsPerModule)
		assert.Equal(t, "*/10 * * * *", config.RetentionSchedule)
		assert.Equal(t, 3, config.RetentionKeep)
		assert.Equal(t, "/etc/hotswap/manifest.yaml", config.ManifestPath)
	})

	t.Run("should_load_toml_config", func(t *testing.T) {
		path := writeTempFile(t, "hotswap.toml", `
hookTimeout = "2s"
capabilityTimeout = "45s"
maxRollbackPointsPerModule = 5
retentionKeep = 3
`)

		config, err := LoadConfig(path)
		require.NoError(t, err)

		assert.Equal(t, 2*time.Second, config.HookTimeout.Std())
		assert.Equal(t, 45*time.Second, config.CapabilityTimeout.Std())
		assert.Equal(t, 5, config.MaxRollbackPointsPerModule)
	})

	t.Run("should_keep_defaults_for_absent_fields", func(t *testing.T) {
		path := writeTempFile(t, "hotswap.yaml", `retentionKeep: 7`)

		config, err := LoadConfig(path)
		require.NoError(t, err)

		defaults := DefaultConfig()
		assert.Equal(t, defaults.HookTimeout, config.HookTimeout)
		assert.Equal(t, defaults.CapabilityTimeout, config.CapabilityTimeout)
		assert.Equal(t, 7, config.RetentionKeep)
	})

	t.Run("should_reject_unsupported_extension", func(t *testing.T) {
		path := writeTempFile(t, "hotswap.json", `{}`)

		_, err := LoadConfig(path)
		assert.ErrorIs(t, err, ErrUnsupportedConfigFormat)
	})

	t.Run("should_error_on_missing_file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("should_error_on_malformed_yaml", func(t *testing.T) {
		path := writeTempFile(t, "hotswap.yaml", "hookTimeout: [broken")
		_, err := LoadConfig(path)
		assert.Error(t, err)
	})
}

func TestEnvOverrides(t *testing.T) {
	t.Run("should_override_from_environment", func(t *testing.T) {
		t.Setenv("HOTSWAP_HOOK_TIMEOUT", "250ms")
		t.Setenv("HOTSWAP_MAX_ROLLBACK_POINTS", "42")
		t.Setenv("HOTSWAP_MANIFEST_PATH", "/var/run/manifest.yaml")

		path := writeTempFile(t, "hotswap.yaml", `
hookTimeout: 2s
maxRollbackPointsPerModule: 5
`)

		config, err := LoadConfig(path)
		require.NoError(t, err)

		assert.Equal(t, 250*time.Millisecond, config.HookTimeout.Std())
		assert.Equal(t, 42, config.MaxRollbackPointsPerModule)
		assert.Equal(t, "/var/run/manifest.yaml", config.ManifestPath)
	})

	t.Run("should_ignore_unset_variables", func(t *testing.T) {
		path := writeTempFile(t, "hotswap.yaml", `retentionKeep: 7`)

		config, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, 7, config.RetentionKeep)
	})

	t.Run("should_error_on_unparseable_value", func(t *testing.T) {
		t.Setenv("HOTSWAP_HOOK_TIMEOUT", "not-a-duration")

		path := writeTempFile(t, "hotswap.yaml", `retentionKeep: 7`)
		_, err := LoadConfig(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "HookTimeout")
	})
}

func TestDurationMarshalling(t *testing.T) {
	t.Run("should_round_trip_text", func(t *testing.T) {
		d := Duration(90 * time.Second)
		text, err := d.MarshalText()
		require.NoError(t, err)
		assert.Equal(t, "1m30s", string(text))

		var parsed Duration
		require.NoError(t, parsed.UnmarshalText(text))
		assert.Equal(t, d, parsed)
	})

	t.Run("should_reject_invalid_text", func(t *testing.T) {
		var d Duration
		assert.Error(t, d.UnmarshalText([]byte("soon")))
	})
}

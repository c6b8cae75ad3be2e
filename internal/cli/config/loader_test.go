package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catmigrate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	ResetConfig()

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Source.Type)
	assert.Equal(t, "postgres", cfg.Destination.Type)
	assert.Equal(t, DefaultAdminUser, cfg.AdminUser)
	assert.Equal(t, DefaultFallbackNamespace, cfg.FallbackNamespace)
	assert.Equal(t, DefaultCatchallDataset, cfg.CatchallDataset)
	assert.Equal(t, DefaultBatchSize, cfg.BatchSize)
	assert.Equal(t, DefaultStateFile, cfg.StatePath)
	assert.False(t, cfg.Verbose)
}

func TestLoadConfig_FromFile(t *testing.T) {
	ResetConfig()

	path := writeConfigFile(t, `
source:
  host: old-db.example.com
  port: 5433
  database: metacat_legacy
  username: reader
destination:
  host: new-db.example.com
  database: metacat
  username: migrator
admin_user: dba
fallback_namespace: legacy
batch_size: 100
`)

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "old-db.example.com", cfg.Source.Host)
	assert.Equal(t, 5433, cfg.Source.Port)
	assert.Equal(t, "metacat_legacy", cfg.Source.Database)
	assert.Equal(t, "reader", cfg.Source.Username)
	assert.Equal(t, "new-db.example.com", cfg.Destination.Host)
	assert.Equal(t, "dba", cfg.AdminUser)
	assert.Equal(t, "legacy", cfg.FallbackNamespace)
	assert.Equal(t, "all", cfg.CatchallDataset)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, path, GetConfigFileUsed())
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	ResetConfig()

	path := writeConfigFile(t, `
source:
  host: from-file
admin_user: from_file
`)

	t.Setenv("CATMIGRATE_SOURCE__HOST", "from-env")
	t.Setenv("CATMIGRATE_ADMIN_USER", "from_env")

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Source.Host)
	assert.Equal(t, "from_env", cfg.AdminUser)
}

func TestLoadConfig_FlagsOverrideEnv(t *testing.T) {
	ResetConfig()

	t.Setenv("CATMIGRATE_FALLBACK_NAMESPACE", "from-env")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("fallback-namespace", "", "")
	flags.String("state", "", "")
	require.NoError(t, flags.Parse([]string{
		"--fallback-namespace", "from-flag",
		"--state", "custom/state.db",
	}))

	cfg, err := LoadConfig("", flags)
	require.NoError(t, err)

	assert.Equal(t, "from-flag", cfg.FallbackNamespace)
	assert.Equal(t, "custom/state.db", cfg.StatePath)
}

func TestLoadConfig_ExpandsCredentialEnvVars(t *testing.T) {
	ResetConfig()

	path := writeConfigFile(t, `
source:
  password: ${LEGACY_DB_PASSWORD}
destination:
  password: ${NEW_DB_PASSWORD}
`)

	t.Setenv("LEGACY_DB_PASSWORD", "s3cret")
	t.Setenv("NEW_DB_PASSWORD", "hunter2")

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Source.Password)
	assert.Equal(t, "hunter2", cfg.Destination.Password)
}

func TestLoadConfig_UnexpandedVarKept(t *testing.T) {
	ResetConfig()

	path := writeConfigFile(t, `
source:
  password: ${DOES_NOT_EXIST_XYZ}
`)

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "${DOES_NOT_EXIST_XYZ}", cfg.Source.Password)
}

func TestLoadConfig_InvalidStoreType(t *testing.T) {
	ResetConfig()

	path := writeConfigFile(t, `
source:
  type: oracle
`)

	_, err := LoadConfig(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid source configuration")
}

func TestLoadConfig_EmptyIdentityRejected(t *testing.T) {
	tests := []struct {
		name   string
		yaml   string
		errMsg string
	}{
		{
			name:   "empty admin user",
			yaml:   "admin_user: \"\"\n",
			errMsg: "admin_user",
		},
		{
			name:   "empty fallback namespace",
			yaml:   "fallback_namespace: \"\"\n",
			errMsg: "fallback_namespace",
		},
		{
			name:   "empty catchall dataset",
			yaml:   "catchall_dataset: \"\"\n",
			errMsg: "catchall_dataset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ResetConfig()
			path := writeConfigFile(t, tt.yaml)

			_, err := LoadConfig(path, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadConfig_BatchSizeFloor(t *testing.T) {
	ResetConfig()

	path := writeConfigFile(t, "batch_size: -1\n")

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultBatchSize, cfg.BatchSize)
}

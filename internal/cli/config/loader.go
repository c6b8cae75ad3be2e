package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/leapstack-labs/catmigrate/internal/adapter"
)

// Package-level koanf instance and config file tracking
var (
	k              = koanf.New(".")
	configFileUsed string
)

// findConfigFile finds the config file to use.
// Priority: explicit path > catmigrate.yaml > catmigrate.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat("catmigrate.yaml"); err == nil {
		return "catmigrate.yaml"
	}
	if _, err := os.Stat("catmigrate.yml"); err == nil {
		return "catmigrate.yml"
	}
	return ""
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
}

// LoadConfig loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	// Reset koanf for fresh load
	k = koanf.New(".")

	// 1. Load defaults
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"source.type":        DefaultStoreType,
		"destination.type":   DefaultStoreType,
		"admin_user":         DefaultAdminUser,
		"fallback_namespace": DefaultFallbackNamespace,
		"catchall_dataset":   DefaultCatchallDataset,
		"batch_size":         DefaultBatchSize,
		"state_path":         DefaultStateFile,
		"verbose":            false,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Find and load config file
	configFileUsed = findConfigFile(cfgFile)
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
	}

	// 3. Load environment variables (CATMIGRATE_ prefix)
	// Double underscore separates nesting levels so single underscores
	// survive in key names:
	//   CATMIGRATE_SOURCE__HOST  -> source.host
	//   CATMIGRATE_ADMIN_USER    -> admin_user
	if err := k.Load(env.Provider("CATMIGRATE_", ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, "CATMIGRATE_"))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Load flags (highest priority - overrides env vars and config file)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			// Only load flags that were explicitly set
			if !f.Changed {
				return "", nil
			}
			// Transform kebab-case to snake_case for config keys
			key := strings.ReplaceAll(f.Name, "-", "_")

			// The CLI uses --state for brevity; the config key is state_path
			if key == "state" {
				return "state_path", posflag.FlagVal(flags, f)
			}

			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Expand environment variables in credential fields
	expandStoreEnvVars(&cfg.Source)
	expandStoreEnvVars(&cfg.Destination)

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate rejects configurations the pipeline cannot run with.
func validate(cfg *Config) error {
	if !adapter.IsRegistered(cfg.Source.Type) {
		return fmt.Errorf("invalid source configuration: %w",
			&adapter.UnknownAdapterError{Type: cfg.Source.Type, Available: adapter.ListAdapters()})
	}
	if !adapter.IsRegistered(cfg.Destination.Type) {
		return fmt.Errorf("invalid destination configuration: %w",
			&adapter.UnknownAdapterError{Type: cfg.Destination.Type, Available: adapter.ListAdapters()})
	}
	if cfg.AdminUser == "" {
		return fmt.Errorf("admin_user must not be empty")
	}
	if cfg.FallbackNamespace == "" {
		return fmt.Errorf("fallback_namespace must not be empty")
	}
	if cfg.CatchallDataset == "" {
		return fmt.Errorf("catchall_dataset must not be empty")
	}
	return nil
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// expandEnvVars expands ${VAR} patterns in a string with environment
// variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match // Return original if not found
	})
}

// expandStoreEnvVars expands environment variables in sensitive store fields.
func expandStoreEnvVars(c *adapter.Config) {
	c.Host = expandEnvVars(c.Host)
	c.Database = expandEnvVars(c.Database)
	c.Username = expandEnvVars(c.Username)
	c.Password = expandEnvVars(c.Password)
}

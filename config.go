package hotswap

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/golobby/cast"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so config decoders accept human-readable
// values like "30s" or "2m" in both YAML and TOML.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalText implements encoding.TextUnmarshaler for TOML and YAML.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalYAML implements yaml.Unmarshaler for YAML decoders that bypass
// TextUnmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.UnmarshalText([]byte(value.Value))
}

// Config gathers the tunables for the hot-swap services. It is loaded from a
// YAML or TOML file and can be overridden through HOTSWAP_-prefixed
// environment variables.
type Config struct {
	// HookTimeout bounds a lifecycle transition's hook chain.
	HookTimeout Duration `yaml:"hookTimeout" toml:"hookTimeout" env:"HOOK_TIMEOUT"`

	// CapabilityTimeout bounds each module-supplied capability call.
	CapabilityTimeout Duration `yaml:"capabilityTimeout" toml:"capabilityTimeout" env:"CAPABILITY_TIMEOUT"`

	// MaxRollbackPointsPerModule bounds rollback retention per module.
	// Zero means unbounded.
	MaxRollbackPointsPerModule int `yaml:"maxRollbackPointsPerModule" toml:"maxRollbackPointsPerModule" env:"MAX_ROLLBACK_POINTS"`

	// RetentionSchedule is the cron spec on which the retention janitor
	// prunes rollback points. Empty disables scheduled pruning.
	RetentionSchedule string `yaml:"retentionSchedule" toml:"retentionSchedule" env:"RETENTION_SCHEDULE"`

	// RetentionKeep is how many points per module the janitor keeps.
	RetentionKeep int `yaml:"retentionKeep" toml:"retentionKeep" env:"RETENTION_KEEP"`

	// ManifestPath is the swap manifest file watched for desired versions.
	// Empty disables manifest watching.
	ManifestPath string `yaml:"manifestPath" toml:"manifestPath" env:"MANIFEST_PATH"`
}

// DefaultConfig returns the configuration used when no file is provided.
func DefaultConfig() *Config {
	return &Config{
		HookTimeout:                Duration(5 * time.Second),
		CapabilityTimeout:          Duration(30 * time.Second),
		MaxRollbackPointsPerModule: 10,
		RetentionKeep:              10,
	}
}

// envPrefix prefixes every environment override, e.g. HOTSWAP_HOOK_TIMEOUT.
const envPrefix = "HOTSWAP"

// LoadConfig reads a configuration file, choosing the decoder by extension
// (.yaml/.yml or .toml), then applies environment overrides on top. Fields
// absent from the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedConfigFormat, filepath.Ext(path))
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}
	return config, nil
}

// applyEnvOverrides sets fields tagged with env from HOTSWAP_-prefixed
// environment variables, converting string values to the field's type.
func applyEnvOverrides(config interface{}) error {
	rv := reflect.ValueOf(config)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return ErrConfigNotStruct
	}
	rv = rv.Elem()

	structType := rv.Type()
	for i := 0; i < rv.NumField(); i++ {
		fieldType := structType.Field(i)
		envTag, exists := fieldType.Tag.Lookup("env")
		if !exists {
			continue
		}

		envValue := os.Getenv(envPrefix + "_" + strings.ToUpper(envTag))
		if envValue == "" {
			continue
		}

		if err := setFieldValue(rv.Field(i), envValue); err != nil {
			return fmt.Errorf("error in field '%s': %w", fieldType.Name, err)
		}
	}
	return nil
}

var durationType = reflect.TypeOf(Duration(0))

// setFieldValue converts a string to the field's type and sets it. Duration
// fields parse with time.ParseDuration; everything else goes through cast.
func setFieldValue(field reflect.Value, strValue string) error {
	if !field.CanSet() {
		return fmt.Errorf("field cannot be set")
	}

	if field.Type() == durationType {
		var d Duration
		if err := d.UnmarshalText([]byte(strValue)); err != nil {
			return err
		}
		field.Set(reflect.ValueOf(d))
		return nil
	}

	convertedValue, err := cast.FromType(strValue, field.Type())
	if err != nil {
		return fmt.Errorf("cannot convert value to type %v: %w", field.Type(), err)
	}
	field.Set(reflect.ValueOf(convertedValue))
	return nil
}

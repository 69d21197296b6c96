package config

import (
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables which override
// configuration values, e.g. DQNSTOP_AGENT_BATCH_SIZE
const EnvPrefix = "DQNSTOP"

// NewViper returns a Viper which reads environment variables prefixed
// by EnvPrefix, with nested keys separated by underscores
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load loads configuration from files and viper settings.
// Precedence (later overrides earlier):
//  1. Default() values
//  2. The config file named by the "config" key, if any
//  3. Environment variables (DQNSTOP_*)
//  4. CLI flags (already bound to viper)
//
// The loaded configuration is validated.
func Load(v *viper.Viper) (*Config, error) {
	cfg := Default()

	defaultMap, err := structToMap(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "load: could not convert defaults")
	}
	if err := v.MergeConfigMap(defaultMap); err != nil {
		return nil, errors.Wrap(err, "load: could not merge defaults")
	}

	if path := v.GetString("config"); path != "" {
		if err := loadConfigFile(v, path); err != nil {
			return nil, errors.Wrapf(err, "load: config file %v", path)
		}
	}

	if err := v.Unmarshal(cfg, viperDecodeHook()); err != nil {
		return nil, errors.Wrap(err, "load: could not decode config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "load")
	}
	return cfg, nil
}

// loadConfigFile loads a YAML config file and merges it into viper. An
// explicitly named config file must exist.
func loadConfigFile(v *viper.Viper, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	fileViper := viper.New()
	fileViper.SetConfigType("yaml")
	if err := fileViper.ReadConfig(file); err != nil {
		return err
	}

	return v.MergeConfigMap(fileViper.AllSettings())
}

// viperDecodeHook returns the decoder config which splits
// comma-separated strings, so that list values such as
// DQNSTOP_AGENT_POLICY_LAYERS=64,64 can be given as environment
// variables
func viperDecodeHook() viper.DecoderConfigOption {
	return viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToSliceHookFunc(","),
	))
}

// structToMap converts a struct to a map for viper.MergeConfigMap
func structToMap(cfg *Config) (map[string]interface{}, error) {
	result := make(map[string]interface{})

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "mapstructure",
		Result:  &result,
	})
	if err != nil {
		return nil, err
	}

	if err := decoder.Decode(cfg); err != nil {
		return nil, err
	}
	return result, nil
}

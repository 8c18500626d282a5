package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/matzehuels/exprflow/pkg/errors"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "EXPRFLOW_"

// FileNames are the config files searched in the working directory.
var FileNames = []string{"exprflow.yaml", "exprflow.yml"}

// FlagKeys maps CLI flag names to config keys. Flags not listed here are
// not configuration.
var FlagKeys = map[string]string{
	"dataset":      "dataset.source",
	"reference":    "analysis.reference",
	"levels":       "analysis.levels",
	"coefficient":  "analysis.coefficient",
	"alpha":        "analysis.alpha",
	"shrink":       "analysis.shrink",
	"padj":         "filter.padj",
	"lfc":          "filter.lfc",
	"direction":    "filter.direction",
	"key":          "filter.key",
	"mapping":      "mapping.source",
	"mapping-url":  "mapping.url",
	"mapping-file": "mapping.file",
	"refresh":      "mapping.refresh",
	"genesets":     "enrich.genesets",
	"top":          "enrich.top",
	"format":       "plot.formats",
	"out":          "output.dir",
	"s3-bucket":    "output.s3.bucket",
	"store":        "store.driver",
	"store-dsn":    "store.dsn",
	"cache-driver": "cache.driver",
}

var validate = newValidator()

// newValidator reports fields by their config key instead of the Go name.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("koanf"); name != "" {
			return name
		}
		return f.Name
	})
	return v
}

// Loaded is a loaded configuration plus where it came from.
type Loaded struct {
	*Config

	// File is the config file that was read, or "".
	File string
}

// Load builds the configuration from defaults, the config file, the
// environment and the explicitly set flags. A non-empty path must exist.
func Load(path string, flags *pflag.FlagSet) (*Loaded, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	used, err := findFile(path)
	if err != nil {
		return nil, err
	}
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "error reading config file %s", used)
		}
	}

	// EXPRFLOW_MAPPING__TIMEOUT -> mapping.timeout
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			if f.Name == "no-cache" {
				return "cache.driver", "none"
			}
			key, ok := FlagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "unable to decode config")
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &Loaded{Config: &cfg, File: used}, nil
}

// Default returns the validated built-in configuration.
func Default() *Config {
	l, err := Load("", nil)
	if err != nil {
		panic(err)
	}
	return l.Config
}

// listKeys are the settings given as comma-separated lists in the
// environment.
var listKeys = map[string]bool{
	"plot.formats":    true,
	"analysis.levels": true,
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func envValue(name, value string) (string, any) {
	key := envKey(name)
	if !listKeys[key] {
		return key, value
	}
	var items []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			items = append(items, v)
		}
	}
	return key, items
}

// findFile resolves the config file. An explicit path must exist; otherwise
// the working directory and then the user config directory are searched.
func findFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", errors.Wrap(errors.ErrCodeFileNotFound, err, "config file %s", explicit)
		}
		return explicit, nil
	}
	for _, name := range FileNames {
		if _, err := os.Stat(name); err == nil {
			return name, nil
		}
	}
	if dir, err := os.UserConfigDir(); err == nil {
		candidate := filepath.Join(dir, "exprflow", "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", nil
}

// Validate checks struct tags and reports the first failing field.
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		fe := verrs[0]
		return errors.New(errors.ErrCodeInvalidInput, "config %s: failed %q validation (value %v)",
			configPath(fe.Namespace()), fe.Tag(), fe.Value())
	}
	return errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid config")
}

// configPath turns "Config.mapping.batch_size" into "mapping.batch_size".
func configPath(ns string) string {
	return strings.TrimPrefix(ns, "Config.")
}

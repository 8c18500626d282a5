// Package config loads exprflow settings.
//
// Values are layered with koanf, lowest precedence first:
//
//  1. built-in defaults
//  2. the YAML config file (--config, ./exprflow.yaml, or the user config dir)
//  3. environment variables with the EXPRFLOW_ prefix, "__" separating
//     sections (EXPRFLOW_MAPPING__TIMEOUT=10s)
//  4. command-line flags that were explicitly set
//
// The result is checked with go-playground/validator struct tags.
package config

import (
	"time"
)

// Config is the full exprflow configuration.
type Config struct {
	Dataset  DatasetConfig  `koanf:"dataset"`
	Analysis AnalysisConfig `koanf:"analysis"`
	Filter   FilterConfig   `koanf:"filter"`
	Mapping  MappingConfig  `koanf:"mapping"`
	Enrich   EnrichConfig   `koanf:"enrich"`
	Plot     PlotConfig     `koanf:"plot"`
	Cache    CacheConfig    `koanf:"cache"`
	Store    StoreConfig    `koanf:"store"`
	Output   OutputConfig   `koanf:"output"`
}

// DatasetConfig selects the input bundle.
type DatasetConfig struct {
	// Source is "builtin:<name>" or a bundle directory.
	Source string `koanf:"source" validate:"required"`
}

// AnalysisConfig controls the model fit.
type AnalysisConfig struct {
	// Reference is the control level of the condition factor.
	Reference string `koanf:"reference"`
	// Levels, when set, is the full level order; it wins over Reference.
	Levels []string `koanf:"levels"`
	// Coefficient defaults to the last model coefficient.
	Coefficient          string  `koanf:"coefficient"`
	Alpha                float64 `koanf:"alpha" validate:"gt=0,lt=1"`
	IndependentFiltering bool    `koanf:"independent_filtering"`
	Shrink               string  `koanf:"shrink" validate:"oneof=normal none"`
	MaxIter              int     `koanf:"max_iter" validate:"gte=1"`
}

// FilterConfig holds the significance thresholds.
type FilterConfig struct {
	PAdj           float64 `koanf:"padj" validate:"gt=0,lte=1"`
	LFC            float64 `koanf:"lfc" validate:"gte=0"`
	Direction      string  `koanf:"direction" validate:"oneof=either up down"`
	Key            string  `koanf:"key" validate:"oneof=altId symbol id"`
	DropMissingKey bool    `koanf:"drop_missing_key"`
}

// MappingConfig configures identifier mapping.
type MappingConfig struct {
	Source    string        `koanf:"source" validate:"oneof=auto remote file none"`
	URL       string        `koanf:"url" validate:"required,url"`
	Dataset   string        `koanf:"dataset" validate:"required"`
	File      string        `koanf:"file"`
	Timeout   time.Duration `koanf:"timeout" validate:"gt=0"`
	Rate      float64       `koanf:"rate" validate:"gte=0"`
	BatchSize int           `koanf:"batch_size" validate:"gte=1,lte=1000"`
	Refresh   bool          `koanf:"refresh"`
}

// EnrichConfig configures the over-representation test.
type EnrichConfig struct {
	// GeneSets is a GMT file; empty uses the bundle's gene sets.
	GeneSets     string  `koanf:"genesets"`
	MinSize      int     `koanf:"min_size" validate:"gte=1"`
	MaxSize      int     `koanf:"max_size" validate:"gtefield=MinSize"`
	PValueCutoff float64 `koanf:"pvalue_cutoff" validate:"gt=0,lte=1"`
	PAdjCutoff   float64 `koanf:"padj_cutoff" validate:"gt=0,lte=1"`
	Top          int     `koanf:"top" validate:"gte=1"`
}

// PlotConfig configures rendering.
type PlotConfig struct {
	Formats []string `koanf:"formats" validate:"min=1,dive,oneof=svg png pdf"`
	Width   int      `koanf:"width" validate:"gte=200"`
	Height  int      `koanf:"height" validate:"gte=200"`
	Network bool     `koanf:"network"`
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	Driver   string        `koanf:"driver" validate:"oneof=file redis none"`
	Dir      string        `koanf:"dir"`
	RedisURL string        `koanf:"redis_url" validate:"required_if=Driver redis"`
	TTL      time.Duration `koanf:"ttl" validate:"gte=0"`
}

// StoreConfig configures the run store.
type StoreConfig struct {
	Driver string `koanf:"driver" validate:"oneof=none sqlite postgres"`
	DSN    string `koanf:"dsn" validate:"required_unless=Driver none"`
}

// OutputConfig configures where artifacts go.
type OutputConfig struct {
	Dir string   `koanf:"dir" validate:"required"`
	S3  S3Config `koanf:"s3"`
}

// S3Config mirrors artifacts to a bucket when Bucket is set.
type S3Config struct {
	Bucket    string `koanf:"bucket"`
	Region    string `koanf:"region"`
	Endpoint  string `koanf:"endpoint" validate:"omitempty,url"`
	Prefix    string `koanf:"prefix"`
	PathStyle bool   `koanf:"path_style"`
}

// Defaults returns the built-in configuration as a flat koanf map.
func Defaults() map[string]any {
	return map[string]any{
		"dataset.source": "builtin:airway-mini",

		"analysis.reference":             "",
		"analysis.coefficient":           "",
		"analysis.alpha":                 0.1,
		"analysis.independent_filtering": true,
		"analysis.shrink":                "normal",
		"analysis.max_iter":              100,

		"filter.padj":             0.05,
		"filter.lfc":              1.0,
		"filter.direction":        "either",
		"filter.key":              "altId",
		"filter.drop_missing_key": false,

		"mapping.source":     "auto",
		"mapping.url":        "https://www.ensembl.org/biomart/martservice",
		"mapping.dataset":    "hsapiens_gene_ensembl",
		"mapping.file":       "",
		"mapping.timeout":    30 * time.Second,
		"mapping.rate":       2.0,
		"mapping.batch_size": 300,
		"mapping.refresh":    false,

		"enrich.genesets":      "",
		"enrich.min_size":      10,
		"enrich.max_size":      500,
		"enrich.pvalue_cutoff": 0.05,
		"enrich.padj_cutoff":   0.2,
		"enrich.top":           20,

		"plot.formats": []string{"svg"},
		"plot.width":   720,
		"plot.height":  540,
		"plot.network": true,

		"cache.driver":    "file",
		"cache.dir":       "",
		"cache.redis_url": "",
		"cache.ttl":       7 * 24 * time.Hour,

		"store.driver": "none",
		"store.dsn":    "",

		"output.dir":           "exprflow-out",
		"output.s3.bucket":     "",
		"output.s3.region":     "",
		"output.s3.endpoint":   "",
		"output.s3.prefix":     "",
		"output.s3.path_style": false,
	}
}

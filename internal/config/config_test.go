package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/exprflow/pkg/errors"
)

// chdir moves into an empty directory so no stray exprflow.yaml is picked up.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", dir)
	return dir
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestDefaults(t *testing.T) {
	chdir(t)
	l, err := Load("", nil)
	require.NoError(t, err)
	assert.Empty(t, l.File)
	assert.Equal(t, "builtin:airway-mini", l.Dataset.Source)
	assert.Equal(t, 0.05, l.Filter.PAdj)
	assert.Equal(t, 1.0, l.Filter.LFC)
	assert.Equal(t, "altId", l.Filter.Key)
	assert.Equal(t, "auto", l.Mapping.Source)
	assert.Equal(t, 30*time.Second, l.Mapping.Timeout)
	assert.Equal(t, 300, l.Mapping.BatchSize)
	assert.Equal(t, []string{"svg"}, l.Plot.Formats)
	assert.Equal(t, "none", l.Store.Driver)
	assert.True(t, l.Analysis.IndependentFiltering)
}

func TestPrecedence(t *testing.T) {
	dir := chdir(t)
	writeFile(t, filepath.Join(dir, "exprflow.yaml"), `
dataset:
  source: ./bundles/pasilla
filter:
  padj: 0.01
  lfc: 0.5
mapping:
  timeout: 10s
  source: file
plot:
  formats: [svg, png]
`)
	t.Setenv("EXPRFLOW_FILTER__LFC", "2")
	t.Setenv("EXPRFLOW_CACHE__REDIS_URL", "redis://localhost:6379/0")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Float64("padj", 0.05, "")
	flags.String("reference", "", "")
	flags.Bool("no-cache", false, "")
	flags.Bool("verbose", false, "")
	require.NoError(t, flags.Parse([]string{"--padj", "0.001", "--no-cache", "--verbose"}))

	l, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, "exprflow.yaml", l.File)
	assert.Equal(t, "./bundles/pasilla", l.Dataset.Source)
	assert.Equal(t, 0.001, l.Filter.PAdj, "flag beats file")
	assert.Equal(t, 2.0, l.Filter.LFC, "env beats file")
	assert.Equal(t, 10*time.Second, l.Mapping.Timeout)
	assert.Equal(t, "file", l.Mapping.Source)
	assert.Equal(t, []string{"svg", "png"}, l.Plot.Formats)
	assert.Equal(t, "redis://localhost:6379/0", l.Cache.RedisURL)
	assert.Equal(t, "none", l.Cache.Driver)
	assert.Empty(t, l.Analysis.Reference, "unset flags keep lower layers")
}

func TestExplicitFileMustExist(t *testing.T) {
	chdir(t)
	_, err := Load("missing.yaml", nil)
	assert.True(t, errors.Is(err, errors.ErrCodeFileNotFound))
}

func TestValidation(t *testing.T) {
	tests := map[string]struct {
		env   map[string]string
		field string
	}{
		"padj out of range":  {env: map[string]string{"EXPRFLOW_FILTER__PADJ": "1.5"}, field: "filter.padj"},
		"unknown direction":  {env: map[string]string{"EXPRFLOW_FILTER__DIRECTION": "sideways"}, field: "filter.direction"},
		"unknown mapping":    {env: map[string]string{"EXPRFLOW_MAPPING__SOURCE": "ldap"}, field: "mapping.source"},
		"redis without url":  {env: map[string]string{"EXPRFLOW_CACHE__DRIVER": "redis"}, field: "cache.redis_url"},
		"sqlite without dsn": {env: map[string]string{"EXPRFLOW_STORE__DRIVER": "sqlite"}, field: "store.dsn"},
		"max below min size": {env: map[string]string{"EXPRFLOW_ENRICH__MAX_SIZE": "5"}, field: "enrich.max_size"},
		"bad plot format":    {env: map[string]string{"EXPRFLOW_PLOT__FORMATS": "svg,gif"}, field: "plot.formats[1]"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			chdir(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("", nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestEnvLists(t *testing.T) {
	chdir(t)
	t.Setenv("EXPRFLOW_PLOT__FORMATS", "svg, png")
	t.Setenv("EXPRFLOW_ANALYSIS__LEVELS", "trt,untrt")

	l, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"svg", "png"}, l.Plot.Formats)
	assert.Equal(t, []string{"trt", "untrt"}, l.Analysis.Levels)
}

func TestEnvValue(t *testing.T) {
	key, v := envValue("EXPRFLOW_PLOT__FORMATS", "svg,,pdf")
	assert.Equal(t, "plot.formats", key)
	assert.Equal(t, []string{"svg", "pdf"}, v)

	key, v = envValue("EXPRFLOW_DATASET__SOURCE", "a,b")
	assert.Equal(t, "dataset.source", key)
	assert.Equal(t, "a,b", v)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "mapping.timeout", envKey("EXPRFLOW_MAPPING__TIMEOUT"))
	assert.Equal(t, "output.s3.path_style", envKey("EXPRFLOW_OUTPUT__S3__PATH_STYLE"))
}

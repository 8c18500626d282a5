package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		name    string
		level   log.Level
		logFunc func(*log.Logger)
		wantLog bool
	}{
		{"info at info level", log.InfoLevel, func(l *log.Logger) { l.Info("fitted") }, true},
		{"debug at info level", log.InfoLevel, func(l *log.Logger) { l.Debug("iteration") }, false},
		{"debug at debug level", log.DebugLevel, func(l *log.Logger) { l.Debug("iteration") }, true},
		{"warn at info level", log.InfoLevel, func(l *log.Logger) { l.Warn("unmapped") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.logFunc(newLogger(&buf, tt.level))
			assert.Equal(t, tt.wantLog, buf.Len() > 0)
		})
	}
}

func TestSetLogLevel(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf, LogInfo)

	c.Logger.Debug("hidden")
	assert.Zero(t, buf.Len())

	c.SetLogLevel(LogDebug)
	c.Logger.Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	prog := newProgress(newLogger(&buf, log.InfoLevel))
	require.NotNil(t, prog)

	time.Sleep(10 * time.Millisecond)
	prog.done("Analysis finished")

	assert.Contains(t, buf.String(), "Analysis finished")
	assert.Contains(t, buf.String(), "elapsed=")
}

func TestParseLogFormat(t *testing.T) {
	for _, name := range []string{"text", "json", "logfmt"} {
		_, err := parseLogFormat(name)
		assert.NoError(t, err, name)
	}
	_, err := parseLogFormat("xml")
	assert.Error(t, err)
}

func TestLogFormatFlag(t *testing.T) {
	c, buf := testCLI()
	root := c.RootCommand()
	root.SetArgs([]string{"--log-format", "json", "datasets"})
	out := captureStdout(t)
	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.NotEmpty(t, out.String())

	c.Logger.Info("fitted", "features", 12)
	assert.Contains(t, buf.String(), `"features":12`)
}

func TestLoggerFromContext(t *testing.T) {
	assert.NotNil(t, loggerFromContext(context.Background()), "falls back to the default logger")

	var buf bytes.Buffer
	custom := newLogger(&buf, log.InfoLevel)
	ctx := withLogger(context.Background(), custom)
	require.Same(t, custom, loggerFromContext(ctx))

	loggerFromContext(ctx).Info("stage done")
	assert.Contains(t, buf.String(), "stage done")
}

package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		expected zerolog.Level
	}{
		{"debug level", "debug", zerolog.DebugLevel},
		{"info level", "info", zerolog.InfoLevel},
		{"warn level", "WARN", zerolog.WarnLevel},
		{"error level", "error", zerolog.ErrorLevel},
		{"default level", "", zerolog.InfoLevel},
		{"invalid level", "chatty", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ResetForTesting()
			t.Cleanup(ResetForTesting)

			var buf bytes.Buffer
			Setup(Config{Level: tt.level, Output: &buf})

			log := Get()
			require.NotNil(t, log)
			assert.Equal(t, tt.expected, log.GetLevel())
		})
	}
}

func TestSetup_OnlyFirstCallApplies(t *testing.T) {
	ResetForTesting()
	t.Cleanup(ResetForTesting)

	Setup(Config{Level: "error", Output: &bytes.Buffer{}})
	Setup(Config{Level: "debug", Output: &bytes.Buffer{}})

	assert.Equal(t, zerolog.ErrorLevel, Get().GetLevel())
}

func TestParseLogFormat(t *testing.T) {
	assert.Equal(t, FormatConsole, ParseLogFormat("Console"))
	assert.Equal(t, FormatJSON, ParseLogFormat("json"))
	assert.Equal(t, FormatJSON, ParseLogFormat("xml"))
	assert.Equal(t, "console", FormatConsole.String())
}

func TestLogMethods(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: FormatJSON, Output: &buf})

	tests := []struct {
		name  string
		logFn func()
		want  []string
	}{
		{
			name:  "info with fields",
			logFn: func() { log.Info("added", map[string]interface{}{"book_id": 3}) },
			want:  []string{`"level":"info"`, `"message":"added"`, `"book_id":3`},
		},
		{
			name:  "warn",
			logFn: func() { log.Warn("careful") },
			want:  []string{`"level":"warn"`, `"message":"careful"`},
		},
		{
			name:  "debug",
			logFn: func() { log.Debug("details", nil) },
			want:  []string{`"level":"debug"`, `"message":"details"`},
		},
		{
			name:  "error",
			logFn: func() { log.Error("failed", map[string]interface{}{"error": "boom"}) },
			want:  []string{`"level":"error"`, `"error":"boom"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.logFn()
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})

	log.Debug("hidden")
	log.Info("hidden")
	assert.Empty(t, buf.String())

	log.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: FormatConsole, Output: &buf})

	log.Info("hello", map[string]interface{}{"title": "Dune"})
	out := buf.String()
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "title")
	assert.Contains(t, out, "Dune")
	assert.NotContains(t, out, `"message"`)
}

func TestNilLogger(t *testing.T) {
	var log *Logger
	assert.NotPanics(t, func() {
		log.Info("x")
		log.Warn("x")
		log.Debug("x")
		log.Error("x")
	})
	assert.Equal(t, zerolog.NoLevel, log.GetLevel())
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Output: &buf})

	assert.Same(t, log, log.WithFields(nil))
	assert.Same(t, log, log.With(map[string]interface{}{}))

	child := log.With(map[string]interface{}{"component": "store"})
	assert.NotSame(t, log, child)
	assert.Equal(t, log.GetLevel(), child.GetLevel())

	child.Info("saved")
	assert.Contains(t, buf.String(), `"component":"store"`)

	buf.Reset()
	log.Info("plain")
	assert.NotContains(t, buf.String(), "component")
}

func TestContext(t *testing.T) {
	ResetForTesting()
	t.Cleanup(ResetForTesting)
	Setup(Config{Output: &bytes.Buffer{}})

	assert.Same(t, Get(), FromContext(context.Background()))

	log := New(Config{Output: &bytes.Buffer{}})
	ctx := NewContext(context.Background(), log)
	assert.Same(t, log, FromContext(ctx))

	assert.Equal(t, ctx, NewContext(ctx, nil))
}

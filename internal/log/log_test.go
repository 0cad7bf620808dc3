package log

import (
	"bytes"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextHandler(t *testing.T) {
	var buf bytes.Buffer
	h := NewTextHandler(&buf)

	e := &log.Entry{
		Level:     log.WarnLevel,
		Message:   "[FactCache] 保存に失敗しました",
		Timestamp: time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC),
		Fields:    log.Fields{"key": "oats", "attempt": 2},
	}
	require.NoError(t, h.HandleLog(e))

	assert.Equal(t, "2026-10-15 09:30:00 W [FactCache] 保存に失敗しました attempt=2 key=oats\n", buf.String())
}

func currentLevel(t *testing.T) log.Level {
	t.Helper()
	logger, ok := log.Log.(*log.Logger)
	require.True(t, ok)
	return logger.Level
}

func TestInitLogger(t *testing.T) {
	logger := log.Log.(*log.Logger)
	saved := *logger
	t.Cleanup(func() { *logger = saved })

	tests := []struct {
		name  string
		env   string
		level string
		want  log.Level
	}{
		{"config level", "", "debug", log.DebugLevel},
		{"env overrides config", "ERROR", "debug", log.ErrorLevel},
		{"empty defaults to info", "", "", log.InfoLevel},
		{"unknown env level falls back to info", "verbose", "debug", log.InfoLevel},
		{"unknown config level falls back to info", "", "loud", log.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("NUTRICACHE_LOG", tt.env)

			require.NotPanics(t, func() { InitLogger(tt.level) })
			assert.Equal(t, tt.want, currentLevel(t))
		})
	}
}

package log

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLevel(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLazyLogger_UsesCurrentDefault(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	logger := Logger("core/test")

	var buf bytes.Buffer
	SetOutputWithLevel(&buf, slog.LevelDebug)

	logger.Debug("hello", "k", "v")
	out := buf.String()
	assert.Contains(t, out, "component=core/test")
	assert.Contains(t, out, "k=v")
	assert.True(t, logger.Enabled(slog.LevelDebug))
}

func TestSetup_FileAndFormat(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	path := filepath.Join(t.TempDir(), "tunnel.log")
	require.NoError(t, Setup(Options{Level: "warn", Format: "json", File: path}))

	logger := Logger("core/test")
	logger.Info("dropped")
	logger.Warn("kept", "n", 1)

	// 关闭文件，确保内容落盘
	require.NoError(t, Setup(Options{Level: "info"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), `"msg":"kept"`)
}

func TestSetup_BadLevel(t *testing.T) {
	assert.Error(t, Setup(Options{Level: "loud"}))
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abc", ShortID("abc"))
	assert.Equal(t, "12345678", ShortID("1234567890"))
}

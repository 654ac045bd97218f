package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: "9090"
meta:
  app_secret: shh
  verify_token: tok
gateway:
  ack_window: 3s
  context_messages: 10
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Address())
	assert.Equal(t, "shh", cfg.Meta.AppSecret)
	assert.Equal(t, "tok", cfg.Meta.VerifyToken)
	assert.Equal(t, 3*time.Second, cfg.Gateway.AckWindow)
	assert.Equal(t, 10, cfg.Gateway.ContextMessages)

	// defaults still apply for untouched fields
	assert.Equal(t, "v21.0", cfg.Meta.APIVersion)
	assert.Equal(t, 3, cfg.Gateway.DeliveryAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Gateway.DeliveryBackoff)
	assert.Equal(t, 30*time.Second, cfg.Gateway.FinishTimeout)
}

func TestLogSlogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Log{Level: tt.in}.SlogLevel())
		})
	}
}

package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"order-probe-bot/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug": zapcore.DebugLevel,
		"WARN":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
		"":      zapcore.InfoLevel,
		"bogus": zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in).Level(); got != want {
			t.Fatalf("level %q: expected %s, got %s", in, want, got)
		}
	}
}

func TestNewWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "probe.log")
	log := New(config.LoggingConfig{Level: "info", File: path, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1})
	log.Info("hello file", zap.String("pair", "btc_usdt"))
	log.Debug("filtered out")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "hello file") {
		t.Fatalf("expected log line in file, got %q", string(data))
	}
	if strings.Contains(string(data), "filtered out") {
		t.Fatalf("expected debug line to be filtered")
	}
}

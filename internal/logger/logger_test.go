package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "json")
	l.Info().Str("host", "mc.example.com").Msg("queried")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("not json: %v (%s)", err, buf.String())
	}
	if entry["host"] != "mc.example.com" || entry["message"] != "queried" {
		t.Fatalf("entry = %v", entry)
	}
}

func TestNewConsoleHasNoColorOnBuffers(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "console")
	l.Warn().Msg("plain")

	if strings.Contains(buf.String(), "\x1b[") {
		t.Fatalf("unexpected escape codes: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("debug") != zerolog.DebugLevel {
		t.Error("debug")
	}
	if parseLevel("bogus") != zerolog.InfoLevel || parseLevel("") != zerolog.InfoLevel {
		t.Error("fallback")
	}
}

func TestSetupFileOutput(t *testing.T) {
	prev := log.Logger
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})

	path := filepath.Join(t.TempDir(), "out.log")
	closeFn := Setup(Config{Level: "info", Format: "json", Output: path})
	log.Info().Msg("to file")
	log.Debug().Msg("filtered")
	closeFn()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "to file") || strings.Contains(string(data), "filtered") {
		t.Fatalf("log content = %q", data)
	}
}

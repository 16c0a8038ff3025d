package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestJSONLoggerWritesLevelAndError(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, Config{Level: "debug", Format: "json"})

	log.Error("arm failed", errors.New("boom"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["level"] != "error" {
		t.Errorf("level = %v, want error", entry["level"])
	}
	if entry["err"] != "boom" {
		t.Errorf("err = %v, want boom", entry["err"])
	}
	if entry["message"] != "arm failed" {
		t.Errorf("message = %v, want arm failed", entry["message"])
	}
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
	}{
		{level: "debug", wantDebug: true},
		{level: "info", wantDebug: false},
		{level: "", wantDebug: false},
		{level: "bogus", wantDebug: false},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			log := NewWithWriter(&buf, Config{Level: tt.level, Format: "json"})
			log.Debug("hidden?")
			got := strings.Contains(buf.String(), "hidden?")
			if got != tt.wantDebug {
				t.Errorf("debug written = %v, want %v", got, tt.wantDebug)
			}
		})
	}
}

func TestNopDiscards(t *testing.T) {
	log := Nop()
	log.Info("nothing")
	log.Error("nothing", nil)
}

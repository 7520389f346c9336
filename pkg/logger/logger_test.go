package logger

import (
	"errors"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		level       string
		development bool
	}{
		{"production info", "info", false},
		{"development debug", "debug", true},
		{"warn level", "warn", false},
		{"error level", "error", false},
		{"invalid level falls back to info", "invalid", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.level, tt.development)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if log == nil {
				t.Fatal("Expected non-nil logger")
			}
			defer func() { _ = log.Sync() }()
		})
	}
}

func TestWithFields(t *testing.T) {
	log := Nop()

	withFields := log.WithFields("namespace", "default", "report", "abc")
	if withFields == nil {
		t.Fatal("Expected non-nil logger")
	}
	withFields.Infow("test message")
}

func TestWithError(t *testing.T) {
	log := Nop()

	withErr := log.WithError(errors.New("boom"))
	if withErr == nil {
		t.Fatal("Expected non-nil logger")
	}
	withErr.Errorw("operation failed")
}

func TestNop(t *testing.T) {
	log := Nop()
	log.Infow("discarded")
	log.Debugw("discarded")
}

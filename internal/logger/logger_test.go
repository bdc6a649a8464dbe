package logger

import (
	"path/filepath"
	"testing"
)

func TestNew_RejectsInvalidLevel(t *testing.T) {
	if _, err := New(Config{Level: "not-a-level"}); err == nil {
		t.Fatal("expected an error for an invalid log level")
	}
}

func TestNew_JSONToStdout(t *testing.T) {
	l, err := New(Config{Level: "info", Format: "json"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer l.Sync()
	l.Info("hello")
}

func TestNew_RotatingFileWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "hblink4.log")
	l, err := New(Config{Level: "debug", Format: "json", File: path, MaxSize: 1, MaxBackups: 1, MaxAge: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer l.Sync()
	l.Debug("rotating writer ready")
}

func TestWithComponent_TagsLogger(t *testing.T) {
	l := Default()
	tagged := l.WithComponent("server")
	if tagged == nil || tagged.Logger == nil {
		t.Fatal("expected a non-nil tagged logger")
	}
}

func TestDefault_NeverFails(t *testing.T) {
	l := Default()
	if l == nil || l.Logger == nil {
		t.Fatal("expected Default() to always return a usable logger")
	}
}

package logger_test

import (
	"testing"

	"github.com/kestrel-trading/engine/logger"
	"github.com/kestrel-trading/engine/testutils"
)

func TestMockLogger(t *testing.T) {
	l := testutils.NewMockLogger()
	l.Info("hello", logger.String("k", "v"))
	if got := l.LastMessage(); got != "hello" {
		t.Fatalf("expected last message 'hello', got %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"":      true, // falls back to info
	}
	for in := range cases {
		_ = logger.ParseLevel(in) // must not panic for any recognised or empty input
	}
}

package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestNewLevels(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "WARN", "error"} {
		l, err := New(lvl)
		if err != nil || l == nil {
			t.Errorf("New(%q): %v", lvl, err)
		}
	}
	if _, err := New("loud"); err == nil {
		t.Error("Expected an error for an unknown level")
	}
}

func TestContextRoundTrip(t *testing.T) {
	fallback := zap.NewNop()
	if got := FromContext(context.Background(), fallback); got != fallback {
		t.Error("Expected fallback logger")
	}

	l := zap.NewExample()
	ctx := WithContext(context.Background(), l)
	if got := FromContext(ctx, fallback); got != l {
		t.Error("Expected the stored logger")
	}
}

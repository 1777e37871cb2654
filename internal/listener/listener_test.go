package listener

import (
	"io"
	"log/slog"
	"testing"
)

func TestHandle_InvalidatesOnEveryPayload(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tests := map[string]string{
		"well formed": `{"table":"store_items","op":"UPDATE"}`,
		"malformed":   `not json`,
		"empty":       ``,
	}
	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			a, b := 0, 0
			handle(payload, logger, []func(){func() { a++ }, func() { b++ }})
			if a != 1 || b != 1 {
				t.Fatalf("expected each callback once, got %d and %d", a, b)
			}
		})
	}
}

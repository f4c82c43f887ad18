package logging

import (
	"bytes"
	"strings"
	"testing"
)

// Setup mutates the process default logger, so these tests run serially.

func TestSetupJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup(&buf, "warn", "json")
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info logged at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) {
		t.Fatalf("warn not logged as json: %s", out)
	}
}

func TestSetupRejectsBadInput(t *testing.T) {
	var buf bytes.Buffer
	if _, err := Setup(&buf, "loud", "json"); err == nil {
		t.Fatalf("expected level error")
	}
	if _, err := Setup(&buf, "info", "xml"); err == nil {
		t.Fatalf("expected format error")
	}
}

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestSetupWriterEmitsStructuredJSON(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := SetupWriter(&buf, "ledgerd", "test", Options{Level: "debug"})
	logger.Debug("round settled", slog.Uint64("round", 7))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	for key, want := range map[string]any{"service": "ledgerd", "env": "test", "severity": "DEBUG", "message": "round settled"} {
		if line[key] != want {
			t.Fatalf("%s: got %v want %v", key, line[key], want)
		}
	}
	if _, ok := line["timestamp"]; !ok {
		t.Fatalf("missing timestamp in %v", line)
	}
}

func TestLevelFiltering(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := SetupWriter(&buf, "ledgerd", "", Options{Level: "warn"})
	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info line should be filtered: %s", buf.String())
	}
}

func TestMaskDSN(t *testing.T) {
	cases := map[string]string{
		"postgres://ledger:secret@db:5432/ledger":      "postgres://ledger:%5BREDACTED%5D@db:5432/ledger",
		"host=db user=ledger password=secret dbname=x": "host=db user=ledger password=[REDACTED] dbname=x",
		"file:ledger.db?cache=shared":                  "file:ledger.db?cache=shared",
	}
	for in, want := range cases {
		if got := MaskDSN(in); got != want {
			t.Fatalf("MaskDSN(%q) = %q, want %q", in, got, want)
		}
	}
	if got := MaskField("dsn", "secret"); got.Value.String() != RedactedValue {
		t.Fatalf("dsn must be masked, got %s", got.Value)
	}
	if got := MaskField("driver", "sqlite"); !strings.EqualFold(got.Value.String(), "sqlite") {
		t.Fatalf("driver must pass through, got %s", got.Value)
	}
}

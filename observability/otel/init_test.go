package otel

import (
	"context"
	"errors"
	"testing"
)

func TestInitRequiresServiceName(t *testing.T) {
	if _, err := Init(context.Background(), Config{Traces: true}); !errors.Is(err, ErrServiceName) {
		t.Fatalf("expected ErrServiceName, got %v", err)
	}
}

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "ledgerd"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" api-key = abc ,broken,=x, tenant=ledger ")
	if len(got) != 2 || got["api-key"] != "abc" || got["tenant"] != "ledger" {
		t.Fatalf("unexpected headers %v", got)
	}
}

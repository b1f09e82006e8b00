package inbound

import (
	"context"
	"errors"
	"testing"

	"conectapro/internal/leads/memstore"
	"conectapro/internal/locality"
)

func TestAdmitOncePerCustomerAndMessage(t *testing.T) {
	ctx := context.Background()
	g := NewGate(memstore.New(locality.NewNormalizer(nil)))

	ok, err := g.Admit(ctx, "56911111111", "wamid.1", "hola")
	if err != nil || !ok {
		t.Fatalf("first delivery should be admitted: %v %v", ok, err)
	}
	ok, err = g.Admit(ctx, "56911111111", "wamid.1", "hola")
	if err != nil || ok {
		t.Fatalf("redelivery should be rejected: %v %v", ok, err)
	}
	ok, _ = g.Admit(ctx, "56922222222", "wamid.1", "hola")
	if !ok {
		t.Fatalf("same id from another customer is a different message")
	}

	seen, _ := g.WasSeen(ctx, "56911111111", "wamid.1")
	if !seen {
		t.Fatalf("expected message to be seen")
	}
}

func TestRecordSeenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	g := NewGate(memstore.New(locality.NewNormalizer(nil)))

	for i := 0; i < 2; i++ {
		if err := g.RecordSeen(ctx, "56911111111", "wamid.2", "x"); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if seen, _ := g.WasSeen(ctx, "56911111111", "wamid.2"); !seen {
		t.Fatalf("expected message to be seen")
	}
}

func TestEmptyMessageIDAlwaysAdmitted(t *testing.T) {
	ctx := context.Background()
	g := NewGate(failingLedger{})

	for i := 0; i < 2; i++ {
		if ok, err := g.Admit(ctx, "56911111111", "  ", "hola"); !ok || err != nil {
			t.Fatalf("expected admission without touching the ledger: %v %v", ok, err)
		}
	}
	if seen, err := g.WasSeen(ctx, "56911111111", ""); seen || err != nil {
		t.Fatalf("empty id is never seen")
	}
}

type failingLedger struct{}

func (failingLedger) Exists(context.Context, string, string) (bool, error) {
	return false, errors.New("ledger unavailable")
}

func (failingLedger) Insert(context.Context, string, string, string) (bool, error) {
	return false, errors.New("ledger unavailable")
}

// Package inbound deduplicates messages redelivered by the messaging provider.
package inbound

import (
	"context"
	"strings"
)

// Ledger stores (customer, message id) pairs that were already processed.
type Ledger interface {
	Exists(ctx context.Context, customerID, messageID string) (bool, error)
	// Insert records the pair and reports false when it already existed.
	Insert(ctx context.Context, customerID, messageID, text string) (bool, error)
}

// Gate lets each external message id through once per customer.
type Gate struct {
	ledger Ledger
}

func NewGate(ledger Ledger) *Gate {
	return &Gate{ledger: ledger}
}

// WasSeen reports whether the message was already recorded.
func (g *Gate) WasSeen(ctx context.Context, customerID, messageID string) (bool, error) {
	if strings.TrimSpace(messageID) == "" {
		return false, nil
	}
	return g.ledger.Exists(ctx, customerID, messageID)
}

// RecordSeen stores the message. Recording twice is a no-op.
func (g *Gate) RecordSeen(ctx context.Context, customerID, messageID, text string) error {
	if strings.TrimSpace(messageID) == "" {
		return nil
	}
	_, err := g.ledger.Insert(ctx, customerID, messageID, text)
	return err
}

// Admit records the message and reports whether it is new. Messages without an id are
// always admitted since they cannot be deduplicated.
func (g *Gate) Admit(ctx context.Context, customerID, messageID, text string) (bool, error) {
	if strings.TrimSpace(messageID) == "" {
		return true, nil
	}
	return g.ledger.Insert(ctx, customerID, messageID, text)
}

package repository

import (
	"context"
	"time"

	"conectapro/internal/leads/domain"
)

// =====================================
// Segregated Interfaces (Interface Segregation Principle)
// =====================================

// ProviderReader serves matching and the conversation flow.
type ProviderReader interface {
	ListActiveServices(ctx context.Context) ([]string, error)
	ListLocalities(ctx context.Context) ([]string, error)
	ListProvidersForServices(ctx context.Context, services []string) ([]domain.Provider, error)
	ListCandidates(ctx context.Context, service, localityKey string, limit int) ([]domain.Provider, error)
	GetProvider(ctx context.Context, id int64) (domain.Provider, error)
	ProviderByAddress(ctx context.Context, waID string) (domain.Provider, bool, error)
}

// ProviderAnswers routes provider replies to their pending question.
type ProviderAnswers interface {
	GetProviderState(ctx context.Context, providerID int64) (domain.ProviderState, error)
	RecordProviderAnswer(ctx context.Context, leadID int64, q domain.PendingQuestion, yes bool) error
}

// ConversationStore loads and commits conversation turns.
type ConversationStore interface {
	LoadConversation(ctx context.Context, customerID string) (domain.Conversation, bool, error)
	OpenLead(ctx context.Context, customerID string) (domain.Conversation, error)
	Commit(ctx context.Context, cs domain.Changeset) error
}

// FollowupStore serves the follow-up sweep.
type FollowupStore interface {
	ListLeadsByStatus(ctx context.Context, status domain.Status) ([]domain.Lead, error)
	ApplyFollowup(ctx context.Context, t domain.FollowupTransition) (bool, error)
	TouchFollowup(ctx context.Context, leadID int64, status domain.Status, at time.Time) (bool, error)
}

// InboundLedger records processed inbound message ids.
type InboundLedger interface {
	Exists(ctx context.Context, customerID, messageID string) (bool, error)
	Insert(ctx context.Context, customerID, messageID, text string) (bool, error)
}

// LeadsRepository combines all segregated interfaces.
type LeadsRepository interface {
	ProviderReader
	ProviderAnswers
	ConversationStore
	FollowupStore
	InboundLedger
}

var _ LeadsRepository = (*Repository)(nil)

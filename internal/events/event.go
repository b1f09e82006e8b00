// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"conectapro/platform/events"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var (
	NewBaseEvent = events.NewBaseEvent
	BaseEventAt  = events.BaseEventAt
)

// =============================================================================
// Leads Domain Events
// =============================================================================

// LeadConnected is published when a customer consents and their contact is shared with a provider.
type LeadConnected struct {
	BaseEvent
	LeadID     int64  `json:"leadId"`
	ProviderID int64  `json:"providerId"`
	Service    string `json:"service"`
	Comuna     string `json:"comuna"`
}

func (e LeadConnected) EventName() string { return "leads.connected" }

// LeadClosed is published when a lead reaches its terminal status.
type LeadClosed struct {
	BaseEvent
	LeadID int64  `json:"leadId"`
	Reason string `json:"reason"`
}

func (e LeadClosed) EventName() string { return "leads.closed" }

// ProviderRated is published after a customer rates a provider.
type ProviderRated struct {
	BaseEvent
	LeadID     int64 `json:"leadId"`
	ProviderID int64 `json:"providerId"`
	Stars      int   `json:"stars"`
}

func (e ProviderRated) EventName() string { return "leads.provider_rated" }

// FollowupSent is published when the scheduler sends a follow-up question or reminder.
type FollowupSent struct {
	BaseEvent
	LeadID   int64  `json:"leadId"`
	Stage    string `json:"stage"`
	Reminder bool   `json:"reminder"`
}

func (e FollowupSent) EventName() string { return "leads.followup_sent" }

// IntentResolved is published for every resolver outcome so the hit mix can be observed.
type IntentResolved struct {
	BaseEvent
	Outcome string `json:"outcome"`
	Method  string `json:"method"`
}

func (e IntentResolved) EventName() string { return "intent.resolved" }

package domain

import (
	"strings"
	"time"
)

// FollowupStage marks the last post-connection prompt sent for a lead.
type FollowupStage string

const (
	FollowupNone    FollowupStage = ""
	FollowupContact FollowupStage = "CONTACT"
	FollowupService FollowupStage = "SERVICE"
	FollowupRating  FollowupStage = "RATING"
)

// PendingQuestion is the yes/no question a provider still owes an answer to.
type PendingQuestion string

const (
	QuestionNone    PendingQuestion = ""
	QuestionContact PendingQuestion = "CONTACT"
	QuestionService PendingQuestion = "SERVICE"
)

// Customer is an end user identified by their messaging address.
type Customer struct {
	ID            int64
	WAID          string
	BlockedUntil  *time.Time
	PendingLeadID *int64
	CreatedAt     time.Time
}

// Lead is one customer's service request and its lifecycle.
type Lead struct {
	ID         int64
	CustomerID string
	Status     Status
	ProviderID *int64
	Request    ServiceRequest
	Comuna     string

	CustomerName string
	ProblemType  string
	Urgency      string

	ConnectedAt    *time.Time
	FollowupStage  FollowupStage
	FollowupSentAt *time.Time

	UserContactConfirmed     *bool
	ProviderContactConfirmed *bool
	UserServiceConfirmed     *bool
	ProviderServiceConfirmed *bool

	RatingStars   *int
	RatingComment string

	LastActivityAt time.Time
	CreatedAt      time.Time
}

// Scratch is transient per-conversation data kept between turns.
type Scratch struct {
	IntentOptions  []string `json:"intent_options,omitempty"`
	PreviousIntent string   `json:"previous_intent,omitempty"`
}

// IsZero reports whether the scratch holds nothing.
func (s Scratch) IsZero() bool {
	return len(s.IntentOptions) == 0 && s.PreviousIntent == ""
}

// ConversationState is the single conversation row of a customer.
type ConversationState struct {
	CustomerID string
	Step       Step
	LeadID     *int64
	Scratch    Scratch
	UpdatedAt  time.Time
}

// Provider is a professional that can be offered to customers.
type Provider struct {
	ID           int64
	Service      string
	Comuna       string
	Name         string
	WhatsApp     string
	Active       bool
	RatingAvg    float64
	RatingCount  int
	BlockedUntil *time.Time
	// Coverage lists extra comunas served. When present it replaces Comuna for matching.
	Coverage []string
}

// BlockedAt reports whether the practical block is still in force at now.
func (p Provider) BlockedAt(now time.Time) bool {
	return p.BlockedUntil != nil && p.BlockedUntil.After(now)
}

// Localities returns the comunas the provider is matched against.
func (p Provider) Localities() []string {
	if len(p.Coverage) > 0 {
		return p.Coverage
	}
	if strings.TrimSpace(p.Comuna) == "" {
		return nil
	}
	return []string{p.Comuna}
}

// DisplayName returns the provider name with a generic fallback.
func (p Provider) DisplayName() string {
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	return "Profesional"
}

// Offer is one ranked provider shown to the customer for a lead.
type Offer struct {
	LeadID     int64
	ProviderID int64
	Rank       int
}

// Review is the rating a customer left for a provider.
type Review struct {
	LeadID     int64
	ProviderID int64
	CustomerID string
	Stars      int
	Comment    string
	CreatedAt  time.Time
}

// ProviderState routes a provider's free-text reply to the question it answers.
type ProviderState struct {
	ProviderID    int64
	PendingLeadID *int64
	Question      PendingQuestion
}

// Awaiting reports whether the provider has an open question.
func (s ProviderState) Awaiting() bool {
	return s.PendingLeadID != nil && s.Question != QuestionNone
}

// Conversation is everything a turn reads about one customer.
type Conversation struct {
	State ConversationState
	// Lead is the customer's most recent lead.
	Lead Lead
	// Offers of the current matching round, in rank order.
	Offers   []Offer
	Customer *Customer
}

// BlockedOn reports whether the customer is held on leadID by a practical block at now.
func (c Conversation) BlockedOn(leadID int64, now time.Time) bool {
	cu := c.Customer
	return cu != nil && cu.PendingLeadID != nil && *cu.PendingLeadID == leadID &&
		cu.BlockedUntil != nil && cu.BlockedUntil.After(now)
}

// Changeset holds every write produced by one conversation turn. Stores apply it atomically.
type Changeset struct {
	State ConversationState
	// Lead is written whole except for the provider-side confirmations.
	Lead Lead
	// ExpectStatus is the lead status the turn was computed from. Stores reject the
	// changeset with a conflict when the stored status differs.
	ExpectStatus Status
	// ReplaceOffers deletes the lead's offers and inserts Offers in their place.
	ReplaceOffers bool
	Offers        []Offer
	// Review is stored and folded into the provider's running mean.
	Review *Review
	// EnsureCustomer creates the customer row if it is missing.
	EnsureCustomer bool
	// ReleaseCustomer clears the customer's pending lead and block when they point at Lead.
	ReleaseCustomer bool
}

// FollowupTransition is one guarded status change applied by the follow-up scheduler.
// Stores apply it only while the lead still has status From.
type FollowupTransition struct {
	LeadID     int64
	CustomerID string
	ProviderID int64
	From       Status
	To         Status
	Stage      FollowupStage
	SentAt     *time.Time

	BlockCustomerUntil *time.Time
	ReleaseCustomer    bool
	BlockProviderUntil *time.Time
	ReleaseProvider    bool

	// SetProviderQuestion writes ProviderQuestion (QuestionNone clears it) for ProviderID.
	SetProviderQuestion bool
	ProviderQuestion    PendingQuestion
}

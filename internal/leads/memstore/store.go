// Package memstore is an in-memory implementation of the leads storage ports.
// It backs scenario tests and local runs without a database.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"conectapro/internal/leads/domain"
	"conectapro/internal/locality"
	"conectapro/platform/apperr"
)

type inboundKey struct {
	customerID string
	messageID  string
}

// Store keeps every entity in maps guarded by one mutex.
type Store struct {
	mu         sync.Mutex
	normalizer *locality.Normalizer
	now        func() time.Time

	nextLeadID     int64
	nextCustomerID int64

	providers      map[int64]domain.Provider
	providerStates map[int64]domain.ProviderState
	customers      map[string]domain.Customer
	leads          map[int64]domain.Lead
	states         map[string]domain.ConversationState
	offers         map[int64][]domain.Offer
	reviews        []domain.Review
	inbound        map[inboundKey]string
}

// New returns an empty store.
func New(normalizer *locality.Normalizer) *Store {
	return &Store{
		normalizer:     normalizer,
		now:            time.Now,
		providers:      make(map[int64]domain.Provider),
		providerStates: make(map[int64]domain.ProviderState),
		customers:      make(map[string]domain.Customer),
		leads:          make(map[int64]domain.Lead),
		states:         make(map[string]domain.ConversationState),
		offers:         make(map[int64][]domain.Offer),
		inbound:        make(map[inboundKey]string),
	}
}

// WithClock replaces the clock used for timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// PutProvider inserts or replaces a provider.
func (s *Store) PutProvider(p domain.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Coverage = append([]string(nil), p.Coverage...)
	s.providers[p.ID] = p
}

// PutLead inserts or replaces a lead and points the customer's conversation at it.
func (s *Store) PutLead(lead domain.Lead, offers []domain.Offer) domain.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lead.ID == 0 {
		s.nextLeadID++
		lead.ID = s.nextLeadID
	} else if lead.ID > s.nextLeadID {
		s.nextLeadID = lead.ID
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = s.now()
	}
	s.leads[lead.ID] = lead
	id := lead.ID
	s.states[lead.CustomerID] = domain.ConversationState{
		CustomerID: lead.CustomerID,
		Step:       lead.Status.Step(),
		LeadID:     &id,
		UpdatedAt:  s.now(),
	}
	for i := range offers {
		offers[i].LeadID = lead.ID
	}
	s.offers[lead.ID] = append([]domain.Offer(nil), offers...)
	return lead
}

// PutState replaces a customer's conversation state.
func (s *Store) PutState(st domain.ConversationState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[st.CustomerID] = st
}

// PutCustomer inserts or replaces a customer.
func (s *Store) PutCustomer(c domain.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		s.nextCustomerID++
		c.ID = s.nextCustomerID
	}
	s.customers[c.WAID] = c
}

// Provider returns a provider by id.
func (s *Store) Provider(id int64) (domain.Provider, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.providers[id]
	return p, ok
}

// Lead returns a lead by id.
func (s *Store) Lead(id int64) (domain.Lead, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	return l, ok
}

// State returns the conversation state of a customer.
func (s *Store) State(customerID string) (domain.ConversationState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[customerID]
	return st, ok
}

// Customer returns a customer by address.
func (s *Store) Customer(waID string) (domain.Customer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[waID]
	return c, ok
}

// Offers returns the offers of a lead in rank order.
func (s *Store) Offers(leadID int64) []domain.Offer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Offer(nil), s.offers[leadID]...)
}

// Reviews returns every stored review.
func (s *Store) Reviews() []domain.Review {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Review(nil), s.reviews...)
}

// ProviderStateOf returns the routing state of a provider.
func (s *Store) ProviderStateOf(providerID int64) domain.ProviderState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.providerStates[providerID]
}

// ---------------------------------------------------------------------------
// Provider reads
// ---------------------------------------------------------------------------

func (s *Store) ListActiveServices(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(map[string]struct{})
	for _, p := range s.providers {
		if p.Active && strings.TrimSpace(p.Service) != "" {
			set[p.Service] = struct{}{}
		}
	}
	return sortedKeys(set), nil
}

func (s *Store) ListLocalities(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(map[string]struct{})
	for _, p := range s.providers {
		if strings.TrimSpace(p.Comuna) != "" {
			set[p.Comuna] = struct{}{}
		}
		for _, c := range p.Coverage {
			set[c] = struct{}{}
		}
	}
	return sortedKeys(set), nil
}

func (s *Store) ListProvidersForServices(ctx context.Context, services []string) ([]domain.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]struct{}, len(services))
	for _, svc := range services {
		want[svc] = struct{}{}
	}
	var out []domain.Provider
	for _, p := range s.providers {
		if _, ok := want[p.Service]; ok && p.Active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (s *Store) ListCandidates(ctx context.Context, service, localityKey string, limit int) ([]domain.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Provider
	for _, p := range s.providers {
		if !p.Active || !strings.EqualFold(strings.TrimSpace(p.Service), strings.TrimSpace(service)) {
			continue
		}
		for _, name := range p.Localities() {
			if s.normalizer.Key(name) == localityKey {
				out = append(out, p)
				break
			}
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].RatingAvg != out[b].RatingAvg {
			return out[a].RatingAvg > out[b].RatingAvg
		}
		if out[a].RatingCount != out[b].RatingCount {
			return out[a].RatingCount > out[b].RatingCount
		}
		return out[a].ID < out[b].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetProvider(ctx context.Context, id int64) (domain.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.providers[id]
	if !ok {
		return domain.Provider{}, apperr.NotFound("provider not found")
	}
	return p, nil
}

func (s *Store) ProviderByAddress(ctx context.Context, waID string) (domain.Provider, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	target := digits(waID)
	if target == "" {
		return domain.Provider{}, false, nil
	}
	ids := make([]int64, 0, len(s.providers))
	for id := range s.providers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	for _, id := range ids {
		if p := s.providers[id]; digits(p.WhatsApp) == target {
			return p, true, nil
		}
	}
	return domain.Provider{}, false, nil
}

func (s *Store) GetProviderState(ctx context.Context, providerID int64) (domain.ProviderState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.providerStates[providerID]
	if !ok {
		return domain.ProviderState{ProviderID: providerID}, nil
	}
	return st, nil
}

func (s *Store) RecordProviderAnswer(ctx context.Context, leadID int64, q domain.PendingQuestion, yes bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[leadID]
	if !ok {
		return apperr.NotFound("lead not found")
	}
	ans := yes
	switch q {
	case domain.QuestionContact:
		lead.ProviderContactConfirmed = &ans
	case domain.QuestionService:
		lead.ProviderServiceConfirmed = &ans
	default:
		return apperr.Validation("no pending question")
	}
	s.leads[leadID] = lead
	return nil
}

// ---------------------------------------------------------------------------
// Conversations
// ---------------------------------------------------------------------------

func (s *Store) LoadConversation(ctx context.Context, customerID string) (domain.Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[customerID]
	if !ok {
		return domain.Conversation{}, false, nil
	}
	lead, ok := s.currentLead(customerID)
	if !ok {
		return domain.Conversation{}, false, nil
	}
	conv := domain.Conversation{
		State:  st,
		Lead:   lead,
		Offers: append([]domain.Offer(nil), s.offers[lead.ID]...),
	}
	if c, ok := s.customers[customerID]; ok {
		conv.Customer = &c
	}
	return conv, true, nil
}

func (s *Store) OpenLead(ctx context.Context, customerID string) (domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.nextLeadID++
	lead := domain.Lead{
		ID:             s.nextLeadID,
		CustomerID:     customerID,
		Status:         domain.StatusOpen,
		LastActivityAt: now,
		CreatedAt:      now,
	}
	s.leads[lead.ID] = lead
	id := lead.ID
	st := domain.ConversationState{CustomerID: customerID, Step: domain.StepStart, LeadID: &id, UpdatedAt: now}
	s.states[customerID] = st

	conv := domain.Conversation{State: st, Lead: lead}
	if c, ok := s.customers[customerID]; ok {
		conv.Customer = &c
	}
	return conv, nil
}

func (s *Store) Commit(ctx context.Context, cs domain.Changeset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.leads[cs.Lead.ID]
	if !ok {
		return apperr.NotFound("lead not found")
	}
	if cs.ExpectStatus != "" && stored.Status != cs.ExpectStatus {
		return apperr.Conflict("lead status changed concurrently")
	}
	if cs.Review != nil {
		if _, ok := s.providers[cs.Review.ProviderID]; !ok {
			return apperr.NotFound("provider not found")
		}
	}

	lead := cs.Lead
	lead.ProviderContactConfirmed = stored.ProviderContactConfirmed
	lead.ProviderServiceConfirmed = stored.ProviderServiceConfirmed
	s.leads[lead.ID] = lead
	s.states[cs.State.CustomerID] = cs.State

	if cs.ReplaceOffers {
		s.offers[cs.Lead.ID] = append([]domain.Offer(nil), cs.Offers...)
	}

	if cs.Review != nil {
		p := s.providers[cs.Review.ProviderID]
		p.RatingAvg, p.RatingCount = domain.ApplyRating(p.RatingAvg, p.RatingCount, cs.Review.Stars)
		s.providers[p.ID] = p
		s.reviews = append(s.reviews, *cs.Review)
	}

	if cs.EnsureCustomer {
		if _, ok := s.customers[cs.Lead.CustomerID]; !ok {
			s.nextCustomerID++
			s.customers[cs.Lead.CustomerID] = domain.Customer{ID: s.nextCustomerID, WAID: cs.Lead.CustomerID, CreatedAt: s.now()}
		}
	}
	if cs.ReleaseCustomer {
		s.releaseCustomer(cs.Lead.CustomerID, cs.Lead.ID)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Follow-ups
// ---------------------------------------------------------------------------

func (s *Store) ListLeadsByStatus(ctx context.Context, status domain.Status) ([]domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Lead
	for _, l := range s.leads {
		if l.Status == status {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (s *Store) ApplyFollowup(ctx context.Context, t domain.FollowupTransition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lead, ok := s.leads[t.LeadID]
	if !ok || lead.Status != t.From {
		return false, nil
	}
	lead.Status = t.To
	if t.Stage != domain.FollowupNone {
		lead.FollowupStage = t.Stage
	}
	if t.SentAt != nil {
		at := *t.SentAt
		lead.FollowupSentAt = &at
	}
	s.leads[lead.ID] = lead

	if st, ok := s.states[lead.CustomerID]; ok && st.LeadID != nil && *st.LeadID == lead.ID {
		st.Step = t.To.Step()
		st.UpdatedAt = s.now()
		s.states[lead.CustomerID] = st
	}

	if t.BlockCustomerUntil != nil {
		c, ok := s.customers[lead.CustomerID]
		if !ok {
			s.nextCustomerID++
			c = domain.Customer{ID: s.nextCustomerID, WAID: lead.CustomerID, CreatedAt: s.now()}
		}
		id, until := lead.ID, *t.BlockCustomerUntil
		c.PendingLeadID = &id
		c.BlockedUntil = &until
		s.customers[lead.CustomerID] = c
	}
	if t.ReleaseCustomer {
		s.releaseCustomer(lead.CustomerID, lead.ID)
	}

	if p, ok := s.providers[t.ProviderID]; ok {
		switch {
		case t.BlockProviderUntil != nil:
			until := *t.BlockProviderUntil
			p.BlockedUntil = &until
		case t.ReleaseProvider:
			p.BlockedUntil = nil
		}
		s.providers[p.ID] = p
	}
	if t.SetProviderQuestion && t.ProviderID != 0 {
		s.setProviderQuestion(t.ProviderID, lead.ID, t.ProviderQuestion)
	}
	return true, nil
}

func (s *Store) TouchFollowup(ctx context.Context, leadID int64, status domain.Status, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[leadID]
	if !ok || lead.Status != status {
		return false, nil
	}
	lead.FollowupSentAt = &at
	s.leads[leadID] = lead
	return true, nil
}

// ---------------------------------------------------------------------------
// Inbound ledger
// ---------------------------------------------------------------------------

func (s *Store) Exists(ctx context.Context, customerID, messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inbound[inboundKey{customerID, messageID}]
	return ok, nil
}

func (s *Store) Insert(ctx context.Context, customerID, messageID, text string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := inboundKey{customerID, messageID}
	if _, ok := s.inbound[k]; ok {
		return false, nil
	}
	s.inbound[k] = text
	return true, nil
}

func (s *Store) currentLead(customerID string) (domain.Lead, bool) {
	var best domain.Lead
	found := false
	for _, l := range s.leads {
		if l.CustomerID == customerID && (!found || l.ID > best.ID) {
			best, found = l, true
		}
	}
	return best, found
}

// setProviderQuestion points the provider at leadID. Clearing only applies while the
// pending question still belongs to leadID.
func (s *Store) setProviderQuestion(providerID, leadID int64, q domain.PendingQuestion) {
	if q == domain.QuestionNone {
		ps, ok := s.providerStates[providerID]
		if !ok || ps.PendingLeadID == nil || *ps.PendingLeadID != leadID {
			return
		}
		s.providerStates[providerID] = domain.ProviderState{ProviderID: providerID}
		return
	}
	id := leadID
	s.providerStates[providerID] = domain.ProviderState{ProviderID: providerID, PendingLeadID: &id, Question: q}
}

func (s *Store) releaseCustomer(waID string, leadID int64) {
	c, ok := s.customers[waID]
	if !ok || c.PendingLeadID == nil || *c.PendingLeadID != leadID {
		return
	}
	c.PendingLeadID = nil
	c.BlockedUntil = nil
	s.customers[waID] = c
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

package flow

import (
	"context"
	"strings"
	"testing"
	"time"

	"conectapro/internal/intent"
	"conectapro/internal/leads/domain"
	"conectapro/internal/leads/matching"
	"conectapro/internal/leads/memstore"
	"conectapro/internal/leads/outbound"
	"conectapro/internal/locality"
	"conectapro/platform/logger"
)

const customer = "56911111111"

var fixedNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type harness struct {
	engine *Engine
	store  *memstore.Store
}

func newHarness(t *testing.T, providers ...domain.Provider) *harness {
	t.Helper()
	catalog, err := intent.NewCatalog([]intent.Definition{
		{ID: "electricidad", Label: "Electricista", Aliases: []string{"electricista", "electrico"}, Keywords: []string{"enchufe", "sin luz", "tablero"}},
		{ID: "gasfiteria", Label: "Gasfíter", Aliases: []string{"gasfiter", "gasfitero", "plomero"}, Keywords: []string{"fuga", "calefont", "wc"}},
		{ID: "computacion", Label: "Soporte computacional", Aliases: []string{"informatico"}, Keywords: []string{"notebook", "no prende", "no funciona"}},
		{ID: "linea_blanca", Label: "Línea blanca", Aliases: []string{"linea blanca"}, Keywords: []string{"lavadora", "no prende", "no funciona"}},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	log := logger.New("development")
	clock := func() time.Time { return fixedNow }
	norm := locality.NewNormalizer(nil)
	store := memstore.New(norm).WithClock(clock)
	for _, p := range providers {
		store.PutProvider(p)
	}

	engine := NewEngine(Deps{
		Store:      store,
		Providers:  store,
		Resolver:   intent.NewResolver(catalog, log),
		Normalizer: norm,
		Matcher:    matching.NewEngine(store, norm, 3, log).WithClock(clock),
		Region:     "CL",
		Log:        log,
	}).WithClock(clock)
	return &harness{engine: engine, store: store}
}

func (h *harness) send(t *testing.T, from, text string) []outbound.Message {
	t.Helper()
	msgs, err := h.engine.HandleIncoming(context.Background(), from, text)
	if err != nil {
		t.Fatalf("HandleIncoming(%q): %v", text, err)
	}
	return msgs
}

// current returns the customer's conversation state and lead and checks they agree.
func (h *harness) current(t *testing.T) (domain.ConversationState, domain.Lead) {
	t.Helper()
	st, ok := h.store.State(customer)
	if !ok || st.LeadID == nil {
		t.Fatalf("no conversation state for %s", customer)
	}
	lead, ok := h.store.Lead(*st.LeadID)
	if !ok {
		t.Fatalf("lead %d missing", *st.LeadID)
	}
	if lead.Status != st.Step.LeadStatus() {
		t.Fatalf("lead status %s out of step with %s", lead.Status, st.Step)
	}
	return st, lead
}

func electrician(id int64, comuna string, avg float64, count int) domain.Provider {
	return domain.Provider{
		ID:          id,
		Service:     "Electricista",
		Comuna:      comuna,
		Name:        "Electricista " + comuna,
		WhatsApp:    "+5698000000" + string(rune('0'+id)),
		Active:      true,
		RatingAvg:   avg,
		RatingCount: count,
	}
}

func TestIntentWithoutComunaAsksForComuna(t *testing.T) {
	h := newHarness(t, electrician(1, "Talcahuano", 4, 1))

	msgs := h.send(t, customer, "busco electricista")

	st, lead := h.current(t)
	if st.Step != domain.StepWaitComuna {
		t.Fatalf("expected WAIT_COMUNA, got %s", st.Step)
	}
	if id, ok := lead.Request.IntentID(); !ok || id != "electricidad" {
		t.Fatalf("expected unresolved electricidad request, got %s", lead.Request)
	}
	if len(h.store.Offers(lead.ID)) != 0 {
		t.Fatalf("no offers expected before the comuna is known")
	}
	if len(msgs) != 1 || msgs[0].Text != msgAskComuna {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
	if msgs[0].Picker == nil || msgs[0].Picker.Rows[0].ID != ComunaRowPrefix+"talcahuano" {
		t.Fatalf("expected a comuna picker, got %+v", msgs[0].Picker)
	}
	if lead.ProblemType != "busco electricista" {
		t.Fatalf("problem type not captured: %q", lead.ProblemType)
	}
}

func TestComunaReplyOpensOfferRound(t *testing.T) {
	h := newHarness(t, electrician(1, "Concepción", 4.5, 3), electrician(2, "Talcahuano", 5, 9))
	h.send(t, customer, "busco electricista")

	msgs := h.send(t, customer, "Concepción")

	st, lead := h.current(t)
	if st.Step != domain.StepWaitChoice {
		t.Fatalf("expected WAIT_CHOICE, got %s", st.Step)
	}
	if svc, ok := lead.Request.Service(); !ok || svc != "Electricista" {
		t.Fatalf("expected resolved service, got %s", lead.Request)
	}
	if lead.Comuna != "Concepción" {
		t.Fatalf("unexpected comuna %q", lead.Comuna)
	}
	offers := h.store.Offers(lead.ID)
	if len(offers) != 1 || offers[0].ProviderID != 1 || offers[0].Rank != 1 {
		t.Fatalf("unexpected offers: %+v", offers)
	}
	if len(msgs) != 1 || !strings.Contains(msgs[0].Text, "1) Electricista Concepción") || strings.Contains(msgs[0].Text, "2)") {
		t.Fatalf("expected exactly one option, got %q", msgs[0].Text)
	}
}

func TestChoiceOutOfRangeDoesNotMutate(t *testing.T) {
	h := newHarness(t, electrician(1, "Concepción", 4, 1), electrician(2, "Concepción", 3, 1))
	svc := domain.Resolved("Electricista")
	lead := h.store.PutLead(domain.Lead{CustomerID: customer, Status: domain.StatusWaitChoice, Request: svc, Comuna: "Concepción"},
		[]domain.Offer{{ProviderID: 1, Rank: 1}, {ProviderID: 2, Rank: 2}})
	before, _ := h.store.State(customer)

	msgs := h.send(t, customer, "5")

	after, stored := h.current(t)
	if len(msgs) != 1 || msgs[0].Text != msgChoiceOutOfRange {
		t.Fatalf("expected invalid option reprompt, got %+v", msgs)
	}
	if after.Step != domain.StepWaitChoice || !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Fatalf("state changed: %+v", after)
	}
	if stored.ProviderID != nil || stored.Status != lead.Status {
		t.Fatalf("lead changed: %+v", stored)
	}

	if msgs := h.send(t, customer, "dos"); msgs[0].Text != msgChoiceNotNumber {
		t.Fatalf("expected number reprompt, got %q", msgs[0].Text)
	}
}

func TestConsentDeclinedResendsOffers(t *testing.T) {
	h := newHarness(t, electrician(1, "Concepción", 4, 1), electrician(2, "Concepción", 3, 1))
	pid := int64(1)
	lead := h.store.PutLead(domain.Lead{
		CustomerID: customer,
		Status:     domain.StatusWaitConsent,
		Request:    domain.Resolved("Electricista"),
		Comuna:     "Concepción",
		ProviderID: &pid,
	}, []domain.Offer{{ProviderID: 1, Rank: 1}, {ProviderID: 2, Rank: 2}})

	msgs := h.send(t, customer, "2")

	st, stored := h.current(t)
	if st.Step != domain.StepWaitChoice {
		t.Fatalf("expected WAIT_CHOICE, got %s", st.Step)
	}
	if stored.ProviderID != nil || stored.ConnectedAt != nil {
		t.Fatalf("declined consent must not connect: %+v", stored)
	}
	if len(h.store.Offers(lead.ID)) != 2 {
		t.Fatalf("expected offers to be rebuilt")
	}
	if len(msgs) != 1 || !strings.HasPrefix(msgs[0].Text, "Tengo 2 profesionales") {
		t.Fatalf("expected offers to be resent, got %+v", msgs)
	}
	if _, ok := h.store.Customer(customer); ok {
		t.Fatalf("customer row only exists after a connection")
	}
}

func TestConsentAcceptedConnects(t *testing.T) {
	h := newHarness(t, electrician(1, "Concepción", 4, 1))
	pid := int64(1)
	h.store.PutLead(domain.Lead{
		CustomerID:  customer,
		Status:      domain.StatusWaitConsent,
		Request:     domain.Resolved("Electricista"),
		Comuna:      "Concepción",
		ProblemType: "sin luz en la cocina",
		ProviderID:  &pid,
	}, []domain.Offer{{ProviderID: 1, Rank: 1}})

	msgs := h.send(t, customer, "si")

	st, lead := h.current(t)
	if st.Step != domain.StepConnected || lead.ConnectedAt == nil || !lead.ConnectedAt.Equal(fixedNow) {
		t.Fatalf("expected connected lead, got %s %+v", st.Step, lead.ConnectedAt)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected customer and provider messages, got %d", len(msgs))
	}
	if msgs[1].To != "+56980000001" || !strings.Contains(msgs[1].Text, "Problema: sin luz en la cocina") {
		t.Fatalf("unexpected provider notification: %+v", msgs[1])
	}
	if len(msgs[1].TemplateParams) != 4 || msgs[1].TemplateParams[3] != customer {
		t.Fatalf("unexpected template params: %v", msgs[1].TemplateParams)
	}
	if _, ok := h.store.Customer(customer); !ok {
		t.Fatalf("customer should exist after connection")
	}
}

func TestRatingZeroClosesWithoutTouchingAverage(t *testing.T) {
	h := newHarness(t, electrician(1, "Concepción", 4.5, 2))
	pid := int64(1)
	h.store.PutLead(domain.Lead{CustomerID: customer, Status: domain.StatusRatingPending, ProviderID: &pid}, nil)

	msgs := h.send(t, customer, "0")

	st, lead := h.current(t)
	if st.Step != domain.StepClosed || lead.Status != domain.StatusClosed {
		t.Fatalf("expected closed lead, got %s", lead.Status)
	}
	p, _ := h.store.Provider(1)
	if p.RatingAvg != 4.5 || p.RatingCount != 2 {
		t.Fatalf("rating changed: %.2f/%d", p.RatingAvg, p.RatingCount)
	}
	if len(h.store.Reviews()) != 0 || lead.RatingStars != nil {
		t.Fatalf("no review expected")
	}
	if msgs[0].Text != msgClosedWithoutRate {
		t.Fatalf("unexpected reply %q", msgs[0].Text)
	}
}

func TestRatingUpdatesRunningMean(t *testing.T) {
	h := newHarness(t, electrician(1, "Concepción", 4, 1))
	pid := int64(1)
	h.store.PutLead(domain.Lead{CustomerID: customer, Status: domain.StatusRatingPending, ProviderID: &pid}, nil)

	h.send(t, customer, "5 excelente trabajo")

	_, lead := h.current(t)
	if lead.Status != domain.StatusClosed || lead.RatingStars == nil || *lead.RatingStars != 5 {
		t.Fatalf("unexpected lead: %+v", lead)
	}
	p, _ := h.store.Provider(1)
	if p.RatingAvg != 4.5 || p.RatingCount != 2 {
		t.Fatalf("expected 4.5/2, got %.2f/%d", p.RatingAvg, p.RatingCount)
	}
	reviews := h.store.Reviews()
	if len(reviews) != 1 || reviews[0].Comment != "excelente trabajo" {
		t.Fatalf("unexpected reviews: %+v", reviews)
	}

	if msgs := h.send(t, customer, "7"); msgs[0].Text != msgIntro && !strings.HasPrefix(msgs[0].Text, "No logré") {
		t.Fatalf("closed lead should start a new conversation, got %q", msgs[0].Text)
	}
}

func TestAmbiguousTextAsksForClarification(t *testing.T) {
	h := newHarness(t, electrician(1, "Concepción", 4, 1))

	msgs := h.send(t, customer, "no funciona")
	st, _ := h.current(t)
	if st.Step != domain.StepWaitIntentClarification || len(st.Scratch.IntentOptions) != 2 {
		t.Fatalf("expected clarification step, got %s %+v", st.Step, st.Scratch)
	}
	if !strings.Contains(msgs[0].Text, "1) Soporte computacional") {
		t.Fatalf("unexpected question %q", msgs[0].Text)
	}

	if msgs := h.send(t, customer, "3"); msgs[0].Text != msgPickOneOrTwo {
		t.Fatalf("expected 1-or-2 reprompt, got %q", msgs[0].Text)
	}

	h.send(t, customer, "2")
	st, lead := h.current(t)
	if st.Step != domain.StepWaitComuna || !st.Scratch.IsZero() {
		t.Fatalf("expected WAIT_COMUNA with clean scratch, got %s %+v", st.Step, st.Scratch)
	}
	if id, _ := lead.Request.IntentID(); id != "linea_blanca" {
		t.Fatalf("expected linea_blanca, got %s", lead.Request)
	}
}

func TestNoProvidersRemembersIntent(t *testing.T) {
	h := newHarness(t,
		electrician(1, "Talcahuano", 4, 1),
		electrician(2, "Concepción", 4, 1),
		domain.Provider{ID: 3, Service: "Gasfiter", Comuna: "Coronel", Active: true},
	)

	msgs := h.send(t, customer, "necesito electricista en Coronel")
	st, _ := h.current(t)
	if st.Step != domain.StepWaitService || st.Scratch.PreviousIntent != "electricidad" {
		t.Fatalf("expected remembered intent, got %s %+v", st.Step, st.Scratch)
	}
	if !strings.Contains(msgs[0].Text, "Tenemos disponibles en:") || msgs[0].Picker == nil {
		t.Fatalf("expected nearby comunas, got %+v", msgs[0])
	}

	h.send(t, customer, "Talcahuano")
	st, lead := h.current(t)
	if st.Step != domain.StepWaitChoice || lead.Comuna != "Talcahuano" || !st.Scratch.IsZero() {
		t.Fatalf("expected offers in Talcahuano, got %s %q %+v", st.Step, lead.Comuna, st.Scratch)
	}
}

func TestUnknownTextStaysWaitingForService(t *testing.T) {
	h := newHarness(t)

	if msgs := h.send(t, customer, "quiero algo"); msgs[0].Text != msgNoIntent {
		t.Fatalf("unexpected first reply %q", msgs[0].Text)
	}
	if msgs := h.send(t, customer, "mmm"); msgs[0].Text != msgStillNoIntent {
		t.Fatalf("unexpected second reply %q", msgs[0].Text)
	}
	st, _ := h.current(t)
	if st.Step != domain.StepWaitService {
		t.Fatalf("expected WAIT_SERVICE, got %s", st.Step)
	}
}

func TestGreetingResetsOpenConversation(t *testing.T) {
	h := newHarness(t, electrician(1, "Concepción", 4, 1))
	h.send(t, customer, "busco electricista")

	msgs := h.send(t, customer, "Hola")

	st, lead := h.current(t)
	if st.Step != domain.StepStart || !lead.Request.IsZero() {
		t.Fatalf("expected reset, got %s %s", st.Step, lead.Request)
	}
	if msgs[0].Text != msgIntro {
		t.Fatalf("expected intro, got %q", msgs[0].Text)
	}
}

func TestGreetingWhileBlockedKeepsFollowup(t *testing.T) {
	h := newHarness(t, electrician(1, "Concepción", 4, 1))
	pid := int64(1)
	lead := h.store.PutLead(domain.Lead{CustomerID: customer, Status: domain.StatusContactConfirmPending, ProviderID: &pid}, nil)
	until := fixedNow.Add(24 * time.Hour)
	h.store.PutCustomer(domain.Customer{WAID: customer, PendingLeadID: &lead.ID, BlockedUntil: &until})

	msgs := h.send(t, customer, "hola")
	if msgs[0].Text != msgPendingFollowup {
		t.Fatalf("expected pending follow-up reply, got %q", msgs[0].Text)
	}
	st, _ := h.current(t)
	if *st.LeadID != lead.ID {
		t.Fatalf("blocked customer must stay on lead %d", lead.ID)
	}

	h.send(t, customer, "1")
	stored, _ := h.store.Lead(lead.ID)
	if stored.UserContactConfirmed == nil || !*stored.UserContactConfirmed {
		t.Fatalf("expected contact confirmation, got %+v", stored.UserContactConfirmed)
	}
}

func TestGreetingAfterConnectionOpensNewLead(t *testing.T) {
	h := newHarness(t, electrician(1, "Concepción", 4, 1))
	pid := int64(1)
	old := h.store.PutLead(domain.Lead{CustomerID: customer, Status: domain.StatusConnected, ProviderID: &pid}, nil)

	if msgs := h.send(t, customer, "ok"); msgs[0].Text != msgConnectedStatus {
		t.Fatalf("unexpected status reply %q", msgs[0].Text)
	}

	h.send(t, customer, "hola")
	st, lead := h.current(t)
	if lead.ID == old.ID || st.Step != domain.StepStart {
		t.Fatalf("expected a fresh lead, got %d at %s", lead.ID, st.Step)
	}
	if prev, _ := h.store.Lead(old.ID); prev.Status != domain.StatusConnected {
		t.Fatalf("previous lead must be untouched, got %s", prev.Status)
	}
}

func TestCustomerAnswersServiceQuestion(t *testing.T) {
	h := newHarness(t, electrician(1, "Concepción", 4, 1))
	pid := int64(1)
	lead := h.store.PutLead(domain.Lead{CustomerID: customer, Status: domain.StatusConnected, ProviderID: &pid}, nil)
	_, err := h.store.ApplyFollowup(context.Background(), domain.FollowupTransition{
		LeadID: lead.ID, From: domain.StatusConnected, To: domain.StatusServiceConfirmPending,
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	h.send(t, customer, "no")

	stored, _ := h.store.Lead(lead.ID)
	if stored.UserServiceConfirmed == nil || *stored.UserServiceConfirmed {
		t.Fatalf("expected a recorded service answer, got %+v", stored.UserServiceConfirmed)
	}
}

func TestProviderRepliesRouteToPendingQuestion(t *testing.T) {
	p := electrician(1, "Concepción", 4, 1)
	h := newHarness(t, p)
	pid := p.ID
	lead := h.store.PutLead(domain.Lead{CustomerID: customer, Status: domain.StatusConnected, ProviderID: &pid}, nil)

	if msgs := h.send(t, p.WhatsApp, "1"); msgs[0].Text != msgNoPendingProvider {
		t.Fatalf("expected no pending follow-ups, got %q", msgs[0].Text)
	}

	ok, err := h.store.ApplyFollowup(context.Background(), domain.FollowupTransition{
		LeadID: lead.ID, ProviderID: pid, From: domain.StatusConnected, To: domain.StatusContactConfirmPending,
		SetProviderQuestion: true, ProviderQuestion: domain.QuestionContact,
	})
	if err != nil || !ok {
		t.Fatalf("apply follow-up: %v %v", ok, err)
	}

	if msgs := h.send(t, "56 9 8000 0001", "tal vez"); msgs[0].Text != msgAnswerYesNo {
		t.Fatalf("expected yes/no reprompt, got %q", msgs[0].Text)
	}
	msgs := h.send(t, p.WhatsApp, "si")
	if msgs[0].Text != msgAnswerRecorded || msgs[0].To != "56980000001" {
		t.Fatalf("unexpected reply %+v", msgs[0])
	}
	stored, _ := h.store.Lead(lead.ID)
	if stored.ProviderContactConfirmed == nil || !*stored.ProviderContactConfirmed {
		t.Fatalf("provider answer not recorded")
	}
}

// answeringStore records a provider answer right before each customer commit lands.
type answeringStore struct {
	*memstore.Store
	leadID int64
}

func (s *answeringStore) Commit(ctx context.Context, cs domain.Changeset) error {
	if err := s.RecordProviderAnswer(ctx, s.leadID, domain.QuestionContact, true); err != nil {
		return err
	}
	return s.Store.Commit(ctx, cs)
}

func TestCustomerTurnKeepsConcurrentProviderAnswer(t *testing.T) {
	h := newHarness(t, electrician(1, "Concepción", 4, 1))
	pid := int64(1)
	lead := h.store.PutLead(domain.Lead{CustomerID: customer, Status: domain.StatusContactConfirmPending, ProviderID: &pid}, nil)
	h.engine.store = &answeringStore{Store: h.store, leadID: lead.ID}

	h.send(t, customer, "1")

	stored, _ := h.store.Lead(lead.ID)
	if stored.UserContactConfirmed == nil || !*stored.UserContactConfirmed {
		t.Fatalf("customer answer not recorded: %+v", stored.UserContactConfirmed)
	}
	if stored.ProviderContactConfirmed == nil || !*stored.ProviderContactConfirmed {
		t.Fatalf("provider answer lost: %+v", stored.ProviderContactConfirmed)
	}
}

func TestShortComunaIsRejected(t *testing.T) {
	h := newHarness(t, electrician(1, "Concepción", 4, 1))
	h.send(t, customer, "busco electricista")

	msgs := h.send(t, customer, "ab")

	st, lead := h.current(t)
	if msgs[0].Text != msgComunaTooShort || st.Step != domain.StepWaitComuna {
		t.Fatalf("expected comuna reprompt at WAIT_COMUNA, got %q at %s", msgs[0].Text, st.Step)
	}
	if lead.Comuna != "" || len(h.store.Offers(lead.ID)) != 0 {
		t.Fatalf("short input must not touch the lead: %+v", lead)
	}
}

func TestUnmappedClarificationReturnsToService(t *testing.T) {
	h := newHarness(t, electrician(1, "Concepción", 4, 1))
	lead := h.store.PutLead(domain.Lead{CustomerID: customer, Status: domain.StatusWaitService}, nil)
	h.store.PutState(domain.ConversationState{
		CustomerID: customer,
		Step:       domain.StepWaitIntentClarification,
		LeadID:     &lead.ID,
		Scratch:    domain.Scratch{IntentOptions: []string{"Carpintero", "Electricista"}},
	})

	msgs := h.send(t, customer, "1")

	st, lead := h.current(t)
	if msgs[0].Text != msgClarificationUnmapped || st.Step != domain.StepWaitService {
		t.Fatalf("expected WAIT_SERVICE with unmapped reply, got %q at %s", msgs[0].Text, st.Step)
	}
	if !st.Scratch.IsZero() || !lead.Request.IsZero() {
		t.Fatalf("expected cleared scratch and request, got %+v %s", st.Scratch, lead.Request)
	}
}

func TestUnknownStepResetsToStart(t *testing.T) {
	h := newHarness(t)
	lead := h.store.PutLead(domain.Lead{CustomerID: customer, Status: domain.StatusOpen}, nil)
	h.store.PutState(domain.ConversationState{CustomerID: customer, Step: domain.Step("ARCHIVED"), LeadID: &lead.ID})

	msgs := h.send(t, customer, "quiero algo")

	st, _ := h.current(t)
	if st.Step != domain.StepStart || msgs[0].Text != msgIntro {
		t.Fatalf("expected reset to START with intro, got %q at %s", msgs[0].Text, st.Step)
	}
}

func TestIntentAndComunaInOneMessageOpensOffers(t *testing.T) {
	h := newHarness(t, electrician(1, "Concepción", 4.5, 3))

	msgs := h.send(t, customer, "necesito electricista en Concepción")

	st, lead := h.current(t)
	if st.Step != domain.StepWaitChoice {
		t.Fatalf("expected WAIT_CHOICE, got %s", st.Step)
	}
	if svc, ok := lead.Request.Service(); !ok || svc != "Electricista" || lead.Comuna != "Concepción" {
		t.Fatalf("unexpected lead %s %q", lead.Request, lead.Comuna)
	}
	if offers := h.store.Offers(lead.ID); len(offers) != 1 || offers[0].Rank != 1 {
		t.Fatalf("expected one offer, got %+v", offers)
	}
	if !strings.HasPrefix(msgs[0].Text, "Tengo 1 profesionales") {
		t.Fatalf("unexpected offers message %q", msgs[0].Text)
	}
}

func TestServiceNameWithoutIntentFallsBackToService(t *testing.T) {
	h := newHarness(t, domain.Provider{ID: 7, Service: "Cerrajero", Comuna: "Concepción", Name: "Llaves Sur", WhatsApp: "+56980000007", Active: true})

	msgs := h.send(t, customer, "busco cerrajero")

	st, lead := h.current(t)
	if st.Step != domain.StepWaitComuna || msgs[0].Text != msgAskComuna {
		t.Fatalf("expected WAIT_COMUNA, got %q at %s", msgs[0].Text, st.Step)
	}
	if svc, ok := lead.Request.Service(); !ok || svc != "Cerrajero" {
		t.Fatalf("expected resolved Cerrajero, got %s", lead.Request)
	}

	h.send(t, customer, "Concepción")
	st, lead = h.current(t)
	if st.Step != domain.StepWaitChoice || len(h.store.Offers(lead.ID)) != 1 {
		t.Fatalf("expected one offer, got %s %+v", st.Step, h.store.Offers(lead.ID))
	}
}

package flow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"conectapro/internal/events"
	"conectapro/internal/intent"
	"conectapro/internal/leads/domain"
	"conectapro/internal/leads/matching"
	"conectapro/internal/leads/outbound"
	"conectapro/internal/locality"
	"conectapro/internal/whatsapp"
	"conectapro/platform/apperr"
	"conectapro/platform/logger"
)

// turn is the read-only input of one transition.
type turn struct {
	conv domain.Conversation
	text string
	now  time.Time
	view *view
}

// view is live provider data read once per turn.
type view struct {
	services []string
	index    *intent.ServiceIndex
	dir      locality.Directory
}

// machine holds the collaborators transitions read from. It never writes.
type machine struct {
	resolver   *intent.Resolver
	normalizer *locality.Normalizer
	matcher    *matching.Engine
	providers  ProviderReader
	log        *logger.Logger
}

func (m *machine) loadView(ctx context.Context, t *turn) (*view, error) {
	if t.view != nil {
		return t.view, nil
	}
	services, err := m.matcher.Services(ctx)
	if err != nil {
		return nil, err
	}
	dir, err := m.matcher.Localities(ctx)
	if err != nil {
		return nil, err
	}
	t.view = &view{
		services: services,
		index:    intent.BuildServiceIndex(services, m.resolver.Catalog()),
		dir:      dir,
	}
	return t.view, nil
}

// step runs the transition for the current step.
func (m *machine) step(ctx context.Context, t *turn) (*Result, error) {
	r := newResult(t.conv)

	if isGreeting(t.text) {
		if t.conv.State.Step != domain.StepStart {
			r.Lead.Request = domain.ServiceRequest{}
			r.Lead.Comuna = ""
			r.Lead.ProviderID = nil
			r.clearScratch()
			r.moveTo(domain.StepStart)
		}
		r.say(msgIntro)
		return r, nil
	}

	var err error
	switch t.conv.State.Step {
	case domain.StepStart:
		r.Lead.ProblemType = problemDescription(t.text)
		r.touch()
		err = m.interpret(ctx, t, r, true)
	case domain.StepWaitService:
		err = m.waitService(ctx, t, r)
	case domain.StepWaitIntentClarification:
		m.waitClarification(t, r)
	case domain.StepWaitComuna:
		err = m.waitComuna(ctx, t, r)
	case domain.StepWaitChoice:
		m.waitChoice(t, r)
	case domain.StepWaitConsent:
		err = m.waitConsent(ctx, t, r)
	case domain.StepConnected:
		r.say(msgConnectedStatus)
	case domain.StepContactConfirmPending:
		m.customerConfirmation(t, r, &r.Lead.UserContactConfirmed)
	case domain.StepServiceConfirmPending:
		m.customerConfirmation(t, r, &r.Lead.UserServiceConfirmed)
	case domain.StepRatingPending:
		m.rating(t, r)
	default:
		m.log.WithContext(ctx).Warn("unknown conversation step; resetting", "step", string(t.conv.State.Step), "leadId", t.conv.Lead.ID)
		r.clearScratch()
		r.moveTo(domain.StepStart)
		r.say(msgIntro)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// interpret resolves free text into an intent, a concrete service or a clarification.
func (m *machine) interpret(ctx context.Context, t *turn, r *Result, first bool) error {
	res := m.resolver.Resolve(ctx, t.text)
	r.emit(events.IntentResolved{BaseEvent: events.BaseEventAt(t.now), Outcome: outcomeOf(res), Method: res.Method})

	if res.Clarify {
		r.State.Scratch = domain.Scratch{IntentOptions: append([]string(nil), res.Options...)}
		r.moveTo(domain.StepWaitIntentClarification)
		r.say(res.Question)
		return nil
	}

	v, err := m.loadView(ctx, t)
	if err != nil {
		return err
	}

	if res.IntentID != "" {
		if u := strings.TrimSpace(res.Entities.Urgency); u != "" {
			r.Lead.Urgency = u
		}

		comuna := strings.TrimSpace(res.Entities.Comuna)
		if comuna == "" {
			if found, ok := m.normalizer.Extract(t.text, v.dir); ok {
				comuna = found.Display
			}
		}
		if comuna != "" {
			return m.resolveInComuna(ctx, t, r, res.IntentID, m.normalizer.Resolve(comuna, v.dir), false)
		}

		r.Lead.Request = domain.Unresolved(res.IntentID)
		r.clearScratch()
		r.moveTo(domain.StepWaitComuna)
		alternatives, err := m.matcher.AvailableLocalities(ctx, res.IntentID, v.index, "")
		if err != nil {
			return err
		}
		r.sayPicker(msgAskComuna, m.comunaRows(alternatives))
		return nil
	}

	if svc, ok := intent.MatchService(t.text, v.services); ok {
		r.Lead.Request = domain.Resolved(svc)
		r.clearScratch()
		r.moveTo(domain.StepWaitComuna)
		r.say(msgAskComuna)
		return nil
	}

	r.moveTo(domain.StepWaitService)
	if first {
		r.say(msgNoIntent)
	} else {
		r.say(msgStillNoIntent)
	}
	return nil
}

// resolveInComuna turns intentID into the best service in comuna and opens a matching round.
// On a miss it remembers the intent and suggests nearby comunas.
func (m *machine) resolveInComuna(ctx context.Context, t *turn, r *Result, intentID string, c locality.Match, again bool) error {
	v, err := m.loadView(ctx, t)
	if err != nil {
		return err
	}

	best, ok, err := m.matcher.PickBestServiceForIntent(ctx, intentID, c.Key, v.index)
	if err != nil {
		return err
	}
	if ok {
		r.Lead.Request = domain.Resolved(best)
		r.Lead.Comuna = c.Display
		r.clearScratch()
		return m.offerRound(ctx, t, r)
	}

	alternatives, err := m.matcher.AvailableLocalities(ctx, intentID, v.index, c.Display)
	if err != nil {
		return err
	}
	r.Lead.Request = domain.ServiceRequest{}
	r.Lead.Comuna = ""
	if again {
		r.clearScratch()
		r.sayPicker(noProvidersAgain(c.Display, alternatives), m.comunaRows(alternatives))
	} else {
		r.State.Scratch.IntentOptions = nil
		r.State.Scratch.PreviousIntent = intentID
		r.sayPicker(noProvidersIn(c.Display, alternatives), m.comunaRows(alternatives))
	}
	r.moveTo(domain.StepWaitService)
	return nil
}

func (m *machine) waitService(ctx context.Context, t *turn, r *Result) error {
	if prev := t.conv.State.Scratch.PreviousIntent; prev != "" {
		v, err := m.loadView(ctx, t)
		if err != nil {
			return err
		}
		if c := m.normalizer.Resolve(t.text, v.dir); c.Known {
			return m.resolveInComuna(ctx, t, r, prev, c, true)
		}
	}
	return m.interpret(ctx, t, r, false)
}

func (m *machine) waitClarification(t *turn, r *Result) {
	choice, ok := pickOneOrTwo(t.text)
	if !ok {
		r.say(msgPickOneOrTwo)
		return
	}
	options := t.conv.State.Scratch.IntentOptions
	if choice > len(options) {
		r.say(msgInvalidOneOrTwo)
		return
	}

	id, ok := m.resolver.Catalog().IDForLabel(options[choice-1])
	if !ok {
		r.clearScratch()
		r.moveTo(domain.StepWaitService)
		r.say(msgClarificationUnmapped)
		return
	}

	r.Lead.Request = domain.Unresolved(id)
	r.clearScratch()
	r.moveTo(domain.StepWaitComuna)
	r.say(msgAskComunaAfterChoice)
}

func (m *machine) waitComuna(ctx context.Context, t *turn, r *Result) error {
	raw := strings.TrimSpace(t.text)
	if len([]rune(raw)) < 3 {
		r.say(msgComunaTooShort)
		return nil
	}

	v, err := m.loadView(ctx, t)
	if err != nil {
		return err
	}
	c := m.normalizer.Resolve(raw, v.dir)
	r.Lead.Comuna = c.Display
	r.touch()

	if intentID, ok := r.Lead.Request.IntentID(); ok {
		return m.resolveInComuna(ctx, t, r, intentID, c, false)
	}
	return m.offerRound(ctx, t, r)
}

// offerRound runs matching for the lead's service and comuna and replaces its offers.
func (m *machine) offerRound(ctx context.Context, t *turn, r *Result) error {
	service, ok := r.Lead.Request.Service()
	if !ok || strings.TrimSpace(r.Lead.Comuna) == "" {
		r.moveTo(domain.StepWaitService)
		r.say(msgNeedServiceAndComuna)
		return nil
	}

	providers, err := m.matcher.FindTopProviders(ctx, service, r.Lead.Comuna, m.matcher.Limit())
	if err != nil {
		return err
	}
	if len(providers) == 0 {
		if t.view != nil {
			if id, ok := t.view.index.IntentFor(service); ok {
				r.State.Scratch.PreviousIntent = id
			}
		}
		r.moveTo(domain.StepWaitService)
		r.say(msgNoProviders)
		return nil
	}

	r.ReplaceOffers = true
	r.Offers = matching.BuildOffers(r.Lead.ID, providers)
	r.moveTo(domain.StepWaitChoice)
	r.say(matching.OffersMessage(r.Lead.Comuna, providers))
	return nil
}

func (m *machine) waitChoice(t *turn, r *Result) {
	offers := t.conv.Offers
	if len(offers) == 0 {
		r.moveTo(domain.StepWaitService)
		r.say(msgNoOffers)
		return
	}

	n, numeric := parseChoice(t.text)
	if !numeric {
		r.say(msgChoiceNotNumber)
		return
	}
	if n < 1 || n > len(offers) {
		r.say(msgChoiceOutOfRange)
		return
	}

	providerID := offers[n-1].ProviderID
	r.Lead.ProviderID = &providerID
	r.moveTo(domain.StepWaitConsent)
	r.say(msgConsent)
}

func (m *machine) waitConsent(ctx context.Context, t *turn, r *Result) error {
	yes, ok := parseYesNo(t.text)
	if !ok {
		r.say(msgAnswerYesNo)
		return nil
	}

	if !yes {
		r.Lead.ProviderID = nil
		r.moveTo(domain.StepWaitChoice)
		return m.offerRound(ctx, t, r)
	}

	provider, found, err := m.assignedProvider(ctx, r.Lead)
	if err != nil {
		return err
	}
	if !found {
		m.log.WithContext(ctx).Warn("assigned provider missing; back to offers", "leadId", r.Lead.ID)
		r.Lead.ProviderID = nil
		r.say(msgProviderMissing)
		r.moveTo(domain.StepWaitChoice)
		return m.offerRound(ctx, t, r)
	}

	connectedAt := t.now
	r.Lead.ConnectedAt = &connectedAt
	r.EnsureCustomer = true
	r.moveTo(domain.StepConnected)
	r.say(connectedForCustomer(provider))
	if strings.TrimSpace(provider.WhatsApp) != "" {
		r.send(outbound.Message{
			To:             provider.WhatsApp,
			Text:           newClientForProvider(r.Lead),
			TemplateParams: newClientParams(r.Lead),
		})
	}

	service, _ := r.Lead.Request.Service()
	r.emit(events.LeadConnected{
		BaseEvent:  events.BaseEventAt(t.now),
		LeadID:     r.Lead.ID,
		ProviderID: provider.ID,
		Service:    service,
		Comuna:     r.Lead.Comuna,
	})
	return nil
}

func (m *machine) assignedProvider(ctx context.Context, lead domain.Lead) (domain.Provider, bool, error) {
	if lead.ProviderID == nil {
		return domain.Provider{}, false, nil
	}
	p, err := m.providers.GetProvider(ctx, *lead.ProviderID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return domain.Provider{}, false, nil
		}
		return domain.Provider{}, false, fmt.Errorf("get provider: %w", err)
	}
	if !p.Active {
		return domain.Provider{}, false, nil
	}
	return p, true, nil
}

func (m *machine) customerConfirmation(t *turn, r *Result, field **bool) {
	yes, ok := parseYesNo(t.text)
	if !ok {
		r.say(msgAnswerYesNo)
		return
	}
	*field = &yes
	r.touch()
	r.say(msgAnswerRecorded)
}

func (m *machine) rating(t *turn, r *Result) {
	stars, comment, ok := parseRating(t.text)
	if !ok {
		r.say(msgRatingPrompt)
		return
	}

	r.ReleaseCustomer = true
	r.moveTo(domain.StepClosed)

	if stars == 0 || r.Lead.ProviderID == nil {
		r.say(msgClosedWithoutRate)
		r.emit(events.LeadClosed{BaseEvent: events.BaseEventAt(t.now), LeadID: r.Lead.ID, Reason: "rating_skipped"})
		return
	}

	r.Lead.RatingStars = &stars
	r.Lead.RatingComment = comment
	r.Review = &domain.Review{
		LeadID:     r.Lead.ID,
		ProviderID: *r.Lead.ProviderID,
		CustomerID: r.Lead.CustomerID,
		Stars:      stars,
		Comment:    comment,
		CreatedAt:  t.now,
	}
	r.say(msgRated)
	r.emit(events.ProviderRated{BaseEvent: events.BaseEventAt(t.now), LeadID: r.Lead.ID, ProviderID: *r.Lead.ProviderID, Stars: stars})
	r.emit(events.LeadClosed{BaseEvent: events.BaseEventAt(t.now), LeadID: r.Lead.ID, Reason: "rated"})
}

func (m *machine) comunaRows(names []string) []whatsapp.Row {
	if len(names) > whatsapp.MaxListRows {
		names = names[:whatsapp.MaxListRows]
	}
	rows := make([]whatsapp.Row, 0, len(names))
	for _, name := range names {
		rows = append(rows, whatsapp.Row{ID: ComunaRowPrefix + m.normalizer.Key(name), Title: name})
	}
	return rows
}

func outcomeOf(res intent.Resolution) string {
	switch {
	case res.Clarify:
		return "clarify"
	case res.IntentID != "":
		return "resolved"
	default:
		return "none"
	}
}

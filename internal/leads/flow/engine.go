// Package flow runs the customer conversation: one inbound message in, a committed
// state change and a list of outbound messages out.
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
	"conectapro/platform/apperr"
	"conectapro/platform/logger"
	"conectapro/platform/phone"
	"conectapro/platform/redislock"
)

// ComunaRowPrefix marks interactive list replies that carry a comuna key.
const ComunaRowPrefix = "comuna:"

// ConversationStore persists conversations. Commit is atomic and rejects a changeset
// whose ExpectStatus no longer matches with an apperr conflict.
type ConversationStore interface {
	LoadConversation(ctx context.Context, customerID string) (domain.Conversation, bool, error)
	OpenLead(ctx context.Context, customerID string) (domain.Conversation, error)
	Commit(ctx context.Context, cs domain.Changeset) error
}

// ProviderReader reads provider records.
type ProviderReader interface {
	GetProvider(ctx context.Context, id int64) (domain.Provider, error)
}

// ProviderDirectory serves provider-originated messages.
type ProviderDirectory interface {
	ProviderReader
	ProviderByAddress(ctx context.Context, waID string) (domain.Provider, bool, error)
	GetProviderState(ctx context.Context, providerID int64) (domain.ProviderState, error)
	RecordProviderAnswer(ctx context.Context, leadID int64, q domain.PendingQuestion, yes bool) error
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Store      ConversationStore
	Providers  ProviderDirectory
	Resolver   *intent.Resolver
	Normalizer *locality.Normalizer
	Matcher    *matching.Engine
	Dispatcher *outbound.Dispatcher
	Bus        events.Bus
	Locker     redislock.Locker
	Region     string
	Log        *logger.Logger
}

// Engine processes inbound messages one customer at a time.
type Engine struct {
	store      ConversationStore
	providers  ProviderDirectory
	dispatcher *outbound.Dispatcher
	bus        events.Bus
	locker     redislock.Locker
	region     string
	machine    *machine
	now        func() time.Time
	log        *logger.Logger
}

// NewEngine wires an Engine. Dispatcher and Bus may be nil, in which case messages
// are only returned and events are dropped.
func NewEngine(d Deps) *Engine {
	locker := d.Locker
	if locker == nil {
		locker = redislock.NewLocalLocker()
	}
	return &Engine{
		store:      d.Store,
		providers:  d.Providers,
		dispatcher: d.Dispatcher,
		bus:        d.Bus,
		locker:     locker,
		region:     d.Region,
		machine: &machine{
			resolver:   d.Resolver,
			normalizer: d.Normalizer,
			matcher:    d.Matcher,
			providers:  d.Providers,
			log:        d.Log,
		},
		now: time.Now,
		log: d.Log,
	}
}

// WithClock replaces the engine clock.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// HandleIncoming processes one message from customerID and returns the messages it sent.
func (e *Engine) HandleIncoming(ctx context.Context, customerID, text string) ([]outbound.Message, error) {
	waID := phone.WhatsAppID(customerID, e.region)
	if waID == "" {
		return nil, apperr.Validation("empty sender address")
	}
	text = strings.TrimSpace(text)
	ctx = context.WithValue(ctx, logger.CustomerIDKey, waID)

	release, err := e.locker.Acquire(ctx, "conversation:"+waID)
	if err != nil {
		return nil, fmt.Errorf("lock conversation: %w", err)
	}
	defer func() {
		if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
			e.log.WithContext(ctx).Warn("release conversation lock", "error", rerr)
		}
	}()

	if msgs, handled, err := e.handleProvider(ctx, waID, text); err != nil || handled {
		return e.finish(ctx, msgs, nil), err
	}

	var res *Result
	var from domain.Step
	for attempt := 0; ; attempt++ {
		res, from, err = e.runTurn(ctx, waID, text)
		if err == nil {
			break
		}
		if attempt == 0 && apperr.Is(err, apperr.KindConflict) {
			e.log.WithContext(ctx).Info("lead changed during turn; retrying")
			continue
		}
		return nil, err
	}

	e.log.WithContext(ctx).ConversationTurn(string(from), string(res.State.Step), len(res.Messages))
	return e.finish(ctx, res.Messages, res.Events), nil
}

func (e *Engine) runTurn(ctx context.Context, waID, text string) (*Result, domain.Step, error) {
	now := e.now()
	conv, err := e.conversation(ctx, waID, text, now)
	if err != nil {
		return nil, "", err
	}
	from := conv.State.Step

	if conv.Lead.Status.PostConnection() && isGreeting(text) {
		if conv.BlockedOn(conv.Lead.ID, now) {
			r := newResult(conv)
			r.say(msgPendingFollowup)
			return r, from, nil
		}
		if conv, err = e.store.OpenLead(ctx, waID); err != nil {
			return nil, "", fmt.Errorf("open lead: %w", err)
		}
	}

	res, err := e.machine.step(ctx, &turn{conv: conv, text: text, now: now})
	if err != nil {
		return nil, "", err
	}
	if !res.Mutated() {
		return res, from, nil
	}

	res.seal(now)
	if err := e.store.Commit(ctx, res.Changeset); err != nil {
		return nil, "", err
	}
	return res, from, nil
}

// conversation loads the customer's current lead, opening one when there is none
// or the last one is closed, and realigns a step the scheduler moved on.
func (e *Engine) conversation(ctx context.Context, waID, text string, now time.Time) (domain.Conversation, error) {
	conv, ok, err := e.store.LoadConversation(ctx, waID)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("load conversation: %w", err)
	}
	if !ok || conv.Lead.Status == domain.StatusClosed {
		conv, err = e.store.OpenLead(ctx, waID)
		if err != nil {
			return domain.Conversation{}, fmt.Errorf("open lead: %w", err)
		}
		return conv, nil
	}

	if s := conv.Lead.Status; (s.PostConnection() || s.IsTerminal()) && conv.State.Step != s.Step() {
		e.log.WithContext(ctx).Info("realigning conversation step with lead status",
			"leadId", conv.Lead.ID, "step", string(conv.State.Step), "status", string(s))
		conv.State.Step = s.Step()
	}
	return conv, nil
}

// handleProvider answers messages sent by a registered provider.
func (e *Engine) handleProvider(ctx context.Context, waID, text string) ([]outbound.Message, bool, error) {
	if e.providers == nil {
		return nil, false, nil
	}
	p, ok, err := e.providers.ProviderByAddress(ctx, waID)
	if err != nil {
		return nil, false, fmt.Errorf("lookup provider: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	reply := func(body string) []outbound.Message {
		return []outbound.Message{outbound.Text(waID, body)}
	}

	st, err := e.providers.GetProviderState(ctx, p.ID)
	if err != nil {
		return nil, true, fmt.Errorf("provider state: %w", err)
	}
	if !st.Awaiting() {
		return reply(msgNoPendingProvider), true, nil
	}

	yes, valid := parseYesNo(text)
	if !valid {
		return reply(msgAnswerYesNo), true, nil
	}
	if err := e.providers.RecordProviderAnswer(ctx, *st.PendingLeadID, st.Question, yes); err != nil {
		return nil, true, fmt.Errorf("record provider answer: %w", err)
	}
	e.log.WithContext(ctx).Info("provider answer recorded",
		"providerId", p.ID, "leadId", *st.PendingLeadID, "question", string(st.Question), "yes", yes)
	return reply(msgAnswerRecorded), true, nil
}

func (e *Engine) finish(ctx context.Context, msgs []outbound.Message, evs []events.Event) []outbound.Message {
	if e.dispatcher != nil && len(msgs) > 0 {
		e.dispatcher.Deliver(ctx, msgs)
	}
	if e.bus != nil {
		for _, ev := range evs {
			e.bus.Publish(ctx, ev)
		}
	}
	return msgs
}

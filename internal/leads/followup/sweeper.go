// Package followup advances connected leads through contact, service and rating
// confirmation on a periodic sweep.
package followup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"conectapro/internal/events"
	"conectapro/internal/leads/domain"
	"conectapro/internal/leads/outbound"
	"conectapro/platform/apperr"
	"conectapro/platform/logger"
)

const (
	defaultContactAfter   = 24 * time.Hour
	defaultReminderEvery  = 24 * time.Hour
	defaultPracticalBlock = 7 * 24 * time.Hour
	defaultSweepInterval  = 30 * time.Second
)

// Store is what the sweeper reads and writes. ApplyFollowup and TouchFollowup act only
// while the lead still has the given status and report whether they did.
type Store interface {
	ListLeadsByStatus(ctx context.Context, status domain.Status) ([]domain.Lead, error)
	GetProvider(ctx context.Context, id int64) (domain.Provider, error)
	ApplyFollowup(ctx context.Context, t domain.FollowupTransition) (bool, error)
	TouchFollowup(ctx context.Context, leadID int64, status domain.Status, at time.Time) (bool, error)
}

// Report counts what one pass did.
type Report struct {
	ContactRequested int
	ServiceRequested int
	RatingRequested  int
	Closed           int
	Reminders        int
}

// Total is the number of leads the pass changed or reminded.
func (r Report) Total() int {
	return r.ContactRequested + r.ServiceRequested + r.RatingRequested + r.Closed + r.Reminders
}

// Options tune the sweeper's timing.
type Options struct {
	ContactAfter   time.Duration
	ReminderEvery  time.Duration
	PracticalBlock time.Duration
}

// Sweeper runs the four follow-up scans.
type Sweeper struct {
	store      Store
	dispatcher *outbound.Dispatcher
	bus        events.Bus
	opts       Options
	now        func() time.Time
	log        *logger.Logger
}

// NewSweeper returns a Sweeper. Zero options fall back to 24h, 24h and 7 days.
func NewSweeper(store Store, dispatcher *outbound.Dispatcher, bus events.Bus, opts Options, log *logger.Logger) *Sweeper {
	if opts.ContactAfter <= 0 {
		opts.ContactAfter = defaultContactAfter
	}
	if opts.ReminderEvery <= 0 {
		opts.ReminderEvery = defaultReminderEvery
	}
	if opts.PracticalBlock <= 0 {
		opts.PracticalBlock = defaultPracticalBlock
	}
	return &Sweeper{store: store, dispatcher: dispatcher, bus: bus, opts: opts, now: time.Now, log: log}
}

// WithClock replaces the sweeper clock.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// pass carries per-sweep bookkeeping so a lead moves at most once per pass.
type pass struct {
	now     time.Time
	touched map[int64]struct{}
	report  Report
}

func (p *pass) seen(leadID int64) bool {
	_, ok := p.touched[leadID]
	return ok
}

func (p *pass) mark(leadID int64) {
	p.touched[leadID] = struct{}{}
}

// Sweep runs one pass. Scan errors are collected and the remaining scans still run.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	p := &pass{now: s.now(), touched: make(map[int64]struct{})}

	scans := []struct {
		name string
		run  func(context.Context, *pass) error
	}{
		{"connected", s.scanConnected},
		{"contact_confirm", s.scanContactConfirm},
		{"service_confirm", s.scanServiceConfirm},
		{"rating", s.scanRating},
	}

	var errs []error
	for _, scan := range scans {
		if err := scan.run(ctx, p); err != nil {
			s.log.WithContext(ctx).Error("follow-up scan failed", "scan", scan.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", scan.name, err))
		}
	}

	if p.report.Total() > 0 {
		s.log.WithContext(ctx).Info("follow-up sweep",
			"contact", p.report.ContactRequested,
			"service", p.report.ServiceRequested,
			"rating", p.report.RatingRequested,
			"closed", p.report.Closed,
			"reminders", p.report.Reminders,
		)
	}
	return p.report, errors.Join(errs...)
}

func (s *Sweeper) scanConnected(ctx context.Context, p *pass) error {
	leads, err := s.store.ListLeadsByStatus(ctx, domain.StatusConnected)
	if err != nil {
		return err
	}
	for _, lead := range leads {
		if p.seen(lead.ID) || lead.ConnectedAt == nil || lead.ProviderID == nil {
			continue
		}
		if lead.ConnectedAt.After(p.now.Add(-s.opts.ContactAfter)) {
			continue
		}
		provider, ok, err := s.provider(ctx, *lead.ProviderID)
		if err != nil {
			return err
		}
		if !ok || !provider.Active {
			continue
		}

		until := p.now.Add(s.opts.PracticalBlock)
		applied, err := s.apply(ctx, p, domain.FollowupTransition{
			LeadID:              lead.ID,
			CustomerID:          lead.CustomerID,
			ProviderID:          provider.ID,
			From:                domain.StatusConnected,
			To:                  domain.StatusContactConfirmPending,
			Stage:               domain.FollowupContact,
			SentAt:              &p.now,
			BlockCustomerUntil:  &until,
			BlockProviderUntil:  &until,
			SetProviderQuestion: true,
			ProviderQuestion:    domain.QuestionContact,
		})
		if err != nil {
			return err
		}
		if !applied {
			continue
		}
		s.log.WithContext(ctx).Info("contact follow-up", "leadId", lead.ID)
		p.report.ContactRequested++
		s.deliver(ctx, lead, domain.FollowupContact, false,
			outbound.Text(lead.CustomerID, msgContactCustomer),
			providerText(provider, contactForProvider(lead.ID)),
		)
	}
	return nil
}

func (s *Sweeper) scanContactConfirm(ctx context.Context, p *pass) error {
	leads, err := s.store.ListLeadsByStatus(ctx, domain.StatusContactConfirmPending)
	if err != nil {
		return err
	}
	for _, lead := range leads {
		if p.seen(lead.ID) || lead.ProviderID == nil {
			continue
		}
		provider, ok, err := s.provider(ctx, *lead.ProviderID)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		user, prov := lead.UserContactConfirmed, lead.ProviderContactConfirmed
		switch {
		case isNo(user) || isNo(prov):
			if err := s.close(ctx, p, lead, provider.ID, domain.StatusContactConfirmPending, "contact_denied"); err != nil {
				return err
			}

		case isYes(user) && isYes(prov):
			until := p.now.Add(s.opts.PracticalBlock)
			applied, err := s.apply(ctx, p, domain.FollowupTransition{
				LeadID:              lead.ID,
				CustomerID:          lead.CustomerID,
				ProviderID:          provider.ID,
				From:                domain.StatusContactConfirmPending,
				To:                  domain.StatusServiceConfirmPending,
				Stage:               domain.FollowupService,
				SentAt:              &p.now,
				BlockCustomerUntil:  &until,
				ReleaseProvider:     true,
				SetProviderQuestion: true,
				ProviderQuestion:    domain.QuestionService,
			})
			if err != nil {
				return err
			}
			if !applied {
				continue
			}
			s.log.WithContext(ctx).Info("contact confirmed; service follow-up", "leadId", lead.ID)
			p.report.ServiceRequested++
			s.deliver(ctx, lead, domain.FollowupService, false,
				outbound.Text(lead.CustomerID, msgServiceCustomer),
				providerText(provider, serviceForProvider(lead.ID)),
			)

		default:
			var msgs []outbound.Message
			if user == nil {
				msgs = append(msgs, outbound.Text(lead.CustomerID, msgContactReminderCustomer))
			}
			if prov == nil {
				msgs = append(msgs, providerText(provider, contactReminderForProvider(lead.ID)))
			}
			if err := s.remind(ctx, p, lead, domain.FollowupContact, msgs...); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Sweeper) scanServiceConfirm(ctx context.Context, p *pass) error {
	leads, err := s.store.ListLeadsByStatus(ctx, domain.StatusServiceConfirmPending)
	if err != nil {
		return err
	}
	for _, lead := range leads {
		if p.seen(lead.ID) || lead.ProviderID == nil {
			continue
		}
		provider, ok, err := s.provider(ctx, *lead.ProviderID)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		user, prov := lead.UserServiceConfirmed, lead.ProviderServiceConfirmed
		switch {
		case isNo(user) || isNo(prov):
			if err := s.close(ctx, p, lead, provider.ID, domain.StatusServiceConfirmPending, "service_denied"); err != nil {
				return err
			}

		case isYes(user) && isYes(prov):
			until := p.now.Add(s.opts.PracticalBlock)
			applied, err := s.apply(ctx, p, domain.FollowupTransition{
				LeadID:              lead.ID,
				CustomerID:          lead.CustomerID,
				ProviderID:          provider.ID,
				From:                domain.StatusServiceConfirmPending,
				To:                  domain.StatusRatingPending,
				Stage:               domain.FollowupRating,
				SentAt:              &p.now,
				BlockCustomerUntil:  &until,
				ReleaseProvider:     true,
				SetProviderQuestion: true,
				ProviderQuestion:    domain.QuestionNone,
			})
			if err != nil {
				return err
			}
			if !applied {
				continue
			}
			s.log.WithContext(ctx).Info("service confirmed; rating request", "leadId", lead.ID)
			p.report.RatingRequested++
			s.deliver(ctx, lead, domain.FollowupRating, false, outbound.Text(lead.CustomerID, msgRatingRequest))

		default:
			var msgs []outbound.Message
			if user == nil {
				msgs = append(msgs, outbound.Text(lead.CustomerID, msgServiceReminderCustomer))
			}
			if prov == nil {
				msgs = append(msgs, providerText(provider, serviceReminderForProvider(lead.ID)))
			}
			if err := s.remind(ctx, p, lead, domain.FollowupService, msgs...); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Sweeper) scanRating(ctx context.Context, p *pass) error {
	leads, err := s.store.ListLeadsByStatus(ctx, domain.StatusRatingPending)
	if err != nil {
		return err
	}
	for _, lead := range leads {
		if p.seen(lead.ID) {
			continue
		}
		if err := s.remind(ctx, p, lead, domain.FollowupRating, outbound.Text(lead.CustomerID, msgRatingReminder)); err != nil {
			return err
		}
	}
	return nil
}

// close moves a lead to CLOSED and releases the customer, the provider block and the provider question.
func (s *Sweeper) close(ctx context.Context, p *pass, lead domain.Lead, providerID int64, from domain.Status, reason string) error {
	applied, err := s.apply(ctx, p, domain.FollowupTransition{
		LeadID:              lead.ID,
		CustomerID:          lead.CustomerID,
		ProviderID:          providerID,
		From:                from,
		To:                  domain.StatusClosed,
		ReleaseCustomer:     true,
		ReleaseProvider:     true,
		SetProviderQuestion: true,
		ProviderQuestion:    domain.QuestionNone,
	})
	if err != nil || !applied {
		return err
	}
	s.log.WithContext(ctx).Info("lead closed by follow-up", "leadId", lead.ID, "reason", reason)
	p.report.Closed++
	s.publish(ctx, events.LeadClosed{BaseEvent: events.BaseEventAt(p.now), LeadID: lead.ID, Reason: reason})
	return nil
}

// remind resends msgs when the last prompt is older than the reminder cadence.
func (s *Sweeper) remind(ctx context.Context, p *pass, lead domain.Lead, stage domain.FollowupStage, msgs ...outbound.Message) error {
	if len(msgs) == 0 || lead.FollowupSentAt == nil {
		return nil
	}
	if lead.FollowupSentAt.After(p.now.Add(-s.opts.ReminderEvery)) {
		return nil
	}
	touched, err := s.store.TouchFollowup(ctx, lead.ID, lead.Status, p.now)
	if err != nil {
		return err
	}
	p.mark(lead.ID)
	if !touched {
		return nil
	}
	p.report.Reminders++
	s.deliver(ctx, lead, stage, true, msgs...)
	return nil
}

func (s *Sweeper) apply(ctx context.Context, p *pass, t domain.FollowupTransition) (bool, error) {
	applied, err := s.store.ApplyFollowup(ctx, t)
	if err != nil {
		return false, fmt.Errorf("apply follow-up for lead %d: %w", t.LeadID, err)
	}
	p.mark(t.LeadID)
	return applied, nil
}

func (s *Sweeper) provider(ctx context.Context, id int64) (domain.Provider, bool, error) {
	p, err := s.store.GetProvider(ctx, id)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return domain.Provider{}, false, nil
		}
		return domain.Provider{}, false, err
	}
	return p, true, nil
}

func (s *Sweeper) deliver(ctx context.Context, lead domain.Lead, stage domain.FollowupStage, reminder bool, msgs ...outbound.Message) {
	var out []outbound.Message
	for _, m := range msgs {
		if strings.TrimSpace(m.To) != "" {
			out = append(out, m)
		}
	}
	if s.dispatcher != nil {
		s.dispatcher.Deliver(ctx, out)
	}
	s.publish(ctx, events.FollowupSent{BaseEvent: events.NewBaseEvent(), LeadID: lead.ID, Stage: string(stage), Reminder: reminder})
}

func (s *Sweeper) publish(ctx context.Context, ev events.Event) {
	if s.bus != nil {
		s.bus.Publish(ctx, ev)
	}
}

func providerText(p domain.Provider, body string) outbound.Message {
	return outbound.Text(p.WhatsApp, body)
}

func isYes(v *bool) bool { return v != nil && *v }
func isNo(v *bool) bool  { return v != nil && !*v }

package flow

import (
	"time"

	"conectapro/internal/events"
	"conectapro/internal/leads/domain"
	"conectapro/internal/leads/outbound"
	"conectapro/internal/whatsapp"
)

// Result is the outcome of one conversation turn: the writes to commit, the messages
// to send once they are committed and the events to publish.
type Result struct {
	domain.Changeset
	Messages []outbound.Message
	Events   []events.Event

	mutated bool
}

func newResult(conv domain.Conversation) *Result {
	r := &Result{}
	r.State = conv.State
	r.State.Scratch.IntentOptions = append([]string(nil), conv.State.Scratch.IntentOptions...)
	r.Lead = conv.Lead
	r.ExpectStatus = conv.Lead.Status
	return r
}

// Mutated reports whether the turn changed stored data.
func (r *Result) Mutated() bool {
	return r.mutated
}

func (r *Result) moveTo(step domain.Step) {
	r.State.Step = step
	r.mutated = true
}

func (r *Result) touch() {
	r.mutated = true
}

func (r *Result) clearScratch() {
	r.State.Scratch = domain.Scratch{}
	r.mutated = true
}

func (r *Result) say(text string) {
	r.Messages = append(r.Messages, outbound.Text(r.Lead.CustomerID, text))
}

func (r *Result) sayPicker(text string, rows []whatsapp.Row) {
	r.Messages = append(r.Messages, outbound.ComunaPicker(r.Lead.CustomerID, text, rows))
}

func (r *Result) send(m outbound.Message) {
	r.Messages = append(r.Messages, m)
}

func (r *Result) emit(ev events.Event) {
	r.Events = append(r.Events, ev)
}

// seal derives the lead status from the step so the pair is always committed in lockstep.
func (r *Result) seal(now time.Time) {
	r.Lead.Status = r.State.Step.LeadStatus()
	leadID := r.Lead.ID
	r.State.LeadID = &leadID
	r.State.CustomerID = r.Lead.CustomerID
	r.State.UpdatedAt = now
	r.Lead.LastActivityAt = now
	for i := range r.Offers {
		r.Offers[i].LeadID = r.Lead.ID
	}
}

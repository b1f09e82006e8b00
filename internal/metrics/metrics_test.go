package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"conectapro/internal/events"
	"conectapro/platform/logger"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSubscribeCountsDomainEvents(t *testing.T) {
	m := New(nil)
	bus := events.NewInMemoryBus(logger.New("development"))
	m.Subscribe(bus)
	ctx := context.Background()

	publish := func(e events.Event) {
		if err := bus.PublishSync(ctx, e); err != nil {
			t.Fatalf("publish %s: %v", e.EventName(), err)
		}
	}
	publish(events.LeadConnected{BaseEvent: events.NewBaseEvent(), LeadID: 1, Service: "Electricista"})
	publish(events.LeadClosed{BaseEvent: events.NewBaseEvent(), LeadID: 1, Reason: "rated"})
	publish(events.LeadClosed{BaseEvent: events.NewBaseEvent(), LeadID: 2, Reason: "rated"})
	publish(events.FollowupSent{BaseEvent: events.NewBaseEvent(), LeadID: 1, Stage: "CONTACT", Reminder: true})
	publish(events.IntentResolved{BaseEvent: events.NewBaseEvent(), Outcome: "resolved", Method: "rules"})

	if got := testutil.ToFloat64(m.LeadsConnected.WithLabelValues("Electricista")); got != 1 {
		t.Fatalf("connected = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.LeadsClosed.WithLabelValues("rated")); got != 2 {
		t.Fatalf("closed = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Followups.WithLabelValues("CONTACT", "reminder")); got != 1 {
		t.Fatalf("reminders = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.IntentOutcomes.WithLabelValues("resolved", "rules")); got != 1 {
		t.Fatalf("intent outcomes = %v, want 1", got)
	}
}

func TestHandlerExposesInboundCounter(t *testing.T) {
	m := New(nil)
	m.InboundMessage("processed")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `conectapro_webhook_inbound_messages_total{outcome="processed"} 1`) {
		t.Fatalf("counter missing from exposition:\n%s", rec.Body.String())
	}
}

package webhook

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	apphttp "conectapro/internal/http"
	"conectapro/internal/http/router"
	"conectapro/internal/leads/inbound"
	"conectapro/internal/leads/memstore"
	"conectapro/internal/leads/outbound"
	"conectapro/internal/locality"
	"conectapro/platform/logger"
	"conectapro/platform/validator"

	"github.com/gin-gonic/gin"
)

const sender = "56961234567"

type routerConfig struct{}

func (routerConfig) GetHTTPAddr() string          { return ":0" }
func (routerConfig) GetWebhookRateLimit() float64 { return 0 }
func (routerConfig) GetWebhookRateBurst() int     { return 0 }

type turn struct {
	customerID string
	text       string
}

type recordingTurns struct {
	mu    sync.Mutex
	turns []turn
}

func (r *recordingTurns) HandleIncoming(_ context.Context, customerID, text string) ([]outbound.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, turn{customerID: customerID, text: text})
	return nil, nil
}

func (r *recordingTurns) all() []turn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]turn(nil), r.turns...)
}

func newServer(t *testing.T, secret string) (*gin.Engine, *recordingTurns) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.New("development")
	turns := &recordingTurns{}
	store := memstore.New(locality.NewNormalizer(nil))

	module := NewModule(HandlerConfig{
		VerifyToken: "secret-token",
		AppSecret:   secret,
		Region:      "CL",
		Turns:       turns,
		Gate:        inbound.NewGate(store),
		Validator:   validator.New(),
		Log:         log,
	})
	engine := router.New(&apphttp.App{
		Config:  routerConfig{},
		Logger:  log,
		Modules: []apphttp.Module{module},
	})
	return engine, turns
}

func post(engine *gin.Engine, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func textPayload(id, from, text string) string {
	return `{"object":"whatsapp_business_account","entry":[{"id":"1","changes":[{"field":"messages","value":{` +
		`"messaging_product":"whatsapp","messages":[{"from":"` + from + `","id":"` + id + `","timestamp":"1","type":"text","text":{"body":"` + text + `"}}]}}]}]}`
}

func assertAck(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if strings.TrimSpace(rec.Body.String()) != `{"ok":true}` {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestVerifyEchoesChallenge(t *testing.T) {
	engine, _ := newServer(t, "")

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=secret-token&hub.challenge=12345", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "12345" {
		t.Fatalf("expected challenge echo, got %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a wrong token, got %d", rec.Code)
	}
}

func TestTextMessageReachesConversation(t *testing.T) {
	engine, turns := newServer(t, "")

	assertAck(t, post(engine, textPayload("wamid.1", sender, "busco electricista"), ""))

	got := turns.all()
	if len(got) != 1 || got[0].customerID != sender || got[0].text != "busco electricista" {
		t.Fatalf("unexpected turns %+v", got)
	}
}

func TestRedeliveredMessageIsProcessedOnce(t *testing.T) {
	engine, turns := newServer(t, "")

	assertAck(t, post(engine, textPayload("wamid.1", sender, "hola"), ""))
	assertAck(t, post(engine, textPayload("wamid.1", sender, "hola"), ""))
	assertAck(t, post(engine, textPayload("wamid.2", sender, "hola"), ""))

	if n := len(turns.all()); n != 2 {
		t.Fatalf("expected 2 turns, got %d", n)
	}
}

func TestComunaListReplyYieldsKey(t *testing.T) {
	engine, turns := newServer(t, "")
	body := `{"entry":[{"changes":[{"value":{"messages":[{"from":"` + sender + `","id":"wamid.9","type":"interactive",` +
		`"interactive":{"type":"list_reply","list_reply":{"id":"comuna:san pedro de la paz","title":"San Pedro de la Paz"}}}]}}]}]}`

	assertAck(t, post(engine, body, ""))

	got := turns.all()
	if len(got) != 1 || got[0].text != "san pedro de la paz" {
		t.Fatalf("expected the comuna key, got %+v", got)
	}
}

func TestStatusOnlyNotificationIsAcknowledged(t *testing.T) {
	engine, turns := newServer(t, "")
	body := `{"entry":[{"changes":[{"value":{"statuses":[{"id":"wamid.out","status":"failed","recipient_id":"` + sender + `",` +
		`"errors":[{"code":131047,"title":"Re-engagement message"}]}]}}]}]}`

	assertAck(t, post(engine, body, ""))
	if n := len(turns.all()); n != 0 {
		t.Fatalf("statuses must not start a turn, got %d", n)
	}
}

func TestInvalidSenderIsIgnored(t *testing.T) {
	engine, turns := newServer(t, "")

	assertAck(t, post(engine, textPayload("wamid.1", "not-a-number", "hola"), ""))
	assertAck(t, post(engine, `{"entry":`, ""))

	if n := len(turns.all()); n != 0 {
		t.Fatalf("expected no turns, got %d", n)
	}
}

func TestSignatureIsEnforcedWhenSecretConfigured(t *testing.T) {
	engine, turns := newServer(t, "app-secret")
	body := textPayload("wamid.1", sender, "hola")

	if rec := post(engine, body, "sha256=deadbeef"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a bad signature, got %d", rec.Code)
	}
	if rec := post(engine, body, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a missing signature, got %d", rec.Code)
	}
	assertAck(t, post(engine, body, Sign("app-secret", []byte(body))))

	if n := len(turns.all()); n != 1 {
		t.Fatalf("expected only the signed delivery to be processed, got %d", n)
	}
}

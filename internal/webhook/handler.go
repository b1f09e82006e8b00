package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"conectapro/internal/leads/outbound"
	"conectapro/platform/httpkit"
	"conectapro/platform/logger"
	"conectapro/platform/phone"
	"conectapro/platform/validator"

	"github.com/gin-gonic/gin"
)

// Inbound outcomes reported to the Observer.
const (
	outcomeProcessed   = "processed"
	outcomeDuplicate   = "duplicate"
	outcomeFailed      = "failed"
	outcomeMalformed   = "malformed"
	outcomeInvalid     = "invalid"
	outcomeUnsupported = "unsupported"
	outcomeStatus      = "status"
	outcomeRejected    = "rejected"
)

// TurnHandler runs one customer message through the conversation.
type TurnHandler interface {
	HandleIncoming(ctx context.Context, customerID, text string) ([]outbound.Message, error)
}

// Admitter deduplicates redelivered messages.
type Admitter interface {
	Admit(ctx context.Context, customerID, messageID, text string) (bool, error)
}

// Observer receives inbound traffic counts.
type Observer interface {
	InboundMessage(outcome string)
	ObserveTurn(seconds float64)
}

type noopObserver struct{}

func (noopObserver) InboundMessage(string) {}
func (noopObserver) ObserveTurn(float64)   {}

// Handler serves the WhatsApp Cloud API webhook.
type Handler struct {
	verifyToken string
	appSecret   string
	region      string
	turns       TurnHandler
	gate        Admitter
	val         *validator.Validator
	observer    Observer
	log         *logger.Logger
}

// HandlerConfig are the settings and collaborators of a Handler.
type HandlerConfig struct {
	VerifyToken string
	AppSecret   string
	Region      string
	Turns       TurnHandler
	Gate        Admitter
	Validator   *validator.Validator
	Observer    Observer
	Log         *logger.Logger
}

// NewHandler creates a new webhook handler.
func NewHandler(cfg HandlerConfig) *Handler {
	observer := cfg.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	return &Handler{
		verifyToken: cfg.VerifyToken,
		appSecret:   cfg.AppSecret,
		region:      cfg.Region,
		turns:       cfg.Turns,
		gate:        cfg.Gate,
		val:         cfg.Validator,
		observer:    observer,
		log:         cfg.Log,
	}
}

// HandleVerify answers the subscription handshake.
// GET /webhooks/whatsapp
func (h *Handler) HandleVerify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && h.verifyToken != "" &&
		subtle.ConstantTimeCompare([]byte(token), []byte(h.verifyToken)) == 1 {
		c.String(http.StatusOK, challenge)
		return
	}
	httpkit.Error(c, http.StatusForbidden, "verification failed", nil)
}

// HandleReceive processes a notification. Every authenticated delivery is acknowledged
// with 200 so the Cloud API does not retry messages that failed for business reasons.
// POST /webhooks/whatsapp
func (h *Handler) HandleReceive(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		h.observer.InboundMessage(outcomeMalformed)
		h.log.Warn("read webhook body", "error", err)
		httpkit.Ack(c)
		return
	}

	if h.appSecret != "" && !validSignature(h.appSecret, raw, c.GetHeader(SignatureHeader)) {
		h.observer.InboundMessage(outcomeRejected)
		httpkit.Error(c, http.StatusUnauthorized, "invalid signature", nil)
		return
	}

	var payload Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.observer.InboundMessage(outcomeMalformed)
		h.log.Warn("decode webhook payload", "error", err)
		httpkit.Ack(c)
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	h.logStatuses(ctx, payload.Statuses())

	msg, ok := payload.FirstMessage()
	if !ok {
		if len(payload.Statuses()) > 0 {
			h.observer.InboundMessage(outcomeStatus)
		}
		httpkit.Ack(c)
		return
	}
	h.process(ctx, msg)
	httpkit.Ack(c)
}

func (h *Handler) process(ctx context.Context, msg Message) {
	log := h.log.WithContext(ctx)
	if err := h.val.Struct(msg); err != nil {
		h.observer.InboundMessage(outcomeInvalid)
		log.Warn("invalid inbound message", "error", err)
		return
	}

	text := msg.Content()
	if text == "" {
		h.observer.InboundMessage(outcomeUnsupported)
		log.Info("ignoring message without text", "type", msg.Type)
		return
	}

	customerID := phone.WhatsAppID(msg.From, h.region)
	fresh, err := h.gate.Admit(ctx, customerID, msg.ID, text)
	if err != nil {
		// Processing twice is preferred over dropping the message.
		log.Error("record inbound message", "message_id", msg.ID, "error", err)
		fresh = true
	}
	if !fresh {
		h.observer.InboundMessage(outcomeDuplicate)
		log.Info("duplicate inbound message", "message_id", msg.ID)
		return
	}

	started := time.Now()
	_, err = h.turns.HandleIncoming(ctx, customerID, text)
	h.observer.ObserveTurn(time.Since(started).Seconds())
	if err != nil {
		h.observer.InboundMessage(outcomeFailed)
		log.Error("handle inbound message", "message_id", msg.ID, "error", err)
		return
	}
	h.observer.InboundMessage(outcomeProcessed)
}

func (h *Handler) logStatuses(ctx context.Context, statuses []Status) {
	for _, st := range statuses {
		attrs := []any{
			slog.String("message_id", st.ID),
			slog.String("status", st.Status),
			slog.String("recipient", st.RecipientID),
		}
		if st.Status == "failed" {
			for _, e := range st.Errors {
				attrs = append(attrs, slog.Int("error_code", e.Code), slog.String("error_title", e.Title))
			}
			h.log.WithContext(ctx).Warn("outbound delivery failed", attrs...)
			continue
		}
		h.log.WithContext(ctx).Debug("outbound delivery status", attrs...)
	}
}

// Package whatsapp sends messages through the WhatsApp Cloud API.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"conectapro/platform/config"
	"conectapro/platform/logger"
	"conectapro/platform/phone"
)

const (
	defaultBaseURL = "https://graph.facebook.com"
	// MaxListRows is the Cloud API limit for rows in one list section.
	MaxListRows   = 10
	maxRowTitle   = 24
	maxButtonText = 20
)

// ErrEmptyMessage is returned when there is nothing to send.
var ErrEmptyMessage = errors.New("whatsapp: empty message")

// Row is one selectable entry of an interactive list.
type Row struct {
	ID    string
	Title string
}

// Client posts messages to /{version}/{phoneNumberID}/messages. An unconfigured client
// logs every message instead of sending it.
type Client struct {
	baseURL       string
	version       string
	phoneNumberID string
	accessToken   string
	region        string
	configured    bool
	http          *http.Client
	limiter       *rate.Limiter
	log           *logger.Logger
}

// NewClient builds a client from configuration.
func NewClient(cfg config.WhatsAppConfig, region string, log *logger.Logger) *Client {
	limit := rate.Limit(cfg.GetWhatsAppSendRate())
	if limit <= 0 {
		limit = rate.Inf
	}
	return &Client{
		baseURL:       defaultBaseURL,
		version:       cfg.GetWhatsAppGraphVersion(),
		phoneNumberID: cfg.GetWhatsAppPhoneNumberID(),
		accessToken:   cfg.GetWhatsAppAccessToken(),
		region:        region,
		configured:    cfg.IsWhatsAppConfigured(),
		http:          &http.Client{Timeout: 20 * time.Second},
		limiter:       rate.NewLimiter(limit, 1),
		log:           log,
	}
}

// WithBaseURL points the client at another Graph API host.
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// Configured reports whether messages are really sent.
func (c *Client) Configured() bool {
	return c.configured
}

type textBody struct {
	Body string `json:"body"`
}

type messagePayload struct {
	MessagingProduct string           `json:"messaging_product"`
	To               string           `json:"to"`
	Type             string           `json:"type"`
	Text             *textBody        `json:"text,omitempty"`
	Interactive      *interactiveBody `json:"interactive,omitempty"`
	Template         *templateBody    `json:"template,omitempty"`
}

type interactiveBody struct {
	Type   string            `json:"type"`
	Body   textBody          `json:"body"`
	Action interactiveAction `json:"action"`
}

type interactiveAction struct {
	Button   string        `json:"button"`
	Sections []listSection `json:"sections"`
}

type listSection struct {
	Title string    `json:"title"`
	Rows  []listRow `json:"rows"`
}

type listRow struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type templateBody struct {
	Name       string              `json:"name"`
	Language   templateLanguage    `json:"language"`
	Components []templateComponent `json:"components,omitempty"`
}

type templateLanguage struct {
	Code string `json:"code"`
}

type templateComponent struct {
	Type       string              `json:"type"`
	Parameters []templateParameter `json:"parameters"`
}

type templateParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	if strings.TrimSpace(body) == "" {
		return ErrEmptyMessage
	}
	return c.send(ctx, messagePayload{
		To:   to,
		Type: "text",
		Text: &textBody{Body: body},
	})
}

// SendChoiceList sends an interactive list with a single section. Rows beyond
// MaxListRows are dropped and titles are cut to the API limit.
func (c *Client) SendChoiceList(ctx context.Context, to, body, button, section string, rows []Row) error {
	if len(rows) == 0 {
		return c.SendText(ctx, to, body)
	}
	if len(rows) > MaxListRows {
		rows = rows[:MaxListRows]
	}
	out := make([]listRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, listRow{ID: r.ID, Title: truncate(r.Title, maxRowTitle)})
	}
	return c.send(ctx, messagePayload{
		To:   to,
		Type: "interactive",
		Interactive: &interactiveBody{
			Type: "list",
			Body: textBody{Body: body},
			Action: interactiveAction{
				Button:   truncate(button, maxButtonText),
				Sections: []listSection{{Title: truncate(section, maxRowTitle), Rows: out}},
			},
		},
	})
}

// SendTemplate sends an approved template with positional body parameters.
func (c *Client) SendTemplate(ctx context.Context, to, name, lang string, params []string) error {
	tpl := &templateBody{Name: name, Language: templateLanguage{Code: lang}}
	if len(params) > 0 {
		comp := templateComponent{Type: "body"}
		for _, p := range params {
			comp.Parameters = append(comp.Parameters, templateParameter{Type: "text", Text: p})
		}
		tpl.Components = []templateComponent{comp}
	}
	return c.send(ctx, messagePayload{To: to, Type: "template", Template: tpl})
}

func (c *Client) send(ctx context.Context, payload messagePayload) error {
	payload.MessagingProduct = "whatsapp"
	payload.To = phone.WhatsAppID(payload.To, c.region)
	if payload.To == "" {
		return fmt.Errorf("whatsapp: missing recipient")
	}

	if !c.configured {
		c.log.Warn("whatsapp not configured; mock send", "to", payload.To, "type", payload.Type, "preview", preview(payload))
		return nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("whatsapp rate limiter: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal whatsapp payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s/messages", c.baseURL, c.version, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("whatsapp cloud api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	c.log.Info("whatsapp sent", "to", payload.To, "type", payload.Type, "status", resp.StatusCode)
	return nil
}

func preview(p messagePayload) string {
	switch {
	case p.Text != nil:
		return p.Text.Body
	case p.Interactive != nil:
		return p.Interactive.Body.Body
	case p.Template != nil:
		return p.Template.Name
	}
	return ""
}

func truncate(s string, max int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= max {
		return string(r)
	}
	return string(r[:max])
}

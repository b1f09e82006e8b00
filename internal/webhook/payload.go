package webhook

import (
	"strings"

	"conectapro/internal/leads/flow"
)

// WhatsApp Cloud API webhook payload structures based on:
// https://developers.facebook.com/docs/whatsapp/cloud-api/webhooks/components

// Payload is the notification body posted by the WhatsApp Cloud API.
type Payload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry groups the changes for one business account.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change carries one messages update.
type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

// Value holds inbound messages and delivery statuses.
type Value struct {
	MessagingProduct string    `json:"messaging_product"`
	Contacts         []Contact `json:"contacts"`
	Messages         []Message `json:"messages"`
	Statuses         []Status  `json:"statuses"`
}

// Contact is the sender profile.
type Contact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// Message is a single inbound message.
type Message struct {
	From        string       `json:"from" validate:"required,waid"`
	ID          string       `json:"id" validate:"max=128"`
	Timestamp   string       `json:"timestamp"`
	Type        string       `json:"type" validate:"required"`
	Text        *TextBody    `json:"text,omitempty"`
	Interactive *Interactive `json:"interactive,omitempty"`
	Button      *ButtonBody  `json:"button,omitempty"`
}

// TextBody is the content of a text message.
type TextBody struct {
	Body string `json:"body"`
}

// Interactive is the reply to a list or reply-button message.
type Interactive struct {
	Type        string `json:"type"`
	ListReply   *Reply `json:"list_reply,omitempty"`
	ButtonReply *Reply `json:"button_reply,omitempty"`
}

// Reply identifies the chosen row or button.
type Reply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ButtonBody is the reply to a template quick-reply button.
type ButtonBody struct {
	Text    string `json:"text"`
	Payload string `json:"payload"`
}

// Status is a delivery receipt for a message we sent.
type Status struct {
	ID          string        `json:"id"`
	Status      string        `json:"status"`
	RecipientID string        `json:"recipient_id"`
	Errors      []StatusError `json:"errors"`
}

// StatusError explains a failed delivery.
type StatusError struct {
	Code  int    `json:"code"`
	Title string `json:"title"`
}

func (p Payload) value() (Value, bool) {
	if len(p.Entry) == 0 || len(p.Entry[0].Changes) == 0 {
		return Value{}, false
	}
	return p.Entry[0].Changes[0].Value, true
}

// FirstMessage returns the first message of the first change, if any.
func (p Payload) FirstMessage() (Message, bool) {
	v, ok := p.value()
	if !ok || len(v.Messages) == 0 {
		return Message{}, false
	}
	return v.Messages[0], true
}

// Statuses returns the delivery receipts of the first change.
func (p Payload) Statuses() []Status {
	v, _ := p.value()
	return v.Statuses
}

// Content is the text the conversation engine should see for m. A picker row whose
// id carries a comuna key yields the key itself.
func (m Message) Content() string {
	switch {
	case m.Text != nil:
		return strings.TrimSpace(m.Text.Body)
	case m.Interactive != nil:
		reply := m.Interactive.ListReply
		if reply == nil {
			reply = m.Interactive.ButtonReply
		}
		if reply == nil {
			return ""
		}
		if key, ok := strings.CutPrefix(reply.ID, flow.ComunaRowPrefix); ok && strings.TrimSpace(key) != "" {
			return strings.TrimSpace(key)
		}
		if title := strings.TrimSpace(reply.Title); title != "" {
			return title
		}
		return strings.TrimSpace(reply.ID)
	case m.Button != nil:
		if text := strings.TrimSpace(m.Button.Text); text != "" {
			return text
		}
		return strings.TrimSpace(m.Button.Payload)
	}
	return ""
}

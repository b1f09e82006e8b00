// Package outbound describes messages produced by the leads flow and delivers them
// on a best-effort basis.
package outbound

import (
	"context"

	"conectapro/internal/whatsapp"
	"conectapro/platform/logger"
)

const (
	pickerButton  = "Elegir comuna"
	pickerSection = "Comunas disponibles"
)

// Message is one outbound message.
type Message struct {
	To   string
	Text string
	// Picker turns the message into an interactive list.
	Picker *Picker
	// TemplateParams marks a provider notification that is sent as an approved template
	// when one is configured. Text is the fallback.
	TemplateParams []string
}

// Picker is an interactive list attached to a message.
type Picker struct {
	Button  string
	Section string
	Rows    []whatsapp.Row
}

// Text builds a plain text message.
func Text(to, body string) Message {
	return Message{To: to, Text: body}
}

// ComunaPicker builds a message listing comunas as selectable rows with ids "comuna:<key>".
// Without rows it degrades to plain text.
func ComunaPicker(to, body string, rows []whatsapp.Row) Message {
	if len(rows) == 0 {
		return Text(to, body)
	}
	if len(rows) > whatsapp.MaxListRows {
		rows = rows[:whatsapp.MaxListRows]
	}
	return Message{
		To:     to,
		Text:   body,
		Picker: &Picker{Button: pickerButton, Section: pickerSection, Rows: rows},
	}
}

// Sender is the messaging channel.
type Sender interface {
	SendText(ctx context.Context, to, body string) error
	SendChoiceList(ctx context.Context, to, body, button, section string, rows []whatsapp.Row) error
	SendTemplate(ctx context.Context, to, name, lang string, params []string) error
}

// Dispatcher delivers messages and logs failures without returning them.
type Dispatcher struct {
	sender       Sender
	templateName string
	templateLang string
	log          *logger.Logger
}

// NewDispatcher returns a Dispatcher. An empty templateName sends provider notifications as text.
func NewDispatcher(sender Sender, templateName, templateLang string, log *logger.Logger) *Dispatcher {
	return &Dispatcher{sender: sender, templateName: templateName, templateLang: templateLang, log: log}
}

// Deliver sends msgs in order and returns how many were accepted by the channel.
func (d *Dispatcher) Deliver(ctx context.Context, msgs []Message) int {
	if d == nil || d.sender == nil {
		return 0
	}
	sent := 0
	for _, m := range msgs {
		if err := d.deliver(ctx, m); err != nil {
			d.log.WithContext(ctx).OutboundFailed(m.To, err)
			continue
		}
		sent++
	}
	return sent
}

func (d *Dispatcher) deliver(ctx context.Context, m Message) error {
	switch {
	case m.Picker != nil:
		return d.sender.SendChoiceList(ctx, m.To, m.Text, m.Picker.Button, m.Picker.Section, m.Picker.Rows)
	case m.TemplateParams != nil && d.templateName != "":
		return d.sender.SendTemplate(ctx, m.To, d.templateName, d.templateLang, m.TemplateParams)
	default:
		return d.sender.SendText(ctx, m.To, m.Text)
	}
}

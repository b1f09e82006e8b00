// Package classifier implements intent.Classifier with an ADK agent that must answer
// through a single structured tool call.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"
	"google.golang.org/genai"

	"conectapro/internal/intent"
	"conectapro/platform/ai/openaicompat"
	"conectapro/platform/config"
)

const appName = "intent-classifier"

// ErrNoClassification is returned when the model finished without calling the tool.
var ErrNoClassification = errors.New("classifier produced no classification")

// SaveClassificationInput is the tool schema the model fills in.
type SaveClassificationInput struct {
	IntentID           string   `json:"intent_id"`
	Confidence         float64  `json:"confidence"`
	Comuna             string   `json:"comuna,omitempty"`
	Device             string   `json:"device,omitempty"`
	Urgency            string   `json:"urgency,omitempty"`
	Symptoms           []string `json:"symptoms,omitempty"`
	NeedClarification  bool     `json:"need_clarification,omitempty"`
	ClarifyingQuestion string   `json:"clarifying_question,omitempty"`
	ClarifyingOptions  []string `json:"clarifying_options,omitempty"`
}

// SaveClassificationOutput acknowledges the tool call.
type SaveClassificationOutput struct {
	Success bool `json:"success"`
}

// Agent classifies messages with a language model.
type Agent struct {
	model          model.LLM
	sessionService session.Service
}

// New builds an Agent backed by an OpenAI-compatible endpoint.
func New(cfg config.ClassifierConfig) *Agent {
	return NewWithModel(openaicompat.NewModel(openaicompat.Config{
		APIKey:      cfg.GetClassifierAPIKey(),
		BaseURL:     cfg.GetClassifierBaseURL(),
		Model:       cfg.GetClassifierModel(),
		Timeout:     cfg.GetClassifierTimeout(),
		RequireTool: true,
	}))
}

// NewWithModel builds an Agent over any ADK model.
func NewWithModel(m model.LLM) *Agent {
	return &Agent{model: m, sessionService: session.InMemoryService()}
}

// Classify runs one isolated agent session. Each call builds its own tool and runner,
// so concurrent calls never share the captured result.
func (a *Agent) Classify(ctx context.Context, text string, allowed []intent.Definition) (intent.Classification, error) {
	var (
		result   SaveClassificationInput
		captured bool
	)

	saveTool, err := functiontool.New(functiontool.Config{
		Name:        "SaveIntentClassification",
		Description: "Guarda la clasificación del mensaje. Llama esta herramienta exactamente una vez.",
	}, func(_ tool.Context, input SaveClassificationInput) (SaveClassificationOutput, error) {
		result = input
		captured = true
		return SaveClassificationOutput{Success: true}, nil
	})
	if err != nil {
		return intent.Classification{}, fmt.Errorf("build classification tool: %w", err)
	}

	llm, err := llmagent.New(llmagent.Config{
		Name:        "IntentClassifier",
		Model:       a.model,
		Description: "Clasifica mensajes de clientes en intenciones del catálogo.",
		Instruction: buildInstruction(allowed),
		Tools:       []tool.Tool{saveTool},
	})
	if err != nil {
		return intent.Classification{}, fmt.Errorf("create classifier agent: %w", err)
	}

	r, err := runner.New(runner.Config{
		AppName:        appName,
		Agent:          llm,
		SessionService: a.sessionService,
	})
	if err != nil {
		return intent.Classification{}, fmt.Errorf("create classifier runner: %w", err)
	}

	sessionID := uuid.New().String()
	userID := "classifier"
	if _, err := a.sessionService.Create(ctx, &session.CreateRequest{
		AppName:   appName,
		UserID:    userID,
		SessionID: sessionID,
	}); err != nil {
		return intent.Classification{}, fmt.Errorf("create classifier session: %w", err)
	}
	defer func() {
		_ = a.sessionService.Delete(context.WithoutCancel(ctx), &session.DeleteRequest{
			AppName:   appName,
			UserID:    userID,
			SessionID: sessionID,
		})
	}()

	msg := &genai.Content{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: "Mensaje del cliente:\n" + text}},
	}
	runConfig := agent.RunConfig{StreamingMode: agent.StreamingModeNone}
	for _, err := range r.Run(ctx, userID, sessionID, msg, runConfig) {
		if err != nil {
			return intent.Classification{}, fmt.Errorf("run classifier: %w", err)
		}
		if captured {
			break
		}
	}

	if !captured {
		return intent.Classification{}, ErrNoClassification
	}
	return toClassification(result, allowed), nil
}

func toClassification(in SaveClassificationInput, allowed []intent.Definition) intent.Classification {
	id := strings.TrimSpace(in.IntentID)
	known := false
	for _, d := range allowed {
		if d.ID == id {
			known = true
			break
		}
	}
	if !known {
		id = ""
	}
	return intent.Classification{
		IntentID:   id,
		Confidence: in.Confidence,
		Entities: intent.Entities{
			Comuna:   strings.TrimSpace(in.Comuna),
			Device:   strings.TrimSpace(in.Device),
			Urgency:  strings.TrimSpace(in.Urgency),
			Symptoms: in.Symptoms,
		},
		NeedsClarification: in.NeedClarification,
		ClarifyingQuestion: in.ClarifyingQuestion,
		ClarifyingOptions:  in.ClarifyingOptions,
	}
}

func buildInstruction(allowed []intent.Definition) string {
	var b strings.Builder
	b.WriteString("Eres un clasificador de intención para ConectaPro.\n")
	b.WriteString("Debes elegir intent_id SOLO desde la lista permitida. Si ninguna aplica, deja intent_id vacío.\n")
	b.WriteString("confidence es un número entre 0 y 1.\n")
	b.WriteString("NO inventes comunas. Solo completa comuna si el cliente la menciona.\n")
	b.WriteString("Puedes normalizar abreviaciones explícitas (ej: 'conce' -> 'Concepción', 'thno' -> 'Talcahuano').\n")
	b.WriteString("Responde únicamente llamando a SaveIntentClassification.\n\n")
	b.WriteString("Intenciones permitidas:\n")
	for _, d := range allowed {
		fmt.Fprintf(&b, "- %s: %s", d.ID, d.Label)
		if len(d.Aliases) > 0 {
			fmt.Fprintf(&b, " (ej: %s)", strings.Join(d.Aliases, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

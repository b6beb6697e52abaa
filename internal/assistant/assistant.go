// Package assistant answers questions about the schedule with a language
// model.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/crewflo/crewflo/internal/conflict"
	"github.com/crewflo/crewflo/internal/schema"
)

// Answers returned without calling the model.
const (
	MissingKeyAnswer = "API key missing. Set assistant.api_key (CREWFLO_ASSISTANT_API_KEY) to use the assistant."
	EmptyAnswer      = "I could not generate an answer."
	FailureAnswer    = "Something went wrong while analyzing the schedule."
)

const systemPrompt = `You are an expert construction site manager. You analyze project, supplier and task data for a site foreman.
Answer professionally, concisely and usefully. If you notice potential problems (overload, unflagged conflicts, unrealistic durations), mention them.`

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "claude-sonnet-4-5"

// Config configures an Assistant.
type Config struct {
	APIKey    string
	Model     string
	MaxTokens int64
	// BaseURL overrides the API endpoint (tests)
	BaseURL string
	Timeout time.Duration
	Logger  *log.Logger
}

// Assistant wraps the model client.
type Assistant struct {
	config Config
	client *anthropic.Client
	logger *log.Logger
}

// New creates an Assistant. Without an API key it still works, answering
// MissingKeyAnswer.
func New(config Config) *Assistant {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 1024
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	a := &Assistant{config: config, logger: logger}
	if config.APIKey != "" {
		opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
		if config.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(config.BaseURL))
		}
		client := anthropic.NewClient(opts...)
		a.client = &client
	}
	return a
}

type scheduleContext struct {
	Projects  []projectRef  `json:"projects"`
	Suppliers []supplierRef `json:"suppliers"`
	Tasks     []taskRef     `json:"tasks"`
	Conflicts []string      `json:"conflicts,omitempty"`
}

type projectRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type supplierRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Trade string `json:"trade"`
}

type taskRef struct {
	ID       string    `json:"id"`
	Project  string    `json:"project"`
	Supplier string    `json:"supplier"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Title    string    `json:"title"`
}

// BuildContext summarizes the collections as the JSON handed to the model.
func BuildContext(projects []schema.Project, suppliers []schema.Supplier, tasks []schema.Task) ([]byte, error) {
	ctx := scheduleContext{
		Projects:  make([]projectRef, 0, len(projects)),
		Suppliers: make([]supplierRef, 0, len(suppliers)),
		Tasks:     make([]taskRef, 0, len(tasks)),
	}
	for _, p := range projects {
		ctx.Projects = append(ctx.Projects, projectRef{ID: p.ID, Name: p.Name})
	}
	for _, s := range suppliers {
		ctx.Suppliers = append(ctx.Suppliers, supplierRef{ID: s.ID, Name: s.Name, Trade: s.Trade})
	}
	for _, t := range tasks {
		ref := taskRef{ID: t.ID, Project: conflict.UnknownName, Supplier: conflict.UnknownName, Start: t.Start, End: t.End, Title: t.Title}
		if p := schema.FindProject(projects, t.ProjectID); p != nil {
			ref.Project = p.Name
		}
		if s := schema.FindSupplier(suppliers, t.SupplierID); s != nil {
			ref.Supplier = s.Name
		}
		ctx.Tasks = append(ctx.Tasks, ref)
	}
	for _, c := range conflict.Detect(tasks, suppliers, projects) {
		ctx.Conflicts = append(ctx.Conflicts, c.SupplierName+": "+c.Message)
	}
	return json.MarshalIndent(ctx, "", "  ")
}

// Analyze asks the model question about the schedule. Model failures are
// logged and reported as FailureAnswer; the error is returned alongside for
// callers that want it.
func (a *Assistant) Analyze(ctx context.Context, projects []schema.Project, suppliers []schema.Supplier, tasks []schema.Task, question string) (string, error) {
	if a.client == nil {
		return MissingKeyAnswer, nil
	}

	data, err := BuildContext(projects, suppliers, tasks)
	if err != nil {
		return FailureAnswer, fmt.Errorf("failed to build schedule context: %w", err)
	}

	prompt := fmt.Sprintf("Data:\n%s\n\nQuestion:\n%q", data, strings.TrimSpace(question))

	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.config.Model),
		MaxTokens: a.config.MaxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		a.logger.Printf("model request failed: %v", err)
		return FailureAnswer, fmt.Errorf("model request failed: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return EmptyAnswer, nil
	}
	return b.String(), nil
}

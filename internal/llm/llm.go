// Package llm wraps the chat-completion model used for script writing,
// titling and deep-dive research.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

var (
	ErrEmptyResponse = errors.New("llm returned no choices")
	ErrNotConfigured = errors.New("llm api key is empty")
)

// Request is a single system+user completion.
type Request struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float32
}

// Tool is a function the model may call during a tool loop. MaxUses bounds
// how many calls are executed; later calls get a "limit reached" result.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	MaxUses     int
	Handler     func(ctx context.Context, args json.RawMessage) (string, error)
}

// ToolRequest is a bounded research conversation.
type ToolRequest struct {
	Request
	Tools         []Tool
	MaxIterations int
}

// Completer is what the script and research code depend on.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
	CompleteWithTools(ctx context.Context, req ToolRequest) (string, error)
}

// Config configures the OpenAI-compatible client.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// OpenAI implements Completer on any OpenAI-compatible endpoint.
type OpenAI struct {
	client    *openai.Client
	model     string
	maxTokens int
	logger    *log.Logger
}

func NewOpenAI(cfg Config, logger *log.Logger) (*OpenAI, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	if logger == nil {
		logger = log.Default()
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	oc.HTTPClient = &http.Client{Timeout: timeout}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4o
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &OpenAI{client: openai.NewClientWithConfig(oc), model: model, maxTokens: maxTokens, logger: logger}, nil
}

func (o *OpenAI) messages(req Request) []openai.ChatCompletionMessage {
	var msgs []openai.ChatCompletionMessage
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	return append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.User})
}

func (o *OpenAI) tokens(n int) int {
	if n > 0 {
		return n
	}
	return o.maxTokens
}

// Complete sends one completion and returns the text of the first choice.
func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    o.messages(req),
		MaxTokens:   o.tokens(req.MaxTokens),
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// CompleteWithTools runs the model with tools for at most MaxIterations
// rounds. If the model is still calling tools after the last round, one final
// completion without tools asks for the answer.
func (o *OpenAI) CompleteWithTools(ctx context.Context, req ToolRequest) (string, error) {
	iterations := req.MaxIterations
	if iterations <= 0 {
		iterations = 1
	}
	tools := make([]openai.Tool, 0, len(req.Tools))
	byName := make(map[string]Tool, len(req.Tools))
	for _, t := range req.Tools {
		byName[t.Name] = t
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	uses := make(map[string]int)
	msgs := o.messages(req.Request)

	for i := 0; i < iterations; i++ {
		resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       o.model,
			Messages:    msgs,
			MaxTokens:   o.tokens(req.MaxTokens),
			Temperature: req.Temperature,
			Tools:       tools,
		})
		if err != nil {
			return "", fmt.Errorf("chat completion (round %d): %w", i+1, err)
		}
		if len(resp.Choices) == 0 {
			return "", ErrEmptyResponse
		}
		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			return strings.TrimSpace(msg.Content), nil
		}
		msgs = append(msgs, msg)
		for _, call := range msg.ToolCalls {
			out := o.runTool(ctx, byName, uses, call)
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    out,
				ToolCallID: call.ID,
			})
		}
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: "Write your final answer now using what you have gathered."}),
		MaxTokens:   o.tokens(req.MaxTokens),
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion (final): %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (o *OpenAI) runTool(ctx context.Context, tools map[string]Tool, uses map[string]int, call openai.ToolCall) string {
	t, ok := tools[call.Function.Name]
	if !ok || t.Handler == nil {
		return fmt.Sprintf("unknown tool %q", call.Function.Name)
	}
	if t.MaxUses > 0 && uses[t.Name] >= t.MaxUses {
		return fmt.Sprintf("%s limit reached (%d uses); answer with the information you have", t.Name, t.MaxUses)
	}
	uses[t.Name]++
	out, err := t.Handler(ctx, json.RawMessage(call.Function.Arguments))
	if err != nil {
		o.logger.Printf("warn: tool %s failed: %v", t.Name, err)
		return "error: " + err.Error()
	}
	return out
}

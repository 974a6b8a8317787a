package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"

	"github.com/flowloom/fabric/internal/domain/errors"
)

// OpenAIAgent is the reference Agent implementation, wrapping
// github.com/sashabaranov/go-openai behind the Agent interface. It is the
// only package in the module allowed to import the provider SDK.
type OpenAIAgent struct {
	id           string
	model        string
	temperature  float64
	timeout      time.Duration
	defaultAPIKey string
	client       *openai.Client
}

// Config is an agent's static configuration, normally sourced from a
// Workflow's AgentConfig entry.
type Config struct {
	ID          string
	Model       string
	Temperature float64
	TimeoutSec  int
	APIKey      string // optional: overrides defaultAPIKey for this agent
}

// NewOpenAIAgent constructs an agent bound to one model/temperature/timeout
// triple. defaultAPIKey is used when neither cfg.APIKey nor a per-call
// context variable supplies one, the same priority order Execute applies.
func NewOpenAIAgent(cfg Config, defaultAPIKey string) *OpenAIAgent {
	model := cfg.Model
	if model == "" {
		model = "gpt-4o"
	}
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = defaultAPIKey
	}
	var client *openai.Client
	if apiKey != "" {
		client = openai.NewClient(apiKey)
	}
	return &OpenAIAgent{
		id:            cfg.ID,
		model:         model,
		temperature:   cfg.Temperature,
		timeout:       timeout,
		defaultAPIKey: apiKey,
		client:        client,
	}
}

func (a *OpenAIAgent) ID() string { return a.id }

// Execute resolves the API key (vars["openai_api_key"]/vars["OPENAI_API_KEY"]
// override the agent's own default, same priority order the teacher's
// completion executor uses), issues one chat completion, and returns its
// text. Any transport or provider failure is wrapped as *Error so node
// executors can treat it uniformly as a Failure NodeResult.
func (a *OpenAIAgent) Execute(ctx context.Context, prompt string, vars map[string]any) (Response, error) {
	apiKey := a.defaultAPIKey
	if v, ok := vars["openai_api_key"]; ok {
		if s, ok := v.(string); ok && s != "" {
			apiKey = s
		}
	}
	if v, ok := vars["OPENAI_API_KEY"]; ok {
		if s, ok := v.(string); ok && s != "" {
			apiKey = s
		}
	}
	if apiKey == "" {
		return Response{}, &Error{AgentID: a.id, Err: errors.NewConfigurationError("openai-agent", "API key not found in context or default configuration")}
	}

	client := a.client
	if client == nil || apiKey != a.defaultAPIKey {
		client = openai.NewClient(apiKey)
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       a.model,
		Temperature: float32(a.temperature),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}

	start := time.Now()
	resp, err := client.CreateChatCompletion(callCtx, req)
	latency := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("agent_id", a.id).Dur("latency", latency).Msg("agent call failed")
		return Response{}, &Error{AgentID: a.id, Err: err}
	}
	if len(resp.Choices) == 0 {
		return Response{}, &Error{AgentID: a.id, Err: fmt.Errorf("no choices returned")}
	}

	log.Debug().Str("agent_id", a.id).Dur("latency", latency).Int("prompt_tokens", resp.Usage.PromptTokens).Msg("agent call completed")

	return Response{
		Text: resp.Choices[0].Message.Content,
		Usage: map[string]any{
			"prompt_tokens":     resp.Usage.PromptTokens,
			"completion_tokens": resp.Usage.CompletionTokens,
			"total_tokens":      resp.Usage.TotalTokens,
		},
	}, nil
}

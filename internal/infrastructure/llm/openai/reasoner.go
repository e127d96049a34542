package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/paperflow/internal/infrastructure/resilience"
)

const DefaultModel = "gpt-4o-mini"

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Reasoner implements ports.ReasoningBackend with chat completions in JSON mode.
type Reasoner struct {
	client   *goopenai.Client
	model    string
	executor *resilience.Executor
}

func NewReasoner(cfg Config, executor *resilience.Executor) *Reasoner {
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Reasoner{
		client:   goopenai.NewClientWithConfig(clientCfg),
		model:    model,
		executor: executor,
	}
}

func (r *Reasoner) GenerateJSONFromPrompt(ctx context.Context, prompt string) (string, error) {
	var content string
	call := func(callCtx context.Context) error {
		resp, err := r.client.CreateChatCompletion(callCtx, goopenai.ChatCompletionRequest{
			Model:       r.model,
			Temperature: 0,
			ResponseFormat: &goopenai.ChatCompletionResponseFormat{
				Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
			},
			Messages: []goopenai.ChatCompletionMessage{
				{
					Role:    goopenai.ChatMessageRoleSystem,
					Content: "You label business documents. Reply with JSON only.",
				},
				{
					Role:    goopenai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
		})
		if err != nil {
			return fmt.Errorf("openai chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return errors.New("openai chat completion: empty choices")
		}
		content = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	}

	var err error
	if r.executor == nil {
		err = call(ctx)
	} else {
		err = r.executor.Execute(ctx, "openai.chat", call, classifyOpenAIError)
	}
	if err != nil {
		return "", resilience.MarkTemporary("openai chat", err, classifyOpenAIError)
	}
	return content, nil
}

var classifyOpenAIError = resilience.NewClassifier(openAIStatus)

func openAIStatus(err error) (int, bool) {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return reqErr.HTTPStatusCode, true
	}
	return 0, false
}

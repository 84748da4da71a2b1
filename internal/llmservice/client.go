package llmservice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"study-planner/internal/config"

	"github.com/rs/zerolog/log"
	goopenai "github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Model produces one completion for one prompt.
type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// NewModel builds the provider named in cfg and wraps it with timeout and retry handling.
func NewModel(cfg config.LLMConfig) (*Reliable, error) {
	log.Debug().Interface("config", map[string]any{
		"provider":    cfg.Provider,
		"base_url":    cfg.BaseURL,
		"model":       cfg.Model,
		"timeout":     cfg.Timeout.String(),
		"max_retries": cfg.MaxRetries,
	}).Msg("Loaded llm config")

	var (
		base Model
		err  error
	)
	switch cfg.Provider {
	case "groq":
		base, err = NewChatCompletionModel(cfg)
	case "openai", "ollama":
		base, err = NewLangchainModel(cfg)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return NewReliable(base, cfg.Timeout, cfg.MaxRetries, cfg.RetryDelay), nil
}

// LangchainModel calls any langchaingo llms.Model.
type LangchainModel struct {
	llm         llms.Model
	temperature float64
}

func NewLangchainModel(cfg config.LLMConfig) (*LangchainModel, error) {
	var (
		llm llms.Model
		err error
	)
	switch cfg.Provider {
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		llm, err = ollama.New(opts...)
	default:
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(config.Secret(cfg.APIKeyEnv), "Bearer ")),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err = openai.New(opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s: %v", cfg.Provider, err)
	}
	return &LangchainModel{llm: llm, temperature: cfg.Temperature}, nil
}

func (m *LangchainModel) Generate(ctx context.Context, prompt string) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m.llm, prompt, llms.WithTemperature(m.temperature))
}

// ChatCompletionModel talks to any OpenAI compatible chat endpoint, Groq by default.
type ChatCompletionModel struct {
	client      *goopenai.Client
	model       string
	temperature float32
}

func NewChatCompletionModel(cfg config.LLMConfig) (*ChatCompletionModel, error) {
	key := config.Secret(cfg.APIKeyEnv)
	if key == "" {
		log.Warn().Str("env", cfg.APIKeyEnv).Msg("llm api key is empty")
	}
	clientCfg := goopenai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &ChatCompletionModel{
		client:      goopenai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
	}, nil
}

func (m *ChatCompletionModel) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := m.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: m.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: m.temperature,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// permanent reports provider errors that retrying cannot fix.
func permanent(err error) bool {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return isClientError(apiErr.HTTPStatusCode)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return isClientError(reqErr.HTTPStatusCode)
	}
	return false
}

func isClientError(code int) bool {
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests && code != http.StatusRequestTimeout
}

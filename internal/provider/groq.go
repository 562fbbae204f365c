package provider

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xaenox/x-agent/internal/failure"
	"github.com/xaenox/x-agent/internal/metrics"
)

const (
	DefaultGroqBaseURL = "https://api.groq.com/openai/v1"
	DefaultGroqModel   = "llama3-70b-8192"
	groqName           = "groq"
	defaultSystem      = "You are a helpful assistant."
)

type GroqConfig struct {
	APIKey            string
	Model             string
	BaseURL           string
	Temperature       float32
	MaxTokens         int
	RequestsPerMinute int
}

// Groq is the fallback provider, reached through its OpenAI compatible API.
type Groq struct {
	cfg     GroqConfig
	limiter *rate.Limiter
	metrics *metrics.Metrics
	logger  *zap.Logger

	once   sync.Once
	client *openai.Client
}

func NewGroq(cfg GroqConfig, m *metrics.Metrics, logger *zap.Logger) *Groq {
	if cfg.Model == "" {
		cfg.Model = DefaultGroqModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGroqBaseURL
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	return &Groq{
		cfg:     cfg,
		limiter: newLimiter(cfg.RequestsPerMinute),
		metrics: m,
		logger:  logger,
	}
}

func (g *Groq) Name() string { return groqName }

func (g *Groq) getClient() *openai.Client {
	g.once.Do(func() {
		clientCfg := openai.DefaultConfig(g.cfg.APIKey)
		clientCfg.BaseURL = strings.TrimRight(g.cfg.BaseURL, "/")
		g.client = openai.NewClientWithConfig(clientCfg)
	})
	return g.client
}

func (g *Groq) Generate(ctx context.Context, req Request) (string, error) {
	text, err := g.generate(ctx, req)
	record(g.metrics, g.logger, groqName, err)
	return text, err
}

func (g *Groq) generate(ctx context.Context, req Request) (string, error) {
	if g.cfg.APIKey == "" {
		return "", failure.MissingCredential(groqName)
	}
	if err := throttle(ctx, g.limiter, groqName); err != nil {
		return "", err
	}

	system := req.System
	if system == "" {
		system = defaultSystem
	}

	resp, err := g.getClient().CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: g.cfg.Model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: system,
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: req.Prompt,
				},
			},
			MaxTokens:   g.cfg.MaxTokens,
			Temperature: g.cfg.Temperature,
		},
	)
	if err != nil {
		return "", classifyOpenAIError(err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", &failure.Error{Kind: failure.KindEmptyResponse, Provider: groqName, Message: "no message content returned"}
	}
	return resp.Choices[0].Message.Content, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return failure.FromStatus(groqName, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		body := ""
		if reqErr.Err != nil {
			body = reqErr.Err.Error()
		}
		return failure.FromStatus(groqName, reqErr.HTTPStatusCode, body)
	}
	return &failure.Error{Kind: failure.KindProvider, Provider: groqName, Message: "request failed", Err: err}
}

package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/xaenox/x-agent/internal/failure"
	"github.com/xaenox/x-agent/internal/metrics"
)

const (
	DefaultGeminiModel = "gemini-1.5-flash"
	geminiName         = "gemini"
)

type GeminiConfig struct {
	APIKey            string
	Model             string
	BaseURL           string
	Temperature       float32
	MaxOutputTokens   int32
	RequestsPerMinute int
}

// Gemini is the primary provider. The SDK client is built on first use.
type Gemini struct {
	cfg     GeminiConfig
	limiter *rate.Limiter
	metrics *metrics.Metrics
	logger  *zap.Logger

	once    sync.Once
	client  *genai.Client
	initErr error
}

func NewGemini(cfg GeminiConfig, m *metrics.Metrics, logger *zap.Logger) *Gemini {
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.MaxOutputTokens == 0 {
		cfg.MaxOutputTokens = 2048
	}
	return &Gemini{
		cfg:     cfg,
		limiter: newLimiter(cfg.RequestsPerMinute),
		metrics: m,
		logger:  logger,
	}
}

func (g *Gemini) Name() string { return geminiName }

func (g *Gemini) getClient(ctx context.Context) (*genai.Client, error) {
	g.once.Do(func() {
		cc := &genai.ClientConfig{
			APIKey:  g.cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		}
		if g.cfg.BaseURL != "" {
			cc.HTTPOptions = genai.HTTPOptions{BaseURL: g.cfg.BaseURL}
		}
		g.client, g.initErr = genai.NewClient(ctx, cc)
		if g.initErr == nil {
			g.logger.Info("Gemini client initialized", zap.String("model", g.cfg.Model))
		}
	})
	if g.initErr != nil {
		return nil, failure.New(failure.KindProvider, "gemini: client init failed", g.initErr)
	}
	return g.client, nil
}

func (g *Gemini) Generate(ctx context.Context, req Request) (string, error) {
	text, err := g.generate(ctx, req)
	record(g.metrics, g.logger, geminiName, err)
	return text, err
}

func (g *Gemini) generate(ctx context.Context, req Request) (string, error) {
	if g.cfg.APIKey == "" {
		return "", failure.MissingCredential(geminiName)
	}
	client, err := g.getClient(ctx)
	if err != nil {
		return "", err
	}
	if err := throttle(ctx, g.limiter, geminiName); err != nil {
		return "", err
	}

	prompt := req.Prompt
	if req.System != "" {
		prompt = req.System + "\n\n" + prompt
	}
	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	if req.Document != nil {
		parts = append(parts, genai.NewPartFromBytes(req.Document.Data, req.Document.MimeType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	g.logger.Debug("Calling Gemini",
		zap.String("model", g.cfg.Model),
		zap.Int("prompt_length", len(prompt)),
		zap.Bool("has_document", req.Document != nil))

	resp, err := client.Models.GenerateContent(ctx, g.cfg.Model, contents, g.generationConfig())
	if err != nil {
		return "", classifyGeminiError(err)
	}

	if len(resp.Candidates) == 0 {
		reason := "no candidates"
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			reason = "prompt blocked: " + string(resp.PromptFeedback.BlockReason)
		}
		return "", &failure.Error{Kind: failure.KindEmptyResponse, Provider: geminiName, Message: reason}
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 || strings.TrimSpace(candidate.Content.Parts[0].Text) == "" {
		reason := string(candidate.FinishReason)
		if reason == "" {
			reason = "unknown"
		}
		return "", &failure.Error{Kind: failure.KindEmptyResponse, Provider: geminiName, Message: "no text returned, finish reason: " + reason}
	}
	return candidate.Content.Parts[0].Text, nil
}

func (g *Gemini) generationConfig() *genai.GenerateContentConfig {
	threshold := genai.HarmBlockThresholdBlockNone
	return &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(g.cfg.Temperature),
		MaxOutputTokens: g.cfg.MaxOutputTokens,
		CandidateCount:  1,
		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHarassment, Threshold: threshold},
			{Category: genai.HarmCategoryHateSpeech, Threshold: threshold},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: threshold},
			{Category: genai.HarmCategoryDangerousContent, Threshold: threshold},
		},
	}
}

func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		var ptr *genai.APIError
		if !errors.As(err, &ptr) || ptr == nil {
			return &failure.Error{Kind: failure.KindProvider, Provider: geminiName, Message: "request failed", Err: err}
		}
		apiErr = *ptr
	}

	body := apiErr.Message
	if apiErr.Status != "" {
		body = apiErr.Status + ": " + body
	}
	e := failure.FromStatus(geminiName, apiErr.Code, body)
	switch apiErr.Status {
	case "RESOURCE_EXHAUSTED":
		e.Kind = failure.KindRateLimited
		e.Message = "rate limit exceeded"
	case "PERMISSION_DENIED":
		e.Kind = failure.KindForbidden
		e.Message = "access forbidden"
	}
	if e.Status == 0 {
		e.Status = http.StatusInternalServerError
	}
	return e
}

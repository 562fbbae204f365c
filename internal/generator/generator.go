// Package generator drives the primary→fallback generation workflows and
// normalizes whatever the winning provider returned.
package generator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tyler-sommer/stick"
	"go.uber.org/zap"

	"github.com/xaenox/x-agent/internal/background"
	"github.com/xaenox/x-agent/internal/document"
	"github.com/xaenox/x-agent/internal/failure"
	"github.com/xaenox/x-agent/internal/formatter"
	"github.com/xaenox/x-agent/internal/metrics"
	"github.com/xaenox/x-agent/internal/models"
	"github.com/xaenox/x-agent/internal/provider"
	"github.com/xaenox/x-agent/internal/storage"
)

const (
	PostTextLimit             = 280
	DefaultContextLimit       = 5
	DefaultDocumentTextBudget = 10000

	postSystemMessage         = "You are an expert social media content writer who crafts engaging posts for X."
	postFallbackSystemMessage = postSystemMessage + " Return ONLY a JSON object."
	documentSystemMessage     = "You are a helpful assistant that analyzes documents. Return ONLY a JSON object."

	ScannedDocumentSummary = "Could not extract text from PDF (it might be a scanned image). Please provide a text-based PDF."
	UnavailableSummary     = "Analysis failed due to AI service unavailability. Please try again later."
	defaultSummary         = "Summary not available"
	defaultSuggestedTone   = "informative"
	degradedTone           = "neutral"

	workflowSocialPost = "social_post"
	workflowDocument   = "document"
)

type Config struct {
	ContextLimit       int
	DocumentTextBudget int
}

// Generator runs the generation workflows. It is safe for concurrent use.
type Generator struct {
	primary   provider.Provider
	fallback  provider.Provider
	extractor document.TextExtractor
	store     storage.Storage
	tasks     *background.Group
	prompts   *prompts
	cfg       Config
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func New(
	cfg Config,
	primary, fallback provider.Provider,
	extractor document.TextExtractor,
	store storage.Storage,
	tasks *background.Group,
	m *metrics.Metrics,
	logger *zap.Logger,
) (*Generator, error) {
	p, err := loadPrompts()
	if err != nil {
		return nil, fmt.Errorf("failed to load prompts: %w", err)
	}
	if cfg.ContextLimit <= 0 {
		cfg.ContextLimit = DefaultContextLimit
	}
	if cfg.DocumentTextBudget <= 0 {
		cfg.DocumentTextBudget = DefaultDocumentTextBudget
	}
	if tasks == nil {
		tasks = background.NewGroup(background.DefaultTimeout, logger)
	}
	return &Generator{
		primary:   primary,
		fallback:  fallback,
		extractor: extractor,
		store:     store,
		tasks:     tasks,
		prompts:   p,
		cfg:       cfg,
		metrics:   m,
		logger:    logger,
	}, nil
}

// Wait blocks until pending best-effort persistence has finished.
func (g *Generator) Wait() {
	g.tasks.Wait()
}

type state int

const (
	statePrimary state = iota
	stateExtract
	stateFallback
	stateDone
)

type resolution string

const (
	resolvedPrimary  resolution = "primary"
	resolvedFallback resolution = "fallback"
	resolvedDegraded resolution = "degraded"
	resolvedFailed   resolution = "failed"
)

type postPayload struct {
	PostText    formatter.Text `json:"post_text"`
	Hashtags    formatter.Tags `json:"hashtags"`
	ImagePrompt formatter.Text `json:"image_prompt"`
	AltText     formatter.Text `json:"alt_text"`
	CTA         formatter.Text `json:"cta"`
}

func (p postPayload) normalize(req models.GenerationRequest) *models.GeneratedPost {
	return &models.GeneratedPost{
		PostText:    formatter.LimitText(p.PostText.Or(req.Prompt), PostTextLimit),
		Hashtags:    p.Hashtags.Normalize(req.Hashtags),
		ImagePrompt: p.ImagePrompt.Or(req.ImageIdea),
		AltText:     p.AltText.Or("Illustration for " + req.Topic),
		CTA:         p.CTA.Or(req.CTA),
	}
}

type analysisPayload struct {
	Summary       formatter.Text   `json:"summary"`
	KeyTopics     formatter.Topics `json:"keyTopics"`
	SuggestedTone formatter.Text   `json:"suggestedTone"`
}

func (p analysisPayload) normalize() *models.DocumentAnalysis {
	return &models.DocumentAnalysis{
		Summary:       p.Summary.Or(defaultSummary),
		KeyTopics:     p.KeyTopics.Normalize(),
		SuggestedTone: p.SuggestedTone.Or(defaultSuggestedTone),
	}
}

func degradedAnalysis(summary, topic string) *models.DocumentAnalysis {
	return &models.DocumentAnalysis{
		Summary:       summary,
		KeyTopics:     []string{topic},
		SuggestedTone: degradedTone,
	}
}

// GenerateSocialPost asks the primary provider for a post and falls back to
// the secondary one on any failure. Only when both fail is an error returned,
// as a *failure.ChainError.
func (g *Generator) GenerateSocialPost(ctx context.Context, req models.GenerationRequest) (*models.GeneratedPost, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, failure.Invalid("prompt is required")
	}
	req = req.Resolve()

	vars := map[string]stick.Value{
		"prompt":     req.Prompt,
		"topic":      req.Topic,
		"tone":       req.Tone,
		"style":      req.Style,
		"cta":        req.CTA,
		"image_idea": req.ImageIdea,
		"hashtags":   strings.Join(req.Hashtags, ", "),
		"context":    g.recentContext(ctx),
	}

	var (
		payload     postPayload
		primaryErr  error
		fallbackErr error
		res         resolution
	)
	for st := statePrimary; st != stateDone; {
		switch st {
		case statePrimary:
			primaryErr = g.attempt(ctx, g.primary, promptSocialPost, postSystemMessage, vars, nil, &payload)
			if primaryErr == nil {
				res, st = resolvedPrimary, stateDone
				continue
			}
			g.logger.Warn("Primary provider failed, attempting fallback",
				zap.String("workflow", workflowSocialPost),
				zap.String("provider", g.primary.Name()),
				zap.Error(primaryErr))
			st = stateFallback
		case stateFallback:
			payload = postPayload{}
			fallbackErr = g.attempt(ctx, g.fallback, promptSocialPostFallback, postFallbackSystemMessage, vars, nil, &payload)
			res = resolvedFallback
			if fallbackErr != nil {
				res = resolvedFailed
			}
			st = stateDone
		}
	}
	g.metrics.Resolved(workflowSocialPost, string(res))

	if res == resolvedFailed {
		err := &failure.ChainError{Primary: primaryErr, Fallback: fallbackErr}
		g.logger.Error("Social post generation failed", zap.Error(err))
		return nil, err
	}

	post := payload.normalize(req)
	g.persistPost(ctx, post, req)
	return post, nil
}

// AnalyzeDocument summarizes a PDF. It never fails once the input is valid:
// when no provider can help, a degraded analysis is returned instead.
func (g *Generator) AnalyzeDocument(ctx context.Context, data []byte) (*models.DocumentAnalysis, error) {
	if len(data) == 0 {
		return nil, failure.Invalid("document is empty")
	}

	var (
		payload analysisPayload
		result  *models.DocumentAnalysis
		text    string
		res     resolution
	)
	for st := statePrimary; st != stateDone; {
		switch st {
		case statePrimary:
			doc := &provider.Document{Data: data, MimeType: document.PDFMimeType}
			err := g.attempt(ctx, g.primary, promptDocument, "", nil, doc, &payload)
			if err == nil {
				res, st = resolvedPrimary, stateDone
				continue
			}
			g.logger.Warn("Primary provider failed, extracting text locally",
				zap.String("workflow", workflowDocument),
				zap.String("provider", g.primary.Name()),
				zap.Error(err))
			st = stateExtract
		case stateExtract:
			extracted, err := g.extractor.ExtractText(ctx, data)
			switch {
			case err != nil:
				g.logger.Warn("Local text extraction failed", zap.Error(err))
				result, res, st = degradedAnalysis(UnavailableSummary, "Error"), resolvedDegraded, stateDone
			case strings.TrimSpace(extracted) == "":
				g.logger.Warn("Document has no extractable text, possibly scanned")
				result, res, st = degradedAnalysis(ScannedDocumentSummary, "PDF Analysis Failed"), resolvedDegraded, stateDone
			default:
				text, st = strings.TrimSpace(extracted), stateFallback
			}
		case stateFallback:
			payload = analysisPayload{}
			vars := map[string]stick.Value{"text": formatter.Truncate(text, g.cfg.DocumentTextBudget)}
			if err := g.attempt(ctx, g.fallback, promptDocumentText, documentSystemMessage, vars, nil, &payload); err != nil {
				g.logger.Error("Fallback document analysis failed", zap.Error(err))
				result, res = degradedAnalysis(UnavailableSummary, "Error"), resolvedDegraded
			} else {
				res = resolvedFallback
			}
			st = stateDone
		}
	}
	g.metrics.Resolved(workflowDocument, string(res))

	if result != nil {
		return result, nil
	}
	return payload.normalize(), nil
}

// attempt makes one provider call and decodes the reply into dst.
func (g *Generator) attempt(
	ctx context.Context,
	p provider.Provider,
	tag, system string,
	vars map[string]stick.Value,
	doc *provider.Document,
	dst any,
) error {
	prompt, err := g.prompts.render(tag, vars)
	if err != nil {
		return err
	}

	start := time.Now()
	raw, err := p.Generate(ctx, provider.Request{System: system, Prompt: prompt, Document: doc})
	if err != nil {
		return err
	}
	if err := formatter.ExtractInto(raw, dst); err != nil {
		g.logger.Warn("Provider reply did not contain a usable JSON object",
			zap.String("provider", p.Name()),
			zap.String("response", formatter.Truncate(raw, 500)),
			zap.Error(err))
		return fmt.Errorf("%s: %w", p.Name(), err)
	}

	g.logger.Debug("Provider call succeeded",
		zap.String("provider", p.Name()),
		zap.String("template", tag),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// recentContext joins the latest posts. Any failure yields an empty context.
func (g *Generator) recentContext(ctx context.Context) string {
	if g.store == nil {
		return ""
	}
	records, err := g.store.RecentContent(ctx, models.SocialPostContent, g.cfg.ContextLimit)
	if err != nil {
		g.logger.Warn("Failed to retrieve recent posts for context", zap.Error(err))
		return ""
	}
	contents := make([]string, 0, len(records))
	for _, r := range records {
		contents = append(contents, r.Content)
	}
	return strings.Join(contents, "\n\n")
}

func (g *Generator) persistPost(ctx context.Context, post *models.GeneratedPost, req models.GenerationRequest) {
	if g.store == nil {
		return
	}
	record := &models.ContentRecord{
		Content: post.PostText,
		Type:    models.SocialPostContent,
		Metadata: map[string]any{
			"prompt": req.Prompt,
			"topic":  req.Topic,
			"tone":   req.Tone,
			"style":  req.Style,
		},
	}
	g.tasks.Go(ctx, "save social post", func(ctx context.Context) error {
		return g.store.SaveContent(ctx, record)
	})
}

// Package api exposes the generation workflows over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xaenox/x-agent/internal/background"
	"github.com/xaenox/x-agent/internal/media"
	"github.com/xaenox/x-agent/internal/models"
	"github.com/xaenox/x-agent/internal/publisher"
	"github.com/xaenox/x-agent/internal/storage"
)

// Generator is the part of the generation pipeline the handlers need.
type Generator interface {
	GenerateSocialPost(ctx context.Context, req models.GenerationRequest) (*models.GeneratedPost, error)
	AnalyzeDocument(ctx context.Context, data []byte) (*models.DocumentAnalysis, error)
}

// MediaLoader resolves media references sent by clients.
type MediaLoader interface {
	LoadAll(ctx context.Context, refs []string) ([]models.Media, error)
}

// Deps are the collaborators of the HTTP layer. Uploader may be nil, in
// which case generated images keep their original source.
type Deps struct {
	Generator Generator
	Images    media.ImageGenerator
	Uploader  media.Uploader
	Loader    MediaLoader
	Publisher publisher.Publisher
	Store     storage.Storage
	Tasks     *background.Group
	Gatherer  prometheus.Gatherer
	Logger    *zap.Logger
}

type Handler struct {
	deps Deps
}

// NewRouter wires the routes onto a fresh gin engine.
func NewRouter(deps Deps) *gin.Engine {
	if deps.Tasks == nil {
		deps.Tasks = background.NewGroup(background.DefaultTimeout, deps.Logger)
	}
	h := &Handler{deps: deps}

	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), Logger(deps.Logger))
	r.MaxMultipartMemory = maxUploadBytes

	r.GET("/health", h.Health)
	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	posts := r.Group("/api/posts")
	{
		posts.POST("/generate", h.GeneratePost)
		posts.POST("/generate-image", h.GenerateImage)
		posts.GET("/latest", h.Latest)
		posts.POST("/analyze-pdf", h.AnalyzePDF)
		posts.POST("/post", h.Publish)
	}
	return r
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

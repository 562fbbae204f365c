package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xaenox/x-agent/internal/document"
	"github.com/xaenox/x-agent/internal/media"
	"github.com/xaenox/x-agent/internal/models"
)

const maxUploadBytes = 20 << 20

func (h *Handler) GeneratePost(c *gin.Context) {
	var req models.GenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		badRequest(c, "Prompt is required")
		return
	}

	post, err := h.deps.Generator.GenerateSocialPost(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

type imageRequest struct {
	Prompt      string         `json:"prompt"`
	UserDetails map[string]any `json:"userDetails"`
}

type imageResponse struct {
	Image  string `json:"image"`
	Source string `json:"source"`
}

// GenerateImage creates an image, mirrors it to object storage when possible
// and records it in the content history.
func (h *Handler) GenerateImage(c *gin.Context) {
	var req imageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		badRequest(c, "Prompt is required")
		return
	}

	ctx := c.Request.Context()
	img, err := h.deps.Images.Generate(ctx, req.Prompt)
	if err != nil {
		respondError(c, err)
		return
	}

	source := img.Source
	if h.deps.Uploader != nil {
		url, err := h.deps.Uploader.Upload(ctx, img.Data, img.MimeType)
		if err != nil {
			h.deps.Logger.Warn("Failed to upload image, keeping original source", zap.Error(err))
		} else {
			source = url
		}
	}

	h.persistImage(ctx, source, req)

	c.JSON(http.StatusOK, imageResponse{
		Image:  media.DataURI(img.Data, img.MimeType),
		Source: source,
	})
}

func (h *Handler) persistImage(ctx context.Context, source string, req imageRequest) {
	if h.deps.Store == nil {
		return
	}
	metadata := map[string]any{"prompt": req.Prompt}
	if len(req.UserDetails) > 0 {
		metadata["user_details"] = req.UserDetails
	}
	record := &models.ContentRecord{
		Content:  source,
		Type:     models.GeneratedImageContent,
		Metadata: metadata,
	}
	h.deps.Tasks.Go(ctx, "save generated image", func(ctx context.Context) error {
		return h.deps.Store.SaveContent(ctx, record)
	})
}

type latestResponse struct {
	Post  map[string]any `json:"post"`
	Image map[string]any `json:"image"`
}

func (h *Handler) Latest(c *gin.Context) {
	ctx := c.Request.Context()
	post, err := h.deps.Store.LatestContent(ctx, models.SocialPostContent)
	if err != nil {
		respondError(c, err)
		return
	}
	image, err := h.deps.Store.LatestContent(ctx, models.GeneratedImageContent)
	if err != nil {
		respondError(c, err)
		return
	}

	var resp latestResponse
	if post != nil {
		resp.Post = make(map[string]any, len(post.Metadata)+1)
		for k, v := range post.Metadata {
			resp.Post[k] = v
		}
		resp.Post["text"] = post.Content
	}
	if image != nil {
		resp.Image = map[string]any{
			"url":    image.Content,
			"prompt": image.Metadata["prompt"],
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) AnalyzePDF(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "File is required")
		return
	}
	if fh.Size > maxUploadBytes {
		badRequest(c, "File is too large")
		return
	}
	f, err := fh.Open()
	if err != nil {
		respondError(c, fmt.Errorf("open upload: %w", err))
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		respondError(c, fmt.Errorf("read upload: %w", err))
		return
	}
	if !mimetype.Detect(data).Is(document.PDFMimeType) {
		badRequest(c, "File must be a PDF")
		return
	}

	analysis, err := h.deps.Generator.AnalyzeDocument(c.Request.Context(), data)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, analysis)
}

type publishRequest struct {
	Text   string   `json:"text"`
	Image  string   `json:"image"`
	Images []string `json:"images"`
}

func (h *Handler) Publish(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		badRequest(c, "Text is required")
		return
	}

	refs := req.Images
	if req.Image != "" {
		refs = append([]string{req.Image}, refs...)
	}

	ctx := c.Request.Context()
	attachments, err := h.deps.Loader.LoadAll(ctx, refs)
	if err != nil {
		respondError(c, fmt.Errorf("image processing failed: %w", err))
		return
	}

	result, err := h.deps.Publisher.Publish(ctx, req.Text, attachments)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
}

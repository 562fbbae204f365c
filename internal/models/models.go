package models

import (
	"strings"
	"time"
)

type ContentType string

const (
	SocialPostContent     ContentType = "social_post"
	GeneratedImageContent ContentType = "generated_image"
)

const (
	DefaultTone  = "friendly"
	DefaultStyle = "conversational"
	DefaultTopic = "general"
	DefaultCTA   = "Learn more"
)

// GenerationRequest describes a social post to generate
type GenerationRequest struct {
	Prompt    string   `json:"prompt"`
	Topic     string   `json:"topic,omitempty"`
	Tone      string   `json:"tone,omitempty"`
	Style     string   `json:"style,omitempty"`
	Hashtags  []string `json:"hashtags,omitempty"`
	CTA       string   `json:"cta,omitempty"`
	ImageIdea string   `json:"imageIdea,omitempty"`
}

// Resolve returns a copy with surrounding whitespace removed and blank
// optional fields replaced by their defaults.
func (r GenerationRequest) Resolve() GenerationRequest {
	out := GenerationRequest{
		Prompt:   strings.TrimSpace(r.Prompt),
		Topic:    orDefault(r.Topic, DefaultTopic),
		Tone:     orDefault(r.Tone, DefaultTone),
		Style:    orDefault(r.Style, DefaultStyle),
		CTA:      orDefault(r.CTA, DefaultCTA),
		Hashtags: append([]string{}, r.Hashtags...),
	}
	out.ImageIdea = orDefault(r.ImageIdea, out.Topic)
	return out
}

func orDefault(value, def string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return def
}

// GeneratedPost is the normalized result of a generation request
type GeneratedPost struct {
	PostText    string   `json:"post_text"`
	Hashtags    []string `json:"hashtags"`
	ImagePrompt string   `json:"image_prompt"`
	AltText     string   `json:"alt_text"`
	CTA         string   `json:"cta"`
}

// DocumentAnalysis summarizes an uploaded document
type DocumentAnalysis struct {
	Summary       string   `json:"summary"`
	KeyTopics     []string `json:"keyTopics"`
	SuggestedTone string   `json:"suggestedTone"`
}

// ContentRecord is one row of the content history
type ContentRecord struct {
	ID        int64          `json:"id"`
	Content   string         `json:"content"`
	Type      ContentType    `json:"type"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// GeneratedImage holds image bytes and where they came from
type GeneratedImage struct {
	Data     []byte
	MimeType string
	Source   string
}

// Media is an attachment to publish alongside a post
type Media struct {
	Data     []byte
	MimeType string
}

// PublishResult identifies what a publisher created
type PublishResult struct {
	ChatID     int64 `json:"chat_id"`
	MessageIDs []int `json:"message_ids"`
}

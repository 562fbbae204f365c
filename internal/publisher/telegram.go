// Package publisher posts generated content to the social channel.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/xaenox/x-agent/internal/failure"
	"github.com/xaenox/x-agent/internal/models"
)

const (
	telegramName = "telegram"

	// Telegram accepts at most ten items per media group.
	maxMediaGroup = 10
)

type TelegramConfig struct {
	Token    string
	ChatID   int64
	Endpoint string // format string taking the token and method, as tgbotapi.APIEndpoint
	Timeout  time.Duration
}

// Publisher sends a post with optional media.
type Publisher interface {
	Publish(ctx context.Context, text string, media []models.Media) (*models.PublishResult, error)
}

type Telegram struct {
	cfg    TelegramConfig
	logger *zap.Logger

	once sync.Once
	api  *tgbotapi.BotAPI
}

func NewTelegram(cfg TelegramConfig, logger *zap.Logger) *Telegram {
	if cfg.Endpoint == "" {
		cfg.Endpoint = tgbotapi.APIEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Telegram{cfg: cfg, logger: logger}
}

// bot builds the client on first use. It never calls getMe.
func (t *Telegram) bot() *tgbotapi.BotAPI {
	t.once.Do(func() {
		api := &tgbotapi.BotAPI{
			Token:  t.cfg.Token,
			Client: &http.Client{Timeout: t.cfg.Timeout},
			Buffer: 100,
		}
		api.SetAPIEndpoint(t.cfg.Endpoint)
		t.api = api
	})
	return t.api
}

// Publish sends text alone, as a photo caption, or as the caption of the
// first item of a media group, depending on how much media is attached.
func (t *Telegram) Publish(ctx context.Context, text string, media []models.Media) (*models.PublishResult, error) {
	if t.cfg.Token == "" || t.cfg.ChatID == 0 {
		return nil, failure.MissingCredential(telegramName)
	}
	if len(media) > maxMediaGroup {
		return nil, failure.Invalid(fmt.Sprintf("at most %d media items can be published together", maxMediaGroup))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	api := t.bot()
	result := &models.PublishResult{ChatID: t.cfg.ChatID}

	switch len(media) {
	case 0:
		msg, err := api.Send(tgbotapi.NewMessage(t.cfg.ChatID, text))
		if err != nil {
			return nil, t.classify(err)
		}
		result.MessageIDs = []int{msg.MessageID}
	case 1:
		photo := tgbotapi.NewPhoto(t.cfg.ChatID, fileBytes(0, media[0]))
		photo.Caption = text
		msg, err := api.Send(photo)
		if err != nil {
			return nil, t.classify(err)
		}
		result.MessageIDs = []int{msg.MessageID}
	default:
		items := make([]interface{}, 0, len(media))
		for i, m := range media {
			item := tgbotapi.NewInputMediaPhoto(fileBytes(i, m))
			if i == 0 {
				item.Caption = text
			}
			items = append(items, item)
		}
		msgs, err := api.SendMediaGroup(tgbotapi.NewMediaGroup(t.cfg.ChatID, items))
		if err != nil {
			return nil, t.classify(err)
		}
		for _, msg := range msgs {
			result.MessageIDs = append(result.MessageIDs, msg.MessageID)
		}
	}

	t.logger.Info("Published post",
		zap.Int64("chat_id", t.cfg.ChatID),
		zap.Int("media", len(media)),
		zap.Ints("message_ids", result.MessageIDs))
	return result, nil
}

func fileBytes(i int, m models.Media) tgbotapi.FileBytes {
	ext := ".jpg"
	if mt := mimetype.Lookup(m.MimeType); mt != nil && mt.Extension() != "" {
		ext = mt.Extension()
	}
	return tgbotapi.FileBytes{Name: fmt.Sprintf("media-%d%s", i, ext), Bytes: m.Data}
}

func (t *Telegram) classify(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		fe := failure.FromStatus(telegramName, apiErr.Code, apiErr.Message)
		if apiErr.RetryAfter > 0 {
			fe.Message = fmt.Sprintf("%s, retry after %ds", fe.Message, apiErr.RetryAfter)
		}
		t.logger.Error("Telegram rejected the post",
			zap.Int("code", apiErr.Code),
			zap.String("description", apiErr.Message))
		return fe
	}
	t.logger.Error("Failed to reach Telegram", zap.Error(err))
	return &failure.Error{Kind: failure.KindProvider, Provider: telegramName, Message: "request failed", Err: err}
}

package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xaenox/x-agent/internal/failure"
	"github.com/xaenox/x-agent/internal/models"
)

const testToken = "123:abc"

type call struct {
	method string
	form   map[string]string
	files  []string
}

type fakeTelegram struct {
	mu    sync.Mutex
	calls []call
	reply func(method string) string
}

func (f *fakeTelegram) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prefix := "/bot" + testToken + "/"
		if !assert.True(t, strings.HasPrefix(r.URL.Path, prefix), r.URL.Path) {
			http.NotFound(w, r)
			return
		}
		c := call{method: strings.TrimPrefix(r.URL.Path, prefix), form: map[string]string{}}
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
			assert.NoError(t, r.ParseMultipartForm(1<<20))
			for name := range r.MultipartForm.File {
				c.files = append(c.files, name)
			}
		} else {
			assert.NoError(t, r.ParseForm())
		}
		for k := range r.Form {
			c.form[k] = r.Form.Get(k)
		}
		f.mu.Lock()
		f.calls = append(f.calls, c)
		f.mu.Unlock()

		_, _ = io.WriteString(w, f.reply(c.method))
	}
}

func okReply(method string) string {
	msg := `{"message_id":%d,"date":0,"chat":{"id":-100,"type":"channel"}}`
	if method == "sendMediaGroup" {
		return `{"ok":true,"result":[` + fmt.Sprintf(msg, 10) + `,` + fmt.Sprintf(msg, 11) + `]}`
	}
	return `{"ok":true,"result":` + fmt.Sprintf(msg, 42) + `}`
}

func newTestTelegram(t *testing.T, reply func(string) string) (*Telegram, *fakeTelegram) {
	t.Helper()
	fake := &fakeTelegram{reply: reply}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)
	return NewTelegram(TelegramConfig{
		Token:    testToken,
		ChatID:   -100,
		Endpoint: srv.URL + "/bot%s/%s",
	}, zap.NewNop()), fake
}

var photo = models.Media{Data: []byte("\x89PNG\r\n\x1a\nfake"), MimeType: "image/png"}

func TestPublishText(t *testing.T) {
	tg, fake := newTestTelegram(t, okReply)

	res, err := tg.Publish(context.Background(), "hello #go", nil)
	require.NoError(t, err)
	assert.Equal(t, &models.PublishResult{ChatID: -100, MessageIDs: []int{42}}, res)

	require.Len(t, fake.calls, 1)
	assert.Equal(t, "sendMessage", fake.calls[0].method)
	assert.Equal(t, "-100", fake.calls[0].form["chat_id"])
	assert.Equal(t, "hello #go", fake.calls[0].form["text"])
}

func TestPublishPhoto(t *testing.T) {
	tg, fake := newTestTelegram(t, okReply)

	res, err := tg.Publish(context.Background(), "caption", []models.Media{photo})
	require.NoError(t, err)
	assert.Equal(t, []int{42}, res.MessageIDs)

	require.Len(t, fake.calls, 1)
	assert.Equal(t, "sendPhoto", fake.calls[0].method)
	assert.Equal(t, "caption", fake.calls[0].form["caption"])
	assert.Equal(t, []string{"photo"}, fake.calls[0].files)
}

func TestPublishMediaGroup(t *testing.T) {
	tg, fake := newTestTelegram(t, okReply)

	res, err := tg.Publish(context.Background(), "caption", []models.Media{photo, photo})
	require.NoError(t, err)
	assert.Equal(t, []int{10, 11}, res.MessageIDs)

	require.Len(t, fake.calls, 1)
	assert.Equal(t, "sendMediaGroup", fake.calls[0].method)
	assert.Len(t, fake.calls[0].files, 2)

	var items []map[string]any
	require.NoError(t, json.Unmarshal([]byte(fake.calls[0].form["media"]), &items))
	require.Len(t, items, 2)
	assert.Equal(t, "caption", items[0]["caption"])
	assert.Nil(t, items[1]["caption"])
}

func TestPublishClassifiesErrors(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  failure.Kind
	}{
		{"forbidden", `{"ok":false,"error_code":403,"description":"Forbidden: bot is not a member of the channel chat"}`, failure.KindForbidden},
		{"rate limited", `{"ok":false,"error_code":429,"description":"Too Many Requests","parameters":{"retry_after":7}}`, failure.KindRateLimited},
		{"bad request", `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`, failure.KindProvider},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tg, _ := newTestTelegram(t, func(string) string { return tt.reply })

			_, err := tg.Publish(context.Background(), "x", nil)
			require.Error(t, err)
			assert.Equal(t, tt.want, failure.KindOf(err))
		})
	}
}

func TestPublishRetryAfterInMessage(t *testing.T) {
	tg, _ := newTestTelegram(t, func(string) string {
		return `{"ok":false,"error_code":429,"description":"Too Many Requests","parameters":{"retry_after":7}}`
	})

	_, err := tg.Publish(context.Background(), "x", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry after 7s")
}

func TestPublishValidation(t *testing.T) {
	_, err := NewTelegram(TelegramConfig{ChatID: 1}, zap.NewNop()).Publish(context.Background(), "x", nil)
	assert.Equal(t, failure.KindMissingCredential, failure.KindOf(err))

	_, err = NewTelegram(TelegramConfig{Token: testToken}, zap.NewNop()).Publish(context.Background(), "x", nil)
	assert.Equal(t, failure.KindMissingCredential, failure.KindOf(err))

	tg, fake := newTestTelegram(t, okReply)
	_, err = tg.Publish(context.Background(), "x", make([]models.Media, 11))
	assert.Equal(t, failure.KindInvalidRequest, failure.KindOf(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = tg.Publish(ctx, "x", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fake.calls)
}

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xaenox/x-agent/internal/failure"
)

type errorResponse struct {
	Error     string       `json:"error"`
	Kind      failure.Kind `json:"kind,omitempty"`
	RequestID string       `json:"request_id,omitempty"`
}

// respondError writes err with the status its kind maps to.
func respondError(c *gin.Context, err error) {
	status := failure.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusTooManyRequests {
		msg = "AI provider rate limit exceeded. Please try again later."
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, errorResponse{
		Error:     msg,
		Kind:      failure.KindOf(err),
		RequestID: c.GetString(requestIDKey),
	})
}

func badRequest(c *gin.Context, msg string) {
	respondError(c, failure.Invalid(msg))
}

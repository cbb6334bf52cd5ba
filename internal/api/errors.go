package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Habib-0007/CSC-320-Mini-Project/server/internal/document"
	"github.com/Habib-0007/CSC-320-Mini-Project/server/internal/middleware"
	"github.com/Habib-0007/CSC-320-Mini-Project/server/internal/provider"
	"github.com/Habib-0007/CSC-320-Mini-Project/server/internal/ratelimit"
	"github.com/Habib-0007/CSC-320-Mini-Project/server/pkg/models"
)

// writeError maps a failure to its HTTP status and JSON body.
func writeError(c *gin.Context, err error) {
	var (
		invalid     *models.ValidationError
		unsupported *provider.UnsupportedProviderError
		exceeded    *ratelimit.ExceededError
		processing  *document.ProcessingError
		callFailed  *provider.ProviderCallError
	)

	status, code, message := http.StatusInternalServerError, "internal_error", "An unexpected error occurred."
	switch {
	case errors.As(err, &invalid):
		status, code, message = http.StatusBadRequest, "invalid_request", invalid.Error()
	case errors.As(err, &unsupported):
		status, code, message = http.StatusBadRequest, "unsupported_provider", unsupported.Error()
	case errors.As(err, &exceeded):
		middleware.SetRetryAfter(c, exceeded.RetryAfter)
		status, code, message = http.StatusTooManyRequests, "rate_limit_exceeded", rateLimitMessage(exceeded.Policy)
	case errors.As(err, &processing):
		status, code, message = http.StatusUnprocessableEntity, "file_processing_failed", processing.Error()
	case errors.As(err, &callFailed):
		status, code, message = http.StatusBadGateway, "provider_error", callFailed.Error()
	case errors.Is(err, ratelimit.ErrStoreUnavailable):
		status, code, message = http.StatusServiceUnavailable, "rate_limit_unavailable", "Rate limiting is temporarily unavailable."
	}

	_ = c.Error(err)
	c.JSON(status, gin.H{"error": code, "message": message})
}

func rateLimitMessage(p ratelimit.Policy) string {
	msg := fmt.Sprintf("Rate limit exceeded. %s tier is limited to %d generations per %s.",
		titleCase(p.Name), p.Limit, windowName(p.Window))
	if p.Name == "free" {
		msg += " Consider upgrading to Premium for higher limits."
	}
	return msg
}

func windowName(d time.Duration) string {
	switch d {
	case time.Minute:
		return "minute"
	case time.Hour:
		return "hour"
	case 24 * time.Hour:
		return "day"
	}
	return d.String()
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

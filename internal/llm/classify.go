package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"google.golang.org/genai"

	app_errors "study-buddy/backend/internal/errors"
)

// classifyError assigns a kind to a collaborator failure. Structured API
// errors are preferred; message sniffing is the fallback for transports that
// only surface text.
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}
	var genErr *app_errors.GenerationError
	if errors.As(err, &genErr) {
		return err
	}
	if errors.Is(err, app_errors.ErrMissingCredential) {
		return app_errors.NewGenerationError(app_errors.KindConfig, op, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return app_errors.NewGenerationError(app_errors.KindUnknown, op, err)
	}

	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		if kind := kindForStatus(apiErr.Code, apiErr.Status); kind != app_errors.KindUnknown {
			return app_errors.NewGenerationError(kind, op, err)
		}
	}
	return app_errors.NewGenerationError(kindFromMessage(err.Error()), op, err)
}

func kindForStatus(code int, status string) app_errors.Kind {
	switch {
	case code == http.StatusTooManyRequests || status == "RESOURCE_EXHAUSTED":
		return app_errors.KindQuota
	case code == http.StatusUnauthorized || code == http.StatusForbidden,
		status == "UNAUTHENTICATED" || status == "PERMISSION_DENIED":
		return app_errors.KindAuth
	}
	return app_errors.KindUnknown
}

var (
	quotaMarkers  = []string{"429", "RESOURCE_EXHAUSTED", "QUOTA", "EXHAUSTED", "RATE LIMIT"}
	authMarkers   = []string{"401", "403", "UNAUTHENTICATED", "PERMISSION_DENIED", "API KEY NOT VALID", "API_KEY_INVALID", "REQUESTED ENTITY WAS NOT FOUND"}
	safetyMarkers = []string{"SAFETY", "BLOCKED", "PROHIBITED_CONTENT"}
)

func kindFromMessage(msg string) app_errors.Kind {
	upper := strings.ToUpper(msg)
	containsAny := func(markers []string) bool {
		for _, m := range markers {
			if strings.Contains(upper, m) {
				return true
			}
		}
		return false
	}
	switch {
	case containsAny(quotaMarkers):
		return app_errors.KindQuota
	case containsAny(authMarkers):
		return app_errors.KindAuth
	case containsAny(safetyMarkers):
		return app_errors.KindSafety
	}
	return app_errors.KindUnknown
}

package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/matchhub/internal/audit/domain"
	"github.com/smallbiznis/matchhub/internal/authorization"
	campaigndomain "github.com/smallbiznis/matchhub/internal/campaign/domain"
	chatdomain "github.com/smallbiznis/matchhub/internal/chat/domain"
	notificationdomain "github.com/smallbiznis/matchhub/internal/notification/domain"
	profiledomain "github.com/smallbiznis/matchhub/internal/profile/domain"
	reviewdomain "github.com/smallbiznis/matchhub/internal/review/domain"
	"github.com/smallbiznis/matchhub/internal/session"
	"github.com/smallbiznis/matchhub/pkg/db"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrRateLimited        = errors.New("rate_limited")
	// ErrSelectionLost is returned when another selection, a cancel or the
	// expiry sweep won the race for the campaign.
	ErrSelectionLost = errors.New("selection_lost")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		if status == http.StatusTooManyRequests {
			c.Header("Retry-After", retryAfterSeconds(lastErr.Err))
		}
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: "invalid value",
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{Type: "unauthorized", Message: "unauthorized"}
	case isForbiddenError(err):
		return http.StatusForbidden, errorPayload{Type: "forbidden", Message: sentinelCode(err)}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: sentinelCode(err)}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{Type: "conflict", Message: sentinelCode(err)}
	case errors.Is(err, campaigndomain.ErrRateLimited), errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{Type: "rate_limited", Message: "rate_limited"}
	case errors.Is(err, ErrServiceUnavailable), db.IsRetryable(err), errors.Is(err, db.ErrPoolExhausted):
		return http.StatusServiceUnavailable, errorPayload{Type: "service_unavailable", Message: "service unavailable"}
	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	}
}

// classifyErrorForLog feeds the request log with the same type the client
// sees plus the sentinel code.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	return payload.Type, sentinelCode(err)
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

var validationErrors = []error{
	ErrInvalidRequest,
	campaigndomain.ErrInvalidTitle,
	campaigndomain.ErrInvalidCity,
	campaigndomain.ErrInvalidCategories,
	campaigndomain.ErrInvalidDescription,
	campaigndomain.ErrInvalidBudget,
	campaigndomain.ErrInvalidDeadline,
	campaigndomain.ErrInvalidPrice,
	campaigndomain.ErrInvalidCurrency,
	campaigndomain.ErrInvalidReadyIn,
	campaigndomain.ErrInvalidComment,
	campaigndomain.ErrInvalidID,
	campaigndomain.ErrSelfOffer,
	profiledomain.ErrInvalidExternalID,
	profiledomain.ErrInvalidUserID,
	profiledomain.ErrInvalidName,
	profiledomain.ErrInvalidDescription,
	profiledomain.ErrInvalidCity,
	profiledomain.ErrInvalidTerms,
	profiledomain.ErrInvalidBanReason,
	chatdomain.ErrInvalidID,
	reviewdomain.ErrInvalidID,
	reviewdomain.ErrInvalidRating,
	reviewdomain.ErrInvalidComment,
	notificationdomain.ErrInvalidKind,
	notificationdomain.ErrInvalidUser,
	auditdomain.ErrInvalidTimeRange,
	auditdomain.ErrInvalidCursor,
	session.ErrUnknownKind,
	session.ErrPhotoLimit,
}

func isValidationError(err error) bool {
	return matchesAny(err, validationErrors)
}

func isForbiddenError(err error) bool {
	return matchesAny(err, []error{
		campaigndomain.ErrForbidden,
		campaigndomain.ErrRequesterProfileNeeded,
		campaigndomain.ErrProducerProfileNeeded,
		chatdomain.ErrForbidden,
		profiledomain.ErrUserBanned,
		authorization.ErrForbidden,
	})
}

func isNotFoundError(err error) bool {
	return matchesAny(err, []error{
		ErrNotFound,
		campaigndomain.ErrCampaignNotFound,
		campaigndomain.ErrOfferNotFound,
		chatdomain.ErrChannelNotFound,
		profiledomain.ErrUserNotFound,
		profiledomain.ErrProfileNotFound,
	})
}

func isConflictError(err error) bool {
	return matchesAny(err, []error{
		ErrSelectionLost,
		campaigndomain.ErrCampaignNotOpen,
		campaigndomain.ErrDuplicateOffer,
		campaigndomain.ErrInvalidTransition,
		chatdomain.ErrNotSelected,
		chatdomain.ErrConfirmationLapsed,
		profiledomain.ErrDuplicateProfile,
		reviewdomain.ErrCampaignNotComplete,
		reviewdomain.ErrAlreadyReviewed,
	})
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// sentinelCode returns the code of the first known sentinel err wraps, so
// wrapped context never leaks into responses.
func sentinelCode(err error) string {
	groups := [][]error{
		validationErrors,
		{ErrSelectionLost, ErrNotFound, ErrUnauthorized},
		{
			campaigndomain.ErrForbidden, campaigndomain.ErrRequesterProfileNeeded, campaigndomain.ErrProducerProfileNeeded,
			campaigndomain.ErrCampaignNotFound, campaigndomain.ErrOfferNotFound, campaigndomain.ErrCampaignNotOpen,
			campaigndomain.ErrDuplicateOffer, campaigndomain.ErrInvalidTransition, campaigndomain.ErrRateLimited,
		},
		{chatdomain.ErrForbidden, chatdomain.ErrChannelNotFound, chatdomain.ErrNotSelected, chatdomain.ErrConfirmationLapsed},
		{profiledomain.ErrUserBanned, profiledomain.ErrUserNotFound, profiledomain.ErrProfileNotFound, profiledomain.ErrDuplicateProfile},
		{reviewdomain.ErrCampaignNotComplete, reviewdomain.ErrAlreadyReviewed},
		{authorization.ErrForbidden},
	}
	for _, group := range groups {
		for _, target := range group {
			if errors.Is(err, target) {
				return target.Error()
			}
		}
	}
	return "internal_error"
}

func validationErrorCode(err error) string {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return "invalid_request"
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case campaigndomain.ErrSelfOffer.Error():
		return "campaign_id"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func retryAfterSeconds(err error) string {
	var rl *campaigndomain.RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return strconv.Itoa(int(math.Ceil(rl.RetryAfter.Seconds())))
	}
	var burst *burstLimitError
	if errors.As(err, &burst) && burst.retryAfter > 0 {
		return strconv.Itoa(int(math.Ceil(burst.retryAfter.Seconds())))
	}
	return "1"
}

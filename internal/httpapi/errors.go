package httpapi

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ahrav/go-owls/internal/domain"
	"github.com/ahrav/go-owls/internal/ports"
)

// Error codes returned in the "error" field of failure bodies.
const (
	codeValidation   = "validation_failed"
	codeNotFound     = "not_found"
	codeNothingUndo  = "nothing_to_undo"
	codePrecondition = "precondition_failed"
	codeConflict     = "conflict"
	codeOutOfRange   = "norm_table_out_of_range"
	codeUnavailable  = "service_unavailable"
	codeUnauthorized = "unauthenticated"
	codeInternal     = "internal_error"
)

// errorBody is the JSON shape of every failure response.
type errorBody struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Details *outOfRangeDTO `json:"details,omitempty"`
}

// outOfRangeDTO echoes the inputs a normative table could not resolve.
type outOfRangeDTO struct {
	Table             string `json:"table"`
	Subtest           string `json:"subtest,omitempty"`
	AgeInMonths       int    `json:"ageInMonths,omitempty"`
	RawScore          int    `json:"rawScore,omitempty"`
	SumStandardScores int    `json:"sumStandardScores,omitempty"`
	Detail            string `json:"detail,omitempty"`
}

// classify maps an error onto an HTTP status and error code. Order matters:
// the domain outcomes are checked before the transient infrastructure faults
// that may wrap them.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ports.ErrUnauthenticated):
		return http.StatusUnauthorized, codeUnauthorized
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidResponse),
		errors.Is(err, domain.ErrInvalidSubtest):
		return http.StatusBadRequest, codeValidation
	case errors.Is(err, domain.ErrNothingToUndo):
		return http.StatusNotFound, codeNothingUndo
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, domain.ErrPreconditionFailed):
		return http.StatusConflict, codePrecondition
	case errors.Is(err, ports.ErrConflict):
		return http.StatusConflict, codeConflict
	case errors.Is(err, domain.ErrNormTableOutOfRange):
		return http.StatusUnprocessableEntity, codeOutOfRange
	case ports.IsTransient(err):
		return http.StatusServiceUnavailable, codeUnavailable
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

// writeError renders err and logs server-side failures.
func writeError(c *gin.Context, logger *slog.Logger, err error) {
	status, code := classify(err)
	body := errorBody{Error: code, Message: err.Error()}

	var rangeErr *domain.NormRangeError
	if errors.As(err, &rangeErr) {
		body.Details = &outOfRangeDTO{
			Table:             rangeErr.Table,
			Subtest:           rangeErr.Subtest.String(),
			AgeInMonths:       rangeErr.AgeInMonths,
			RawScore:          rangeErr.RawScore,
			SumStandardScores: rangeErr.SumStandardScores,
			Detail:            rangeErr.Detail,
		}
	}

	switch {
	case status == http.StatusServiceUnavailable:
		if d, ok := ports.RetryAfterHint(err); ok {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(d.Seconds()))))
		} else {
			c.Header("Retry-After", "1")
		}
		logger.Warn("request failed with a transient error",
			"method", c.Request.Method, "path", c.FullPath(), "error", err)
	case status >= http.StatusInternalServerError:
		body.Message = "internal error"
		logger.Error("request failed",
			"method", c.Request.Method, "path", c.FullPath(), "error", err)
	}

	c.AbortWithStatusJSON(status, body)
}

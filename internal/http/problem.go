package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ordercore/internal/observability"
	"ordercore/internal/service"
)

const problemContentType = "application/problem+json"

// Problem тело ошибки в формате problem details
type Problem struct {
	Type        string            `json:"type"`
	Title       string            `json:"title"`
	Status      int               `json:"status"`
	Detail      string            `json:"detail"`
	Instance    string            `json:"instance,omitempty"`
	Retryable   *bool             `json:"retryable,omitempty"`
	FieldErrors map[string]string `json:"fieldErrors,omitempty"`
}

// problemFor классифицирует ошибку сервиса; неизвестные ошибки становятся 500 без деталей
func problemFor(err error) Problem {
	var perr *service.PaymentError
	switch {
	case errors.As(err, &perr):
		retryable := perr.Retryable
		p := Problem{Type: "/problems/payment-error", Title: "Payment Failed", Status: http.StatusBadRequest,
			Detail: perr.Message, Retryable: &retryable}
		if retryable {
			p.Title = "External Service Unavailable"
			p.Status = http.StatusBadGateway
		}
		return p
	case errors.Is(err, service.ErrInvariantViolation):
		return internalProblem()
	case errors.Is(err, service.ErrValidation):
		return Problem{Type: "/problems/business-validation-error", Title: "Business Rule Violation",
			Status: http.StatusBadRequest, Detail: err.Error()}
	case errors.Is(err, service.ErrNotFound):
		return Problem{Type: "/problems/resource-not-found", Title: "Resource Not Found",
			Status: http.StatusNotFound, Detail: err.Error()}
	case errors.Is(err, service.ErrInvalidState):
		return Problem{Type: "/problems/invalid-state", Title: "Invalid State",
			Status: http.StatusConflict, Detail: err.Error()}
	case errors.Is(err, service.ErrConflict):
		return Problem{Type: "/problems/duplicate-resource", Title: "Resource Already Exists",
			Status: http.StatusConflict, Detail: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return Problem{Type: "/problems/internal-error", Title: "Request Timeout",
			Status: http.StatusGatewayTimeout, Detail: "request deadline exceeded"}
	}
	return internalProblem()
}

func internalProblem() Problem {
	return Problem{Type: "/problems/internal-error", Title: "Internal Server Error",
		Status: http.StatusInternalServerError, Detail: "An unexpected error occurred"}
}

func badRequest(detail string) Problem {
	return Problem{Type: "/problems/validation-error", Title: "Validation Failed",
		Status: http.StatusBadRequest, Detail: detail}
}

// mapErrorToStatus HTTP-статус для ошибки сервиса
func mapErrorToStatus(err error) int {
	return problemFor(err).Status
}

func (s *Server) problemFromError(c *gin.Context, err error) Problem {
	p := problemFor(err)
	p.Instance = c.Request.URL.Path
	if p.Status >= http.StatusInternalServerError {
		log := observability.LoggerFrom(c.Request.Context(), s.log)
		log.Error("request failed", zap.Bool("defect", errors.Is(err, service.ErrInvariantViolation)), zap.Error(err))
	}
	return p
}

func writeProblem(c *gin.Context, p Problem) {
	c.Header("Content-Type", problemContentType)
	c.AbortWithStatusJSON(p.Status, p)
}

func (s *Server) fail(c *gin.Context, err error) {
	writeProblem(c, s.problemFromError(c, err))
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// only plain response structs are encoded here
		panic(err)
	}
	return b
}

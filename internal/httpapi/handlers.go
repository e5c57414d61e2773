package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ahrav/go-owls/internal/application"
	"github.com/ahrav/go-owls/internal/domain"
	"github.com/ahrav/go-owls/internal/ports"
)

type handlers struct {
	svc    *application.Service
	logger *slog.Logger
}

type createEvaluationRequest struct {
	StudentInfo *domain.Student `json:"studentInfo" binding:"required"`
}

type createEvaluationResponse struct {
	EvaluationID string            `json:"evaluationId"`
	Evaluation   domain.Evaluation `json:"evaluation"`
}

type recordResponseRequest struct {
	TaskID   string `json:"taskId" binding:"required"`
	Response string `json:"response" binding:"required"`
}

type undoResponse struct {
	TaskID           string          `json:"taskId"`
	RestoredResponse domain.Response `json:"restoredResponse"`
}

type progressResponse struct {
	EvaluationID string                            `json:"evaluationId"`
	Subtests     map[domain.Subtest]domain.RawScore `json:"subtests"`
}

// mutationContext detaches a write from client cancellation so that an
// abandoned request either completes or is fully rejected.
func mutationContext(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}

func bindError(err error) error {
	verr := domain.NewValidationError("request")
	verr.AddError(err.Error())
	return verr
}

func (h *handlers) health(c *gin.Context) {
	if err := h.svc.Health(c.Request.Context()); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) createEvaluation(c *gin.Context) {
	var req createEvaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.logger, bindError(err))
		return
	}

	ev, err := h.svc.CreateEvaluation(mutationContext(c), *req.StudentInfo)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, createEvaluationResponse{EvaluationID: ev.ID, Evaluation: ev})
}

func (h *handlers) getEvaluation(c *gin.Context) {
	detail, err := h.svc.Evaluation(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *handlers) recordResponse(c *gin.Context) {
	var req recordResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.logger, bindError(err))
		return
	}
	response, err := domain.ParseResponse(req.Response)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	task, err := h.svc.RecordResponse(mutationContext(c), c.Param("id"), req.TaskID, response)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *handlers) undo(c *gin.Context) {
	entry, err := h.svc.UndoLast(mutationContext(c), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, undoResponse{TaskID: entry.TaskID, RestoredResponse: entry.PreviousResponse})
}

func (h *handlers) calculate(c *gin.Context) {
	result, err := h.svc.Calculate(mutationContext(c), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *handlers) progress(c *gin.Context) {
	id := c.Param("id")
	raws, err := h.svc.Progress(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, progressResponse{EvaluationID: id, Subtests: raws})
}

func (h *handlers) score(c *gin.Context) {
	result, err := h.svc.Score(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *handlers) listEvaluations(c *gin.Context) {
	filter := ports.EvaluationFilter{}

	verr := domain.NewValidationError("query")
	if v := c.Query("status"); v != "" {
		filter.Status = domain.Status(v)
		if !filter.Status.Valid() {
			verr.AddErrorf("unknown status %q", v)
		}
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			verr.AddErrorf("limit must be a non-negative integer, got %q", v)
		}
		filter.Limit = n
	}
	if c.Query("mine") == "true" {
		if s, ok := sessionFrom(c); ok {
			filter.CreatedBy = s.Subject
		}
	}
	if err := verr.ErrOrNil(); err != nil {
		writeError(c, h.logger, err)
		return
	}

	rows, err := h.svc.SearchDashboard(c.Request.Context(), filter, c.Query("student"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

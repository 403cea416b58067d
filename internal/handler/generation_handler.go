package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

type generationService interface {
	Generate(ctx context.Context, req dto.GenerateTimetableRequest, actorID string) (*dto.GenerationRunResponse, error)
	GetRun(ctx context.Context, id string) (*dto.GenerationRunResponse, error)
	ListRuns(ctx context.Context, datasetID string, limit int) ([]dto.GenerationRunResponse, error)
	GetResult(ctx context.Context, runID string) (*dto.TimetableResultResponse, error)
}

type exportService interface {
	Export(ctx context.Context, runID string, q dto.ExportQuery) (*dto.ExportLinkResponse, error)
	ResolveDownload(ctx context.Context, token string) (*service.ExportDownload, error)
}

// GenerationHandler exposes generation run and export endpoints.
type GenerationHandler struct {
	generations generationService
	exports     exportService
}

// NewGenerationHandler constructs the handler.
func NewGenerationHandler(generations generationService, exports exportService) *GenerationHandler {
	return &GenerationHandler{generations: generations, exports: exports}
}

// Generate godoc
// @Summary Queue a timetable generation run
// @Description Start solving the given dataset in the background and return the run handle
// @Tags Generation
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.GenerateTimetableRequest true "Generation request"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /generations [post]
func (h *GenerationHandler) Generate(c *gin.Context) {
	var req dto.GenerateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generation request"))
		return
	}

	actorID := ""
	if claims := claimsFromContext(c); claims != nil {
		actorID = claims.UserID
	}

	run, err := h.generations.Generate(c.Request.Context(), req, actorID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, run, nil)
}

// GetRun godoc
// @Summary Generation run status
// @Description Report run state and progress; poll until status is DONE or FAILED
// @Tags Generation
// @Produce json
// @Security BearerAuth
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /generations/{id} [get]
func (h *GenerationHandler) GetRun(c *gin.Context) {
	run, err := h.generations.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, run, nil)
}

// ListRuns godoc
// @Summary List generation runs for a dataset
// @Tags Generation
// @Produce json
// @Security BearerAuth
// @Param datasetId query string true "Dataset ID"
// @Param limit query int false "Maximum rows"
// @Success 200 {object} response.Envelope
// @Router /generations [get]
func (h *GenerationHandler) ListRuns(c *gin.Context) {
	datasetID := c.Query("datasetId")
	if datasetID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "datasetId required"))
		return
	}
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	runs, err := h.generations.ListRuns(c.Request.Context(), datasetID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, runs, nil)
}

// GetResult godoc
// @Summary Finished timetable for a run
// @Description Returns 409 while the run is queued or running
// @Tags Generation
// @Produce json
// @Security BearerAuth
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /generations/{id}/result [get]
func (h *GenerationHandler) GetResult(c *gin.Context) {
	result, err := h.generations.GetResult(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Export godoc
// @Summary Export a finished timetable
// @Description Render the schedule as CSV, PDF, or JSON and return a signed download link
// @Tags Generation
// @Produce json
// @Security BearerAuth
// @Param id path string true "Run ID"
// @Param format query string false "csv, pdf, or json" default(csv)
// @Param scope query string false "full, day, class, or teacher" default(full)
// @Param day query int false "Day index for day scope (0=Monday)"
// @Param target query string false "Class or teacher ID for those scopes"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /generations/{id}/export [get]
func (h *GenerationHandler) Export(c *gin.Context) {
	var query dto.ExportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export query"))
		return
	}

	link, err := h.exports.Export(c.Request.Context(), c.Param("id"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// Download godoc
// @Summary Download a rendered export via signed token
// @Tags Generation
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /exports/download [get]
func (h *GenerationHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if strings.TrimSpace(token) == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}

	download, err := h.exports.ResolveDownload(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close() //nolint:errcheck

	info, err := download.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat export file"))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", download.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), download.ContentType, download.File, nil)
}

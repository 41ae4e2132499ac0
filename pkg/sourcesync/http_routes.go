package sourcesync

import (
	"context"
	"net/http"

	"github.com/Mythidas/MSPByte-sub000/pkg/internal/api"
	"github.com/Mythidas/MSPByte-sub000/pkg/rowstore"
	"github.com/Mythidas/MSPByte-sub000/pkg/source/model"
	"github.com/Mythidas/MSPByte-sub000/pkg/source/runner"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 50

	MessageNoJobs        = "No jobs found"
	MessageJobsProcessed = "Jobs processed"
)

type Processor interface {
	Process(ctx context.Context) (runner.Summary, error)
}

type HttpHandler struct {
	logger    *zap.Logger
	processor Processor
	jobs      rowstore.Table[*model.SyncJob]
}

func NewHttpHandler(logger *zap.Logger, processor Processor, jobs rowstore.Table[*model.SyncJob]) *HttpHandler {
	return &HttpHandler{
		logger:    logger.Named("http"),
		processor: processor,
		jobs:      jobs,
	}
}

func (h *HttpHandler) Register(e *echo.Echo) {
	v1 := e.Group("/api/v1")

	jobs := v1.Group("/sync-jobs")
	jobs.POST("/process", h.ProcessJobs)
	jobs.GET("/process", h.ProcessJobs)
	jobs.GET("", h.ListJobs)
}

func bindValidate(ctx echo.Context, i interface{}) error {
	if err := ctx.Bind(i); err != nil {
		return err
	}

	if err := ctx.Validate(i); err != nil {
		return err
	}

	return nil
}

// ProcessJobs godoc
//
//	@Summary		Process due sync jobs
//	@Description	claims a batch of due jobs and runs them sequentially
//	@Security		BearerToken
//	@Tags			sync
//	@Produce		plain
//	@Success		200	{string}	string
//	@Router			/api/v1/sync-jobs/process [post]
func (h *HttpHandler) ProcessJobs(ctx echo.Context) error {
	authorization := ctx.Request().Header.Get(echo.HeaderAuthorization)
	if authorization == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}

	summary, err := h.processor.Process(rowstore.WithAuthorization(ctx.Request().Context(), authorization))
	if err != nil {
		h.logger.Error("failed to process sync jobs", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if summary.Claimed == 0 {
		return ctx.String(http.StatusOK, MessageNoJobs)
	}
	return ctx.String(http.StatusOK, MessageJobsProcessed)
}

type ListJobsRequest struct {
	api.Page
	Status string `query:"status" validate:"omitempty,oneof=pending in_progress completed failed"`
}

type ListJobsResponse struct {
	Jobs       []*model.SyncJob `json:"jobs"`
	NextMarker string           `json:"next_marker,omitempty"`
}

// ListJobs godoc
//
//	@Summary		List sync jobs
//	@Description	returns sync jobs, latest scheduled first
//	@Security		BearerToken
//	@Tags			sync
//	@Produce		json
//	@Param			status		query		string	false	"pending, in_progress, completed or failed"
//	@Param			size		query		int		false	"page size"
//	@Param			next_marker	query		string	false	"marker from the previous page"
//	@Success		200			{object}	ListJobsResponse
//	@Router			/api/v1/sync-jobs [get]
func (h *HttpHandler) ListJobs(ctx echo.Context) error {
	var req ListJobsRequest
	if err := bindValidate(ctx, &req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Size == 0 {
		req.Size = defaultPageSize
	}
	offset, err := req.Offset()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	q := rowstore.Query{}
	if req.Status != "" {
		q = rowstore.Where("status", req.Status)
	}
	jobs, err := h.jobs.Select(ctx.Request().Context(), q.OrderBy("scheduled_at", true).Page(req.Size, offset))
	if err != nil {
		h.logger.Error("failed to list sync jobs", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list sync jobs")
	}

	next, err := req.Next(len(jobs))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return ctx.JSON(http.StatusOK, ListJobsResponse{Jobs: jobs, NextMarker: next})
}

package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/union-registry/internal/model"
)

// ReportService builds the membership dashboard.
type ReportService interface {
	Stats(ctx context.Context, caller model.Caller) (model.Report, error)
}

type ReportHandler struct {
	Reports ReportService
	Logger  *logrus.Logger
}

func NewReportHandler(r ReportService, logger *logrus.Logger) *ReportHandler {
	return &ReportHandler{Reports: r, Logger: logger}
}

// Stats handles GET /v1/reports.
func (h *ReportHandler) Stats(c echo.Context) error {
	caller, ok := callerOf(c)
	if !ok {
		return unauthorized(c)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	r, err := h.Reports.Stats(ctx, caller)
	if err != nil {
		return writeError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, r)
}

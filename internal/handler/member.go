package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/union-registry/internal/model"
	"github.com/iliyamo/union-registry/internal/repository"
	"github.com/iliyamo/union-registry/internal/service"
)

// MemberService is the member business logic used by MemberHandler.
type MemberService interface {
	Create(ctx context.Context, caller model.Caller, in service.MemberInput) (*model.Member, error)
	Get(ctx context.Context, caller model.Caller, id uint64) (*model.Member, error)
	List(ctx context.Context, caller model.Caller, f repository.MemberFilter) (service.MemberPage, error)
	FilterOptions(ctx context.Context, caller model.Caller) (service.FilterOptions, error)
	Update(ctx context.Context, caller model.Caller, id uint64, in service.MemberInput) (*model.Member, error)
	Delete(ctx context.Context, caller model.Caller, id uint64) error
}

// MemberHandler serves /v1/members.
type MemberHandler struct {
	Members MemberService
	Logger  *logrus.Logger
}

func NewMemberHandler(m MemberService, logger *logrus.Logger) *MemberHandler {
	return &MemberHandler{Members: m, Logger: logger}
}

type pageMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
	LastPage int   `json:"last_page"`
}

type memberListResp struct {
	Data    []*model.MemberResponse  `json:"data"`
	Meta    pageMeta                 `json:"meta"`
	Filters *repository.MemberFilter `json:"filters,omitempty"`
	Options *service.FilterOptions   `json:"options,omitempty"`
}

// List handles GET /v1/members.  Administrators get the filtered page plus
// the filter options; members get their own record.
func (h *MemberHandler) List(c echo.Context) error {
	caller, ok := callerOf(c)
	if !ok {
		return unauthorized(c)
	}
	page := 1
	if p := strings.TrimSpace(c.QueryParam("page")); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid page"})
		}
		page = n
	}
	f := repository.MemberFilter{
		Search:     strings.TrimSpace(c.QueryParam("search")),
		Status:     strings.TrimSpace(c.QueryParam("status")),
		Company:    strings.TrimSpace(c.QueryParam("company")),
		Department: strings.TrimSpace(c.QueryParam("department")),
		Page:       page,
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.Members.List(ctx, caller, f)
	if err != nil {
		return writeError(c, h.Logger, err)
	}
	resp := memberListResp{
		Data: make([]*model.MemberResponse, 0, len(res.Items)),
		Meta: pageMeta{Page: res.Page, PageSize: res.PageSize, Total: res.Total, LastPage: res.LastPage},
	}
	for _, m := range res.Items {
		resp.Data = append(resp.Data, m.ToResponse())
	}
	if caller.IsAdministrator() {
		opts, err := h.Members.FilterOptions(ctx, caller)
		if err != nil {
			return writeError(c, h.Logger, err)
		}
		resp.Filters = &f
		resp.Options = &opts
	}
	return c.JSON(http.StatusOK, resp)
}

// Filters handles GET /v1/members/filters.
func (h *MemberHandler) Filters(c echo.Context) error {
	caller, ok := callerOf(c)
	if !ok {
		return unauthorized(c)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	opts, err := h.Members.FilterOptions(ctx, caller)
	if err != nil {
		return writeError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, opts)
}

// Create handles POST /v1/members.
func (h *MemberHandler) Create(c echo.Context) error {
	caller, ok := callerOf(c)
	if !ok {
		return unauthorized(c)
	}
	var in service.MemberInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	m, err := h.Members.Create(ctx, caller, in)
	if err != nil {
		return writeError(c, h.Logger, err)
	}
	return c.JSON(http.StatusCreated, m.ToResponse())
}

// Get handles GET /v1/members/:id.
func (h *MemberHandler) Get(c echo.Context) error {
	caller, ok := callerOf(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	m, err := h.Members.Get(ctx, caller, id)
	if err != nil {
		return writeError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, m.ToResponse())
}

// Update handles PUT /v1/members/:id.
func (h *MemberHandler) Update(c echo.Context) error {
	caller, ok := callerOf(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var in service.MemberInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	m, err := h.Members.Update(ctx, caller, id, in)
	if err != nil {
		return writeError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, m.ToResponse())
}

// Delete handles DELETE /v1/members/:id.
func (h *MemberHandler) Delete(c echo.Context) error {
	caller, ok := callerOf(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.Members.Delete(ctx, caller, id); err != nil {
		return writeError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "member deleted", "id": id})
}

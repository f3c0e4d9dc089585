package api

import (
	"strings"

	"github.com/labstack/echo/v4"

	"AlphaNebula/internal/domain/models"
	domrepo "AlphaNebula/internal/domain/repository"
	"AlphaNebula/internal/usecase"
	xhttp "AlphaNebula/pkg/http"
	xlogger "AlphaNebula/pkg/logger"
)

// CurationHandler serves the review queue and manual alias curation.
type CurationHandler struct {
	logger   *xlogger.Logger
	curation *usecase.AliasCuration
}

func NewCurationHandler(logger *xlogger.Logger, curation *usecase.AliasCuration) *CurationHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &CurationHandler{logger: logger.Component("api.curation"), curation: curation}
}

func (h *CurationHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/review", h.Pending)
	e.POST("/review/:id/approve", h.Approve)
	e.POST("/review/:id/discard", h.Discard)
	e.GET("/aliases", h.List)
	e.POST("/aliases", h.Curate)
}

func (h *CurationHandler) Pending(c echo.Context) error {
	req := &models.ReviewListRequest{}
	if verr := xhttp.Bind(c, req); verr != nil {
		return xhttp.Invalid(c, verr)
	}
	items, err := h.curation.Pending(c.Request().Context(), req.Limit, req.Offset)
	if err != nil {
		return fail(c, h.logger, "review.pending", err)
	}
	return xhttp.List(c, items, int64(len(items)))
}

func (h *CurationHandler) Approve(c echo.Context) error {
	req := &models.ApproveReviewRequest{}
	if verr := xhttp.Bind(c, req); verr != nil {
		return xhttp.Invalid(c, verr)
	}
	alias, err := h.curation.Approve(c.Request().Context(), req.ID, models.NormalizeTicker(req.Ticker), models.EntityType(req.EntityType), req.Confidence)
	if err != nil {
		return fail(c, h.logger, "review.approve", err)
	}
	return xhttp.OK(c, alias)
}

func (h *CurationHandler) Discard(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return fail(c, h.logger, "review.discard", models.NewValidationError("id", "is required"))
	}
	item, err := h.curation.Discard(c.Request().Context(), id)
	if err != nil {
		return fail(c, h.logger, "review.discard", err)
	}
	return xhttp.OK(c, item)
}

func (h *CurationHandler) List(c echo.Context) error {
	req := &models.AliasListRequest{}
	if verr := xhttp.Bind(c, req); verr != nil {
		return xhttp.Invalid(c, verr)
	}
	aliases, err := h.curation.List(c.Request().Context(), models.NormalizeTicker(req.Ticker), req.Limit)
	if err != nil {
		return fail(c, h.logger, "aliases.list", err)
	}
	return xhttp.List(c, aliases, int64(len(aliases)))
}

func (h *CurationHandler) Curate(c echo.Context) error {
	req := &models.CurateAliasRequest{}
	if verr := xhttp.Bind(c, req); verr != nil {
		return xhttp.Invalid(c, verr)
	}
	alias, outcome, err := h.curation.Curate(c.Request().Context(), models.EntityAlias{
		RawName:    req.RawName,
		Ticker:     models.NormalizeTicker(req.Ticker),
		EntityType: models.EntityType(req.EntityType),
		Confidence: req.Confidence,
	})
	if err != nil {
		return fail(c, h.logger, "aliases.curate", err)
	}
	if outcome == domrepo.OutcomeInserted {
		return xhttp.Created(c, alias)
	}
	return xhttp.OK(c, alias)
}

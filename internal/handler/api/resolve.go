package api

import (
	"github.com/labstack/echo/v4"

	"AlphaNebula/internal/domain/models"
	"AlphaNebula/internal/domain/service"
	"AlphaNebula/internal/service/ratelimit"
	xhttp "AlphaNebula/pkg/http"
	xlogger "AlphaNebula/pkg/logger"
)

// ResolveHandler serves POST /resolve.
type ResolveHandler struct {
	logger   *xlogger.Logger
	resolver service.Resolver
	limiter  *ratelimit.Limiter
}

// NewResolveHandler builds the handler. A nil limiter disables rate limiting.
func NewResolveHandler(logger *xlogger.Logger, resolver service.Resolver, limiter *ratelimit.Limiter) *ResolveHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &ResolveHandler{logger: logger.Component("api.resolve"), resolver: resolver, limiter: limiter}
}

func (h *ResolveHandler) RegisterRoutes(e *echo.Echo) {
	var mw []echo.MiddlewareFunc
	if h.limiter != nil {
		mw = append(mw, ratelimit.Middleware(h.limiter))
	}
	e.POST("/resolve", h.Resolve, mw...)
}

func (h *ResolveHandler) Resolve(c echo.Context) error {
	req := &models.ResolveRequest{}
	if verr := xhttp.Bind(c, req); verr != nil {
		return xhttp.Invalid(c, verr)
	}
	m := models.RawMention{RawName: req.RawName, Source: req.Source, EntityType: models.EntityType(req.EntityType)}

	var (
		res models.ResolutionResult
		err error
	)
	if req.NoCache {
		res, err = h.resolver.Resolve(c.Request().Context(), m)
	} else {
		res, err = h.resolver.ResolveCached(c.Request().Context(), m)
	}
	if err != nil {
		return fail(c, h.logger, "resolve", err)
	}
	return xhttp.OK(c, res)
}

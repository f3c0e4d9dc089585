package api

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"AlphaNebula/internal/domain/models"
	"AlphaNebula/internal/domain/service"
	"AlphaNebula/internal/usecase"
	xhttp "AlphaNebula/pkg/http"
	xlogger "AlphaNebula/pkg/logger"
	"AlphaNebula/pkg/util"
)

// SignalsHandler exposes ingestion and the read side of the signal engine.
type SignalsHandler struct {
	logger       *xlogger.Logger
	engine       service.SignalEngine
	ingestor     *usecase.SignalIngestor
	freshnessTTL time.Duration
}

func NewSignalsHandler(logger *xlogger.Logger, engine service.SignalEngine, ingestor *usecase.SignalIngestor, freshnessTTL time.Duration) *SignalsHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	if freshnessTTL <= 0 {
		freshnessTTL = 24 * time.Hour
	}
	return &SignalsHandler{logger: logger.Component("api.signals"), engine: engine, ingestor: ingestor, freshnessTTL: freshnessTTL}
}

func (h *SignalsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/signals")
	g.POST("", h.Ingest)
	g.GET("/:ticker", h.Events)
	g.GET("/:ticker/anomalies", h.Anomalies)
	g.GET("/:ticker/latest", h.Latest)
	g.GET("/:ticker/causality", h.Causality)
	g.GET("/:ticker/nowcast", h.Nowcast)
}

func (h *SignalsHandler) Ingest(c echo.Context) error {
	req := &models.IngestSignalRequest{}
	if verr := xhttp.Bind(c, req); verr != nil {
		return xhttp.Invalid(c, verr)
	}
	res, err := h.ingestor.IngestRequest(c.Request().Context(), *req)
	if err != nil {
		return fail(c, h.logger, "ingest", err)
	}
	return xhttp.Created(c, res)
}

// query turns a window request into a SignalQuery. Zero bounds are filled by the engine.
func query(req *models.SignalWindowRequest) (models.SignalQuery, error) {
	q := models.SignalQuery{Ticker: req.Ticker, Limit: req.Limit}
	for _, raw := range util.SplitCSV(req.SignalType) {
		st := models.SignalType(strings.ToUpper(raw))
		if !st.Valid() {
			return q, models.NewValidationError("signal_type", "unknown signal type "+raw)
		}
		q.SignalTypes = append(q.SignalTypes, st)
	}
	var ok bool
	if req.From != "" {
		if q.From, ok = util.ParseTime(req.From); !ok {
			return q, models.NewValidationError("from", "unrecognized time "+req.From)
		}
	}
	if req.To != "" {
		if q.To, ok = util.ParseTime(req.To); !ok {
			return q, models.NewValidationError("to", "unrecognized time "+req.To)
		}
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return q, models.NewValidationError("to", "must not be before from")
	}
	return q, nil
}

func (h *SignalsHandler) Events(c echo.Context) error {
	req := &models.SignalWindowRequest{}
	if verr := xhttp.Bind(c, req); verr != nil {
		return xhttp.Invalid(c, verr)
	}
	q, err := query(req)
	if err != nil {
		return fail(c, h.logger, "events", err)
	}
	events, err := h.engine.Events(c.Request().Context(), q)
	if err != nil {
		return fail(c, h.logger, "events", err)
	}
	return xhttp.List(c, events, int64(len(events)))
}

func (h *SignalsHandler) Anomalies(c echo.Context) error {
	req := &models.SignalWindowRequest{}
	if verr := xhttp.Bind(c, req); verr != nil {
		return xhttp.Invalid(c, verr)
	}
	q, err := query(req)
	if err != nil {
		return fail(c, h.logger, "anomalies", err)
	}
	scores, err := h.engine.Anomalies(c.Request().Context(), q)
	if err != nil {
		return fail(c, h.logger, "anomalies", err)
	}
	return xhttp.List(c, scores, int64(len(scores)))
}

func (h *SignalsHandler) Latest(c echo.Context) error {
	req := &models.LatestSignalRequest{}
	if verr := xhttp.Bind(c, req); verr != nil {
		return xhttp.Invalid(c, verr)
	}
	ttl := util.ParseDurationDefault(req.TTL, h.freshnessTTL)
	fr, err := h.engine.Freshness(c.Request().Context(), req.Ticker, models.SignalType(strings.ToUpper(req.SignalType)), ttl)
	if err != nil {
		return fail(c, h.logger, "latest", err)
	}
	return xhttp.OK(c, fr)
}

func (h *SignalsHandler) Causality(c echo.Context) error {
	req := &models.CausalityRequest{}
	if verr := xhttp.Bind(c, req); verr != nil {
		return xhttp.Invalid(c, verr)
	}
	res, err := h.engine.Causality(c.Request().Context(), req.Ticker,
		models.SignalType(strings.ToUpper(req.Candidate)),
		models.SignalType(strings.ToUpper(req.Reference)),
		models.Frequency(req.Frequency), req.MaxLag)
	if err != nil {
		return fail(c, h.logger, "causality", err)
	}
	return xhttp.OK(c, res)
}

func (h *SignalsHandler) Nowcast(c echo.Context) error {
	req := &models.NowcastRequest{}
	if verr := xhttp.Bind(c, req); verr != nil {
		return xhttp.Invalid(c, verr)
	}
	var candidates []models.SignalType
	for _, raw := range util.SplitCSV(req.Candidates) {
		candidates = append(candidates, models.SignalType(strings.ToUpper(raw)))
	}
	if len(candidates) == 0 {
		return fail(c, h.logger, "nowcast", models.NewValidationError("candidates", "at least one signal type is required"))
	}
	nc, err := h.engine.Nowcast(c.Request().Context(), req.Ticker, models.SignalType(strings.ToUpper(req.Target)), candidates, models.Frequency(req.Frequency))
	if err != nil {
		return fail(c, h.logger, "nowcast", err)
	}
	return xhttp.OK(c, nc)
}

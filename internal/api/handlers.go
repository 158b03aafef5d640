package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"healthatlas/internal/engine"
	"healthatlas/internal/export"
	"healthatlas/internal/logger"
	"healthatlas/internal/models"
	"healthatlas/internal/render"
	"healthatlas/internal/selection"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const noDataMessage = "No data available for the selected country and year."

type Handler struct {
	store   atomic.Pointer[engine.JoinStore]
	status  atomic.Pointer[[]models.SourceStatus]
	surface render.Surface
	sel     selection.Store
	log     *zap.Logger
}

// NewHandler returns a handler with no data. Until SetData is called every
// data endpoint answers 503.
func NewHandler(surface render.Surface, sel selection.Store, log *zap.Logger) *Handler {
	return &Handler{surface: surface, sel: sel, log: log}
}

// SetData publishes a fully built store. Readers see either the old or the
// new store, never a partial one.
func (h *Handler) SetData(store *engine.JoinStore, status []models.SourceStatus) {
	h.status.Store(&status)
	h.store.Store(store)
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	api := e.Group("/api")
	api.GET("/status", h.GetStatus)
	api.GET("/summary", h.GetSummary)
	api.GET("/map", h.GetMapValues)
	api.GET("/years", h.GetYears)
	api.GET("/value", h.GetValue)
	api.GET("/compare", h.GetComparison)
	api.GET("/details", h.GetDetails)
	api.GET("/deathrate", h.GetDeathRate)
	api.GET("/charts/compare.png", h.GetComparisonChart)
	api.GET("/charts/details.png", h.GetDetailsChart)
	api.GET("/charts/deathrate.png", h.GetDeathRateChart)
	api.GET("/export/:category/:format", h.GetExport)
	api.GET("/selection", h.GetSelection)
	api.PUT("/selection", h.PutSelection)
}

// --- HELPERS ---

func (h *Handler) ready() (*engine.JoinStore, error) {
	s := h.store.Load()
	if s == nil {
		return nil, echo.NewHTTPError(http.StatusServiceUnavailable, "data is still loading")
	}
	return s, nil
}

func getPaginationParams(c echo.Context, defaultLimit int) (int, int) {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	offset, err := strconv.Atoi(c.QueryParam("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

// categoryParam parses a category and checks it was loaded.
func categoryParam(s *engine.JoinStore, raw string) (models.Category, *engine.Dataset, error) {
	cat, err := models.ParseCategory(raw)
	if err != nil {
		return "", nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ds, ok := s.Dataset(cat)
	if !ok {
		return "", nil, echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("category %s is not loaded", cat))
	}
	return cat, ds, nil
}

func countryParam(c echo.Context, name string) (string, error) {
	v := strings.ToUpper(strings.TrimSpace(c.QueryParam(name)))
	if v == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("%s is required", name))
	}
	return v, nil
}

func yearParam(c echo.Context) (int, error) {
	y, err := strconv.Atoi(strings.TrimSpace(c.QueryParam("year")))
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "year must be an integer")
	}
	return y, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// notModified sets the ETag and reports whether the client copy is fresh.
func notModified(c echo.Context, fingerprint uint64, variant string) bool {
	etag := fmt.Sprintf(`"%016x%s"`, fingerprint, variant)
	c.Response().Header().Set("ETag", etag)
	return c.Request().Header.Get("If-None-Match") == etag
}

func (h *Handler) png(c echo.Context, draw func(*bytes.Buffer) error) error {
	var buf bytes.Buffer
	if err := draw(&buf); err != nil {
		if errors.Is(err, render.ErrNoData) {
			return echo.NewHTTPError(http.StatusNotFound, noDataMessage)
		}
		logger.FromContext(c.Request().Context(), h.log).Error("render failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot render chart").SetInternal(err)
	}
	return c.Blob(http.StatusOK, "image/png", buf.Bytes())
}

// --- HANDLERS ---

func (h *Handler) GetStatus(c echo.Context) error {
	var sources []models.SourceStatus
	if st := h.status.Load(); st != nil {
		sources = *st
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"ready":   h.store.Load() != nil,
		"sources": sources,
	})
}

func (h *Handler) GetSummary(c echo.Context) error {
	s, err := h.ready()
	if err != nil {
		return err
	}
	cat, _, err := categoryParam(s, orDefault(c.QueryParam("category"), string(models.Migration)))
	if err != nil {
		return err
	}
	sum, _ := s.Summary(cat)
	return c.JSON(http.StatusOK, sum)
}

// per-country means for the choropleth, paginated
func (h *Handler) GetMapValues(c echo.Context) error {
	s, err := h.ready()
	if err != nil {
		return err
	}
	cat, ds, err := categoryParam(s, orDefault(c.QueryParam("category"), string(models.Migration)))
	if err != nil {
		return err
	}

	values := s.MapValues(cat)
	total := len(values)
	limit, offset := getPaginationParams(c, total)
	if offset > total {
		offset = total
	}
	if limit > total-offset {
		limit = total - offset
	}
	end := offset + limit

	if notModified(c, ds.Fingerprint(), fmt.Sprintf("-%d-%d", limit, offset)) {
		return c.NoContent(http.StatusNotModified)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":   values[offset:end],
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// year selector options; with category2/country2 the union of both lists
func (h *Handler) GetYears(c echo.Context) error {
	s, err := h.ready()
	if err != nil {
		return err
	}
	cat, _, err := categoryParam(s, c.QueryParam("category"))
	if err != nil {
		return err
	}
	country, err := countryParam(c, "country")
	if err != nil {
		return err
	}

	if c.QueryParam("category2") == "" && c.QueryParam("country2") == "" {
		return c.JSON(http.StatusOK, map[string][]int{"years": s.YearsFor(cat, country)})
	}
	cat2, _, err := categoryParam(s, orDefault(c.QueryParam("category2"), string(cat)))
	if err != nil {
		return err
	}
	country2 := strings.ToUpper(orDefault(strings.TrimSpace(c.QueryParam("country2")), country))
	return c.JSON(http.StatusOK, map[string][]int{"years": s.UnionYears(cat, country, cat2, country2)})
}

func (h *Handler) GetValue(c echo.Context) error {
	s, err := h.ready()
	if err != nil {
		return err
	}
	cat, _, err := categoryParam(s, c.QueryParam("category"))
	if err != nil {
		return err
	}
	country, err := countryParam(c, "country")
	if err != nil {
		return err
	}
	year, err := yearParam(c)
	if err != nil {
		return err
	}
	v, ok := s.ValueAt(cat, country, year)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, noDataMessage)
	}
	return c.JSON(http.StatusOK, models.Record{CountryCode: country, Year: year, Value: v, Category: cat})
}

func (h *Handler) comparison(c echo.Context) (models.Comparison, error) {
	s, err := h.ready()
	if err != nil {
		return models.Comparison{}, err
	}
	cat, _, err := categoryParam(s, orDefault(c.QueryParam("category"), string(models.Doctors)))
	if err != nil {
		return models.Comparison{}, err
	}
	a, err := countryParam(c, "a")
	if err != nil {
		return models.Comparison{}, err
	}
	b, err := countryParam(c, "b")
	if err != nil {
		return models.Comparison{}, err
	}
	if a == b {
		return models.Comparison{}, echo.NewHTTPError(http.StatusBadRequest, "pick two different countries")
	}
	return s.Compare(cat, a, b), nil
}

func (h *Handler) GetComparison(c echo.Context) error {
	cmp, err := h.comparison(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cmp)
}

func (h *Handler) GetComparisonChart(c echo.Context) error {
	cmp, err := h.comparison(c)
	if err != nil {
		return err
	}
	return h.png(c, func(buf *bytes.Buffer) error { return h.surface.Line(buf, cmp) })
}

// details page: doctors vs nurses for one country; year defaults to the
// latest available
func (h *Handler) breakdown(c echo.Context) (models.Breakdown, error) {
	s, err := h.ready()
	if err != nil {
		return models.Breakdown{}, err
	}
	country, err := countryParam(c, "country")
	if err != nil {
		return models.Breakdown{}, err
	}
	years := s.UnionYears(models.Doctors, country, models.Nurses, country)
	if len(years) == 0 {
		return models.Breakdown{}, echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("No data available for %s", country))
	}
	year := years[len(years)-1]
	if c.QueryParam("year") != "" {
		if year, err = yearParam(c); err != nil {
			return models.Breakdown{}, err
		}
	}
	return s.Breakdown(country, year), nil
}

func (h *Handler) GetDetails(c echo.Context) error {
	b, err := h.breakdown(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) GetDetailsChart(c echo.Context) error {
	b, err := h.breakdown(c)
	if err != nil {
		return err
	}
	return h.png(c, func(buf *bytes.Buffer) error { return h.surface.Bars(buf, b) })
}

func (h *Handler) deathRate(c echo.Context) (models.DeathRateComparison, error) {
	s, err := h.ready()
	if err != nil {
		return models.DeathRateComparison{}, err
	}
	country, err := countryParam(c, "country")
	if err != nil {
		return models.DeathRateComparison{}, err
	}
	year, err := yearParam(c)
	if err != nil {
		return models.DeathRateComparison{}, err
	}
	d, ok, err := s.DeathRateComparison(country, year)
	if errors.Is(err, engine.ErrDomain) {
		return d, echo.NewHTTPError(http.StatusUnprocessableEntity, "cannot render: "+err.Error())
	}
	if err != nil {
		return d, err
	}
	if !ok {
		return d, echo.NewHTTPError(http.StatusNotFound, noDataMessage)
	}
	return d, nil
}

func (h *Handler) GetDeathRate(c echo.Context) error {
	d, err := h.deathRate(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) GetDeathRateChart(c echo.Context) error {
	d, err := h.deathRate(c)
	if err != nil {
		return err
	}
	return h.png(c, func(buf *bytes.Buffer) error { return h.surface.Area(buf, d) })
}

func (h *Handler) GetExport(c echo.Context) error {
	s, err := h.ready()
	if err != nil {
		return err
	}
	cat, ds, err := categoryParam(s, c.Param("category"))
	if err != nil {
		return err
	}
	if notModified(c, ds.Fingerprint(), "-"+c.Param("format")) {
		return c.NoContent(http.StatusNotModified)
	}

	var buf bytes.Buffer
	var contentType, ext string
	switch c.Param("format") {
	case "arrow":
		contentType, ext = "application/vnd.apache.arrow.stream", "arrow"
		err = export.WriteArrow(&buf, ds.Records())
	case "xlsx":
		contentType, ext = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "xlsx"
		err = export.WriteXLSX(&buf, cat, ds.Records())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "format must be arrow or xlsx")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "export failed").SetInternal(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", string(cat)+"."+ext))
	return c.Blob(http.StatusOK, contentType, buf.Bytes())
}

func (h *Handler) GetSelection(c echo.Context) error {
	sel, ok, err := h.sel.Get(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot read selection").SetInternal(err)
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "No country selected.")
	}
	return c.JSON(http.StatusOK, sel)
}

func (h *Handler) PutSelection(c echo.Context) error {
	var sel models.Selection
	if err := c.Bind(&sel); err != nil {
		return err
	}
	if err := h.sel.Put(c.Request().Context(), sel); err != nil {
		if selection.IsInvalid(err) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot store selection").SetInternal(err)
	}
	sel, _ = selection.Normalize(sel)
	return c.JSON(http.StatusOK, sel)
}

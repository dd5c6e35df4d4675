package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/record-store/internal/core/domain"
	"github.com/rl1809/record-store/internal/metrics"
)

const maxBodyBytes = 1 << 20

var errValidation = errors.New("invalid request")

type OrderService interface {
	PlaceOrder(ctx context.Context, catalogEntryID string, quantity int) (*domain.Order, error)
	FindOrders(ctx context.Context, filter domain.OrderFilter) (*domain.Page[domain.OrderView], error)
}

type CatalogService interface {
	CreateEntry(ctx context.Context, in domain.CatalogEntryInput, externalID string) (*domain.CatalogEntry, error)
	UpdateEntry(ctx context.Context, id string, patch domain.CatalogEntryPatch, externalID string) (*domain.CatalogEntry, error)
	FindEntries(ctx context.Context, filter domain.CatalogFilter) (*domain.Page[domain.CatalogEntry], error)
	GetEntry(ctx context.Context, id string) (*domain.CatalogEntry, error)
}

type HTTPHandler struct {
	orders  OrderService
	catalog CatalogService
	logger  *zap.Logger
	metrics *metrics.Metrics
}

type PlaceOrderHTTPRequest struct {
	CatalogEntryID string `json:"catalog_entry_id"`
	Quantity       int    `json:"quantity"`
}

type CreateEntryHTTPRequest struct {
	Artist     string          `json:"artist"`
	Album      string          `json:"album"`
	Price      decimal.Decimal `json:"price"`
	Quantity   *int            `json:"quantity"`
	Format     domain.Format   `json:"format"`
	Category   domain.Category `json:"category"`
	ExternalID string          `json:"external_id"`
}

type UpdateEntryHTTPRequest struct {
	Artist     *string          `json:"artist"`
	Album      *string          `json:"album"`
	Price      *decimal.Decimal `json:"price"`
	Quantity   *int             `json:"quantity"`
	Format     *domain.Format   `json:"format"`
	Category   *domain.Category `json:"category"`
	ExternalID string           `json:"external_id"`
}

// Envelope wraps every response body.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func NewHTTPHandler(orders OrderService, catalog CatalogService, logger *zap.Logger, m *metrics.Metrics) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{orders: orders, catalog: catalog, logger: logger, metrics: m}
}

// Routes builds the chi router. /metrics is mounted only when metricsHandler
// is non-nil.
func (h *HTTPHandler) Routes(metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		h.observe,
	)

	r.Get("/health", h.HealthCheck)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/orders", h.PlaceOrder)
		r.Get("/orders", h.FindOrders)

		r.Post("/catalog", h.CreateEntry)
		r.Get("/catalog", h.FindEntries)
		r.Get("/catalog/{id}", h.GetEntry)
		r.Put("/catalog/{id}", h.UpdateEntry)
	})
	return r
}

// DefaultMetricsHandler serves the default Prometheus registry.
func DefaultMetricsHandler() http.Handler {
	return promhttp.Handler()
}

func (h *HTTPHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderHTTPRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.CatalogEntryID) == "" {
		h.writeError(w, r, invalid("catalog_entry_id is required"))
		return
	}
	if err := validateOrderQuantity(req.Quantity); err != nil {
		h.writeError(w, r, err)
		return
	}

	order, err := h.orders.PlaceOrder(r.Context(), req.CatalogEntryID, req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, Envelope{Success: true, Message: "order placed", Data: order})
}

func (h *HTTPHandler) FindOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, size, err := parsePagination(q.Get("page"), q.Get("size"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.orders.FindOrders(r.Context(), domain.OrderFilter{
		Page:           page,
		Size:           size,
		CatalogEntryID: q.Get("catalog_entry_id"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: result})
}

func (h *HTTPHandler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var req CreateEntryHTTPRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	in := domain.CatalogEntryInput{
		Artist:   strings.TrimSpace(req.Artist),
		Album:    strings.TrimSpace(req.Album),
		Price:    req.Price,
		Format:   req.Format,
		Category: req.Category,
	}
	if req.Quantity == nil {
		h.writeError(w, r, invalid("quantity is required"))
		return
	}
	in.Quantity = *req.Quantity
	if err := validateEntry(in); err != nil {
		h.writeError(w, r, err)
		return
	}

	entry, err := h.catalog.CreateEntry(r.Context(), in, strings.TrimSpace(req.ExternalID))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, Envelope{Success: true, Message: "catalog entry created", Data: entry})
}

func (h *HTTPHandler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateEntryHTTPRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	patch := domain.CatalogEntryPatch{
		Price:    req.Price,
		Quantity: req.Quantity,
		Format:   req.Format,
		Category: req.Category,
	}
	if req.Artist != nil {
		artist := strings.TrimSpace(*req.Artist)
		patch.Artist = &artist
	}
	if req.Album != nil {
		album := strings.TrimSpace(*req.Album)
		patch.Album = &album
	}
	if err := validatePatch(patch); err != nil {
		h.writeError(w, r, err)
		return
	}

	entry, err := h.catalog.UpdateEntry(r.Context(), id, patch, strings.TrimSpace(req.ExternalID))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Message: "catalog entry updated", Data: entry})
}

// searchFilter builds a catalog filter from raw transport values. Text is
// trimmed and enum values are matched case-insensitively.
func searchFilter(page, size int, query, artist, album, format, category string) domain.CatalogFilter {
	return domain.CatalogFilter{
		Page:     page,
		Size:     size,
		Query:    strings.TrimSpace(query),
		Artist:   strings.TrimSpace(artist),
		Album:    strings.TrimSpace(album),
		Format:   domain.Format(strings.ToUpper(strings.TrimSpace(format))),
		Category: domain.Category(strings.ToUpper(strings.TrimSpace(category))),
	}
}

func (h *HTTPHandler) FindEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, size, err := parsePagination(q.Get("page"), q.Get("size"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	filter := searchFilter(page, size, q.Get("q"), q.Get("artist"), q.Get("album"), q.Get("format"), q.Get("category"))
	if filter.Format != "" && !filter.Format.Valid() {
		h.writeError(w, r, invalid("format must be one of VINYL, CD, CASSETTE, DIGITAL"))
		return
	}
	if filter.Category != "" && !filter.Category.Valid() {
		h.writeError(w, r, invalid("unknown category %q", filter.Category))
		return
	}

	result, err := h.catalog.FindEntries(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: result})
}

func (h *HTTPHandler) GetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.catalog.GetEntry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: entry})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		dur := time.Since(start)
		h.metrics.ObserveHTTP(r.Method, route, status, dur)
		h.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("duration", dur),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := httpStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, status, Envelope{Success: false, Message: message})
}

func httpStatus(err error) (int, string) {
	switch {
	case errors.Is(err, errValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errValidation, fmt.Sprintf(format, args...))
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return invalid("invalid request body")
	}
	return nil
}

func validateOrderQuantity(quantity int) error {
	if quantity < domain.MinOrderQuantity || quantity > domain.MaxOrderQuantity {
		return invalid("quantity must be between %d and %d", domain.MinOrderQuantity, domain.MaxOrderQuantity)
	}
	return nil
}

func validateEntry(in domain.CatalogEntryInput) error {
	var problems []string
	if in.Artist == "" {
		problems = append(problems, "artist is required")
	}
	if in.Album == "" {
		problems = append(problems, "album is required")
	}
	if !in.Price.IsPositive() {
		problems = append(problems, "price must be greater than 0")
	}
	if in.Quantity < 0 {
		problems = append(problems, "quantity must not be negative")
	}
	if !in.Format.Valid() {
		problems = append(problems, "format must be one of VINYL, CD, CASSETTE, DIGITAL")
	}
	if !in.Category.Valid() {
		problems = append(problems, fmt.Sprintf("unknown category %q", in.Category))
	}
	if len(problems) > 0 {
		return invalid("%s", strings.Join(problems, "; "))
	}
	return nil
}

func validatePatch(p domain.CatalogEntryPatch) error {
	var problems []string
	if p.Artist != nil && *p.Artist == "" {
		problems = append(problems, "artist must not be empty")
	}
	if p.Album != nil && *p.Album == "" {
		problems = append(problems, "album must not be empty")
	}
	if p.Price != nil && !p.Price.IsPositive() {
		problems = append(problems, "price must be greater than 0")
	}
	if p.Quantity != nil && *p.Quantity < 0 {
		problems = append(problems, "quantity must not be negative")
	}
	if p.Format != nil && !p.Format.Valid() {
		problems = append(problems, "format must be one of VINYL, CD, CASSETTE, DIGITAL")
	}
	if p.Category != nil && !p.Category.Valid() {
		problems = append(problems, fmt.Sprintf("unknown category %q", *p.Category))
	}
	if len(problems) > 0 {
		return invalid("%s", strings.Join(problems, "; "))
	}
	return nil
}

func parsePagination(rawPage, rawSize string) (int, int, error) {
	page, size := domain.DefaultPage, domain.DefaultPageSize

	if rawPage != "" {
		n, err := strconv.Atoi(rawPage)
		if err != nil || n < 1 {
			return 0, 0, invalid("page must be a positive integer")
		}
		page = n
	}
	if rawSize != "" {
		n, err := strconv.Atoi(rawSize)
		if err != nil || n < domain.MinPageSize || n > domain.MaxPageSize {
			return 0, 0, invalid("size must be between %d and %d", domain.MinPageSize, domain.MaxPageSize)
		}
		size = n
	}
	return page, size, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

package httpapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"magiainterna/backend/internal/domain"
	"magiainterna/backend/internal/format"
	"magiainterna/backend/internal/receipts"
	"magiainterna/backend/internal/sale"
	"magiainterna/backend/internal/service"
	"magiainterna/backend/internal/store"
)

const maxJSONBody = 1 << 20

var (
	anyRole   = []string{domain.RoleAdmin, domain.RoleStaff}
	adminOnly = []string{domain.RoleAdmin}
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	logger        *zap.Logger
	allowedOrigin string
	loginLimiter  *attemptLimiter
	csrfSecret    []byte
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, logger *zap.Logger) (*API, error) {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		return nil, fmt.Errorf("generate csrf secret: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		service:       svc,
		auth:          auth,
		logger:        logger,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		csrfSecret:    csrfSecret,
	}, nil
}

// csrfTokenForHour is the hex HMAC-SHA256 of an hour bucket (Unix seconds
// truncated to the hour).
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	bucket := time.Now().UTC().Truncate(time.Hour).Unix()
	return a.csrfTokenForHour(bucket)
}

// validateCSRFToken accepts the current and the previous hour bucket.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	currentBucket := time.Now().UTC().Truncate(time.Hour).Unix()
	prevBucket := currentBucket - 3600

	return hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(currentBucket))) ||
		hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(prevBucket)))
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(a.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(a.securityHeaders)
	r.Use(a.limitJSONBody)
	r.Use(a.csrfGuard)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeMethodNotAllowed(w)
	})

	r.Get("/healthz", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)
		r.Get("/auth/csrf-token", a.handleCSRFToken)
		r.Post("/auth/logout", a.requireAuth(a.handleLogout, anyRole...))
		r.Get("/auth/session", a.requireAuth(a.handleSession, anyRole...))

		r.Get("/products", a.requireAuth(a.handleListProducts, anyRole...))
		r.Post("/products", a.requireAuth(a.handleCreateProduct, anyRole...))
		r.Get("/products/low-stock", a.requireAuth(a.handleLowStock, anyRole...))
		r.Get("/products/{id}", a.requireAuth(a.handleGetProduct, anyRole...))
		r.Patch("/products/{id}", a.requireAuth(a.handleUpdateProduct, anyRole...))
		r.Delete("/products/{id}", a.requireAuth(a.handleDeleteProduct, anyRole...))

		r.Get("/customers", a.requireAuth(a.handleListCustomers, anyRole...))
		r.Post("/customers", a.requireAuth(a.handleCreateCustomer, anyRole...))
		r.Get("/customers/{id}", a.requireAuth(a.handleGetCustomer, anyRole...))
		r.Patch("/customers/{id}", a.requireAuth(a.handleUpdateCustomer, anyRole...))
		r.Delete("/customers/{id}", a.requireAuth(a.handleDeleteCustomer, anyRole...))

		r.Get("/sales", a.requireAuth(a.handleListSales, anyRole...))
		r.Post("/sales", a.requireAuth(a.handleCreateSale, anyRole...))
		r.Post("/sales/quote", a.requireAuth(a.handleQuoteSale, anyRole...))
		r.Get("/sales/{id}", a.requireAuth(a.handleGetSale, anyRole...))
		r.Patch("/sales/{id}", a.requireAuth(a.handleUpdateSale, anyRole...))
		r.Delete("/sales/{id}", a.requireAuth(a.handleDeleteSale, anyRole...))

		r.Get("/expenses", a.requireAuth(a.handleListExpenses, anyRole...))
		r.Post("/expenses", a.requireAuth(a.handleCreateExpense, anyRole...))
		r.Get("/expenses/{id}", a.requireAuth(a.handleGetExpense, anyRole...))
		r.Patch("/expenses/{id}", a.requireAuth(a.handleUpdateExpense, anyRole...))
		r.Delete("/expenses/{id}", a.requireAuth(a.handleDeleteExpense, anyRole...))
		r.Post("/expenses/{id}/receipt", a.requireAuth(a.handleUploadReceipt, anyRole...))
		r.Get("/expenses/{id}/receipt", a.requireAuth(a.handleDownloadReceipt, anyRole...))

		r.Get("/analytics/dashboard", a.requireAuth(a.handleDashboard, anyRole...))
		r.Get("/analytics/profit", a.requireAuth(a.handleProfit, anyRole...))
		r.Get("/analytics/category-units", a.requireAuth(a.handleCategoryUnits, anyRole...))
		r.Get("/analytics/payment-methods", a.requireAuth(a.handlePaymentMethods, anyRole...))

		r.Get("/birthdays", a.requireAuth(a.handleBirthdays, anyRole...))

		r.Get("/promotions/templates", a.requireAuth(a.handlePromotionTemplates, anyRole...))
		r.Post("/promotions/preview", a.requireAuth(a.handlePromotionPreview, anyRole...))
		r.Post("/promotions/recipients", a.requireAuth(a.handlePromotionRecipients, anyRole...))

		r.Get("/settings", a.requireAuth(a.handleGetSettings, adminOnly...))
		r.Patch("/settings", a.requireAuth(a.handleUpdateSettings, adminOnly...))
		r.Get("/users/staff", a.requireAuth(a.handleListStaff, adminOnly...))
		r.Post("/users/staff", a.requireAuth(a.handleCreateStaff, adminOnly...))
		r.Get("/audit-logs", a.requireAuth(a.handleAuditLogs, adminOnly...))
	})

	return r
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		session, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(session.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithSession(r.Context(), session)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, session, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	a.service.Audit(service.WithSession(r.Context(), session), "login", "session", session.ID, "")
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	session, _ := service.SessionFromContext(r.Context())
	a.auth.Logout(session)
	a.service.Audit(r.Context(), "logout", "session", session.ID, "")
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	session, _ := service.SessionFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"session": session})
}

// handleCSRFToken returns a token for the current hour bucket. Mutating
// requests echo it in X-CSRF-Token.
func (a *API) handleCSRFToken(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

// statusFor maps service and store errors to HTTP status codes.
func statusFor(err error) int {
	var stockErr *sale.InsufficientStockError
	switch {
	case errors.Is(err, store.ErrInvalid),
		errors.Is(err, sale.ErrEmptyCart),
		errors.Is(err, sale.ErrMissingProduct),
		errors.Is(err, sale.ErrLineOutOfRange),
		errors.Is(err, sale.ErrAmountTooLarge),
		errors.Is(err, receipts.ErrUnsupportedType),
		errors.Is(err, receipts.ErrTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrInsufficientStock),
		errors.As(err, &stockErr):
		return http.StatusConflict
	case errors.Is(err, receipts.ErrNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail answers with the status mapped from err. 5xx causes are logged and
// hidden from the client.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
	}
	writeError(w, status, err)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func parseIntParam(r *http.Request, key string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", store.ErrInvalid, key)
	}
	return value, nil
}

// parseDayRange reads from/to query dates. to is inclusive, so the returned
// upper bound is the start of the following day.
func parseDayRange(r *http.Request) (*time.Time, *time.Time, error) {
	var from, to *time.Time
	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		day, err := format.ParseDate(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: from: %v", store.ErrInvalid, err)
		}
		from = &day
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		day, err := format.ParseDate(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: to: %v", store.ErrInvalid, err)
		}
		next := day.AddDate(0, 0, 1)
		to = &next
	}
	return from, to, nil
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

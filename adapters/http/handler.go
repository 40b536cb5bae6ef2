// Package http exposes the gateway's route table over HTTP.
package http

import (
	"encoding/json"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/toolgate/adapters/metrics"
	"github.com/artpar/toolgate/app"
	"github.com/artpar/toolgate/domain/gateway"
	"github.com/artpar/toolgate/domain/ratelimit"
	"github.com/artpar/toolgate/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// MaxBodyBytes bounds request bodies.
const MaxBodyBytes = 1 << 20

// Header names.
const (
	HeaderAPIKey             = "X-API-Key"
	HeaderAdminKey           = "X-Admin-Key"
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"
)

// ErrorResponseBody is the body of every error response.
type ErrorResponseBody struct {
	Error string `json:"error" example:"rate limit exceeded for free tier: 100 requests per day"`
}

// Handler adapts gateway routes to net/http.
type Handler struct {
	gateway    *app.Gateway
	clock      ports.Clock
	logger     zerolog.Logger
	metrics    *metrics.Collector
	trustProxy bool
}

// HandlerConfig contains configuration for Handler.
type HandlerConfig struct {
	Clock   ports.Clock
	Logger  zerolog.Logger
	Metrics *metrics.Collector // optional
	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable only behind a proxy that sets them.
	TrustProxyHeaders bool
}

// NewHandler creates a new HTTP handler for gw.
func NewHandler(gw *app.Gateway, cfg HandlerConfig) *Handler {
	return &Handler{
		gateway:    gw,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		trustProxy: cfg.TrustProxyHeaders,
	}
}

// Serve returns the http.HandlerFunc for one route.
func (h *Handler) Serve(rt app.Route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var body []byte
		if r.Body != nil {
			var err error
			body, err = io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
			if err != nil {
				writeError(w, http.StatusBadRequest, "failed to read request body")
				return
			}
			if len(body) > MaxBodyBytes {
				writeError(w, http.StatusBadRequest, "request body too large")
				return
			}
		}

		req := gateway.Request{
			APIKey:    extractAPIKey(r),
			AdminKey:  r.Header.Get(HeaderAdminKey),
			Method:    r.Method,
			Path:      r.URL.Path,
			Params:    routeParams(r),
			Query:     r.URL.Query(),
			Body:      body,
			RemoteIP:  extractIP(r, h.trustProxy),
			UserAgent: r.UserAgent(),
			RequestID: middleware.GetReqID(ctx),
		}

		result := h.gateway.Handle(ctx, rt, req)

		h.observe(rt, req, result)

		if result.Decision != nil {
			writeRateLimitHeaders(w.Header(), *result.Decision, h.clock.Now())
		}

		if result.Error != nil {
			writeError(w, result.Error.Status(), result.Error.Message)
			return
		}

		for k, v := range result.Response.Headers {
			w.Header().Set(k, v)
		}
		writeJSON(w, result.Response.Status, result.Response.Body)
	}
}

// observe records metrics and the request log line.
func (h *Handler) observe(rt app.Route, req gateway.Request, result app.Result) {
	status := result.Response.Status
	if result.Error != nil {
		status = result.Error.Status()
	}

	tierLabel := "none"
	if result.Identity != nil {
		tierLabel = string(result.Identity.Tier)
	}

	if h.metrics != nil {
		h.metrics.RequestsTotal.WithLabelValues(rt.Name, req.Method, metrics.StatusClass(status), tierLabel).Inc()
		if result.AuthFailure != "" {
			h.metrics.AuthFailures.WithLabelValues(result.AuthFailure).Inc()
		}
		if result.GateDenied != "" {
			h.metrics.TierDenials.WithLabelValues(tierLabel, string(result.GateDenied)).Inc()
		}
		if d := result.Decision; d != nil {
			decision := "allowed"
			switch {
			case d.Degraded:
				decision = "degraded"
				h.metrics.QuotaDegraded.Inc()
			case !d.Allowed:
				decision = "denied"
			}
			h.metrics.Admissions.WithLabelValues(tierLabel, decision).Inc()
		}
	}

	event := h.logger.Info()
	if result.Error != nil {
		event = h.logger.Warn()
		if result.Error.Kind == gateway.KindInternal {
			event = h.logger.Error()
		}
		event.Str("error", result.Error.Message)
	}

	event.
		Str("route", rt.Name).
		Str("method", req.Method).
		Str("path", req.Path).
		Int("status", status).
		Str("remote_ip", req.RemoteIP).
		Str("request_id", req.RequestID)

	if result.Identity != nil {
		event.
			Str("identity", result.Identity.Key).
			Str("tier", string(result.Identity.Tier))
	}
	if result.Decision != nil {
		event.Int64("count", result.Decision.Count)
	}

	event.Msg("gateway request")
}

func writeRateLimitHeaders(hdr http.Header, d ratelimit.Decision, now time.Time) {
	if n, ok := d.Limit.Max(); ok {
		hdr.Set(HeaderRateLimitLimit, strconv.FormatInt(n, 10))
		hdr.Set(HeaderRateLimitRemaining, strconv.FormatInt(d.Remaining(), 10))
	}
	if !d.ResetAt.IsZero() {
		hdr.Set(HeaderRateLimitReset, strconv.FormatInt(d.ResetAt.Unix(), 10))
	}
	if !d.Allowed {
		secs := int64(math.Ceil(ratelimit.CalculateDelay(d, now).Seconds()))
		hdr.Set(HeaderRetryAfter, strconv.FormatInt(secs, 10))
	}
}

func routeParams(r *http.Request) map[string]string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil || len(rctx.URLParams.Keys) == 0 {
		return nil
	}
	params := make(map[string]string, len(rctx.URLParams.Keys))
	for i, k := range rctx.URLParams.Keys {
		params[k] = rctx.URLParams.Values[i]
	}
	return params
}

// extractAPIKey reads the API key from X-API-Key or a Bearer token.
func extractAPIKey(r *http.Request) string {
	if key := r.Header.Get(HeaderAPIKey); key != "" {
		return strings.TrimSpace(key)
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

// extractIP returns the client address. Proxy headers are only honoured
// when trusted.
func extractIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	if status == 0 {
		status = http.StatusOK
	}
	if status == http.StatusNoContent || body == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError writes the {"error": "..."} body used for every failure.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponseBody{Error: message})
}

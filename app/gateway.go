// Package app provides application services that orchestrate domain logic.
package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/artpar/toolgate/domain/gateway"
	"github.com/artpar/toolgate/domain/identity"
	"github.com/artpar/toolgate/domain/ratelimit"
	"github.com/artpar/toolgate/domain/shape"
	"github.com/artpar/toolgate/domain/tier"
	"github.com/artpar/toolgate/domain/tool"
	"github.com/artpar/toolgate/domain/usage"
	"github.com/artpar/toolgate/ports"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Gateway admits requests and dispatches them to route handlers.
//
// Every request walks the same state machine:
//
//	Received -> (sandbox ? per-IP quota : Authenticating) -> Admitted | Denied
//	         -> Routed -> Shaped -> Responded
//
// Only admitted requests reach a handler, so business side effects never
// happen for rejected requests.
type Gateway struct {
	resolver *IdentityResolver
	limiter  *RateLimiter
	keySvc   *KeyService
	usage    ports.UsageRecorder

	usageStore ports.UsageStore
	tools      ports.ToolStore
	webhooks   ports.WebhookStore
	clock      ports.Clock
	idGen      ports.IDGenerator
	random     ports.Random
	logger     zerolog.Logger

	// Static configuration (requires restart)
	storeTimeout   time.Duration
	maxWebhooks    int
	adminSecret    string
	adminFailures  *rate.Limiter
	usageListLimit int

	// Dynamic configuration (hot-reloadable)
	dynamicCfg atomic.Pointer[DynamicConfig]
}

// DynamicConfig contains hot-reloadable configuration.
type DynamicConfig struct {
	Tiers        *tier.Table
	SandboxTools tool.AllowList
}

// GatewayDeps contains dependencies for Gateway.
type GatewayDeps struct {
	Keys       ports.KeyStore
	Quota      ports.QuotaStore
	Usage      ports.UsageRecorder
	UsageStore ports.UsageStore
	Tools      ports.ToolStore
	Webhooks   ports.WebhookStore
	Hasher     ports.Hasher
	Clock      ports.Clock
	IDGen      ports.IDGenerator
	Random     ports.Random
	Logger     zerolog.Logger
}

// GatewayConfig contains configuration for Gateway.
type GatewayConfig struct {
	KeyPrefix    string
	StoreTimeout time.Duration
	FailOpen     bool

	Tiers        *tier.Table
	SandboxTools []string

	MaxWebhooksPerOwner int

	// AdminSecret enables the admin API when non-empty.
	AdminSecret string
	// AdminFailureRate and AdminFailureBurst bound failed admin
	// authentication attempts per second across all callers.
	AdminFailureRate  float64
	AdminFailureBurst int
}

// Defaults for GatewayConfig.
const (
	DefaultMaxWebhooksPerOwner = 10
	DefaultAdminFailureRate    = 1.0
	DefaultAdminFailureBurst   = 5
	defaultUsageListLimit      = 1000
)

// NewGateway creates a gateway.
func NewGateway(deps GatewayDeps, cfg GatewayConfig) *Gateway {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	if cfg.MaxWebhooksPerOwner <= 0 {
		cfg.MaxWebhooksPerOwner = DefaultMaxWebhooksPerOwner
	}
	if cfg.AdminFailureRate <= 0 {
		cfg.AdminFailureRate = DefaultAdminFailureRate
	}
	if cfg.AdminFailureBurst <= 0 {
		cfg.AdminFailureBurst = DefaultAdminFailureBurst
	}
	if cfg.Tiers == nil {
		cfg.Tiers = tier.Default()
	}
	if cfg.SandboxTools == nil {
		cfg.SandboxTools = tool.DefaultSandboxTools
	}

	g := &Gateway{
		resolver: NewIdentityResolver(deps.Keys, deps.Hasher, deps.Clock, ResolverConfig{
			KeyPrefix:    cfg.KeyPrefix,
			StoreTimeout: cfg.StoreTimeout,
		}),
		limiter: NewRateLimiter(deps.Quota, deps.Clock, deps.Logger, RateLimiterConfig{
			StoreTimeout: cfg.StoreTimeout,
			FailOpen:     cfg.FailOpen,
		}),
		keySvc:         NewKeyService(deps.Keys, deps.Hasher, deps.Clock, cfg.KeyPrefix),
		usage:          deps.Usage,
		usageStore:     deps.UsageStore,
		tools:          deps.Tools,
		webhooks:       deps.Webhooks,
		clock:          deps.Clock,
		idGen:          deps.IDGen,
		random:         deps.Random,
		logger:         deps.Logger,
		storeTimeout:   cfg.StoreTimeout,
		maxWebhooks:    cfg.MaxWebhooksPerOwner,
		adminSecret:    cfg.AdminSecret,
		adminFailures:  rate.NewLimiter(rate.Limit(cfg.AdminFailureRate), cfg.AdminFailureBurst),
		usageListLimit: defaultUsageListLimit,
	}

	g.UpdateConfig(cfg.Tiers, cfg.SandboxTools)
	return g
}

// UpdateConfig swaps the hot-reloadable configuration.
// This is thread-safe and can be called while handling requests.
func (g *Gateway) UpdateConfig(tiers *tier.Table, sandboxTools []string) {
	g.dynamicCfg.Store(&DynamicConfig{
		Tiers:        tiers,
		SandboxTools: tool.NewAllowList(sandboxTools),
	})
}

// SetFailOpen switches the quota store failure policy.
func (g *Gateway) SetFailOpen(v bool) {
	g.limiter.SetFailOpen(v)
}

// Config returns the current dynamic configuration.
func (g *Gateway) Config() *DynamicConfig {
	return g.dynamicCfg.Load()
}

// Keys returns the key service.
func (g *Gateway) Keys() *KeyService {
	return g.keySvc
}

// Result represents the outcome of handling a request.
type Result struct {
	Response gateway.Response
	Error    *gateway.Error

	// Set once the caller is identified.
	Identity *identity.Identity
	// Set once the rate limiter ran, on admission and on denial.
	Decision *ratelimit.Decision
	// AuthFailure is the reason an authentication attempt failed.
	AuthFailure string
	// GateDenied is the feature that rejected the caller's tier.
	GateDenied tier.Feature
}

// Handle processes a request for route.
// This method orchestrates pure domain functions with I/O operations.
func (g *Gateway) Handle(ctx context.Context, rt Route, req gateway.Request) Result {
	dynCfg := g.Config()
	call := &Call{Request: req, Config: dynCfg}

	switch rt.Access {
	case Public:
		return g.dispatch(ctx, rt, call, Result{})

	case Admin:
		if gerr := g.authenticateAdmin(req.AdminKey); gerr != nil {
			return Result{Error: gerr, AuthFailure: "admin"}
		}
		return g.dispatch(ctx, rt, call, Result{})
	}

	// 1. Resolve identity (sandbox: PURE, key: I/O)
	var who identity.Identity
	if rt.Access == Sandbox {
		who = g.resolver.Anonymous(req.RemoteIP)
	} else {
		res, gerr := g.resolver.Resolve(ctx, req.APIKey)
		if gerr != nil {
			if gerr.Kind == gateway.KindInternal {
				g.logger.Error().Err(gerr.Err).Str("request_id", req.RequestID).Msg("key lookup failed")
			}
			return Result{Error: gerr, AuthFailure: res.Reason}
		}
		who = res.Identity
	}
	result := Result{Identity: &who}
	call.Identity = who

	policy, ok := dynCfg.Tiers.Lookup(who.Tier)
	if !ok {
		result.Error = gateway.Internal(fmt.Errorf("no policy for tier %q", who.Tier))
		return result
	}
	call.Policy = policy

	// 2. Tier gate (PURE), before quota and business logic
	if rt.Feature != "" && !policy.Allows(rt.Feature) {
		result.Error = gateFailure(dynCfg.Tiers, rt.Feature, who.Tier)
		result.GateDenied = rt.Feature
		return result
	}

	// 3. Admit (I/O)
	decision, err := g.limiter.Admit(ctx, who, policy)
	if err != nil {
		g.logger.Error().Err(err).Str("request_id", req.RequestID).Msg("quota store failed")
		result.Error = gateway.Internal(err)
		return result
	}
	result.Decision = &decision
	call.Decision = decision
	if !decision.Allowed {
		result.Error = quotaFailure(who, policy)
		return result
	}

	// 4. Record usage (async, never fails the request)
	g.usage.Record(usage.NewRecord(g.idGen.New(), who, req.Method, req.Path, req.RemoteIP, g.clock.Now()))

	// 5. Route and shape
	return g.dispatch(ctx, rt, call, result)
}

func (g *Gateway) dispatch(ctx context.Context, rt Route, call *Call, result Result) Result {
	resp, err := rt.Handler(ctx, call)
	if err != nil {
		gerr := gateway.As(err)
		if gerr.Kind == gateway.KindInternal {
			g.logger.Error().Err(gerr.Err).
				Str("route", rt.Name).
				Str("request_id", call.Request.RequestID).
				Msg("handler failed")
		}
		result.Error = gerr
		return result
	}

	shaped, err := shape.Apply(resp.Body, rt.Shape, call.Policy.FullAccess || rt.Access == Public || rt.Access == Admin)
	if err != nil {
		g.logger.Error().Err(err).Str("route", rt.Name).Msg("shape response")
		result.Error = gateway.Internal(err)
		return result
	}
	resp.Body = shaped
	result.Response = resp
	return result
}

func (g *Gateway) authenticateAdmin(credential string) *gateway.Error {
	if g.adminSecret == "" {
		return gateway.Forbidden("admin API is disabled")
	}
	if credential != "" && subtle.ConstantTimeCompare([]byte(credential), []byte(g.adminSecret)) == 1 {
		return nil
	}
	if !g.adminFailures.Allow() {
		return gateway.QuotaExceeded("too many failed admin authentication attempts")
	}
	if credential == "" {
		return gateway.Unauthenticated(gateway.MsgMissingCredential)
	}
	return gateway.Unauthenticated(gateway.MsgInvalidCredential)
}

func gateFailure(tiers *tier.Table, f tier.Feature, current tier.Tier) *gateway.Error {
	minTier, ok := tiers.MinimumTierFor(f)
	if !ok {
		return gateway.Forbidden("%s is not available on any tier", f)
	}
	return gateway.Forbidden("%s requires the %s tier or higher (current tier: %s)", f, minTier, current)
}

func quotaFailure(who identity.Identity, p tier.Policy) *gateway.Error {
	msg := fmt.Sprintf("rate limit exceeded for %s tier: %s requests per %s", p.Tier, p.Limit, p.Window)
	if who.Kind == identity.KindAnonymousIP {
		msg += " per IP"
	}
	return gateway.QuotaExceeded("%s", msg)
}

// storeCtx bounds one store call.
func (g *Gateway) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.storeTimeout)
}

// notFound maps ports.ErrNotFound to a NotFound error with msg and passes
// other errors through.
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, ports.ErrNotFound) {
		return gateway.NotFound(format, args...)
	}
	return err
}

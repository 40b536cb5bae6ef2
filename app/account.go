package app

import (
	"context"
	"time"

	"github.com/artpar/toolgate/domain/gateway"
	"github.com/artpar/toolgate/domain/ratelimit"
	"github.com/artpar/toolgate/domain/usage"
)

// UsageReport describes the caller's standing in the current window.
type UsageReport struct {
	Tier      string          `json:"tier"`
	Window    string          `json:"window"`
	Limit     ratelimit.Limit `json:"limit"`
	Used      int64           `json:"used"`
	Remaining any             `json:"remaining"` // int64, or "unlimited"
	ResetAt   time.Time       `json:"resetAt"`
	Summary   usage.Summary   `json:"summary"`
}

func (g *Gateway) usageReport(ctx context.Context, c *Call) (gateway.Response, error) {
	d, err := g.limiter.Current(ctx, c.Identity, c.Policy)
	if err != nil {
		return gateway.Response{}, err
	}

	now := g.clock.Now()
	start, end := c.Policy.Window.Start(now), c.Policy.Window.End(now)

	storeCtx, cancel := g.storeCtx(ctx)
	defer cancel()

	records, err := g.usageStore.ListByIdentity(storeCtx, c.Identity.Key, start, g.usageListLimit)
	if err != nil {
		return gateway.Response{}, err
	}

	var remaining any = d.Remaining()
	if d.Limit.IsUnbounded() {
		remaining = "unlimited"
	}

	return gateway.OK(UsageReport{
		Tier:      string(c.Policy.Tier),
		Window:    c.Policy.Window.String(),
		Limit:     d.Limit,
		Used:      d.Count,
		Remaining: remaining,
		ResetAt:   d.ResetAt,
		Summary:   usage.Aggregate(c.Identity.Key, records, start, end),
	}), nil
}

func (g *Gateway) listOwnKeys(ctx context.Context, c *Call) (gateway.Response, error) {
	storeCtx, cancel := g.storeCtx(ctx)
	defer cancel()

	keys, err := g.keySvc.List(storeCtx, c.Identity.Owner)
	if err != nil {
		return gateway.Response{}, err
	}
	return gateway.OK(listEnvelope{Data: keys, Count: len(keys)}), nil
}

// revokeOwnKey revokes one of the caller's keys. Keys of other tenants are
// indistinguishable from missing keys.
func (g *Gateway) revokeOwnKey(ctx context.Context, c *Call) (gateway.Response, error) {
	storeCtx, cancel := g.storeCtx(ctx)
	defer cancel()

	if err := g.keySvc.RevokeOwned(storeCtx, c.Identity.Owner, c.Request.Param("id")); err != nil {
		return gateway.Response{}, notFound(err, "key not found")
	}
	return gateway.Response{Status: 204}, nil
}

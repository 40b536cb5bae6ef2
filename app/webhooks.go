package app

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/artpar/toolgate/domain/gateway"
	"github.com/artpar/toolgate/domain/webhook"
	"github.com/artpar/toolgate/ports"
)

// Webhook registration bookkeeping. Delivery happens elsewhere.

func (g *Gateway) listWebhooks(ctx context.Context, c *Call) (gateway.Response, error) {
	storeCtx, cancel := g.storeCtx(ctx)
	defer cancel()

	regs, err := g.webhooks.ListByOwner(storeCtx, c.Identity.Owner)
	if err != nil {
		return gateway.Response{}, err
	}
	out := make([]webhook.Registration, 0, len(regs))
	for _, r := range regs {
		out = append(out, r.Redacted())
	}
	return gateway.OK(listEnvelope{Data: out, Count: len(out)}), nil
}

func (g *Gateway) createWebhook(ctx context.Context, c *Call) (gateway.Response, error) {
	var p webhook.CreateParams
	if err := decodeBody(c.Request.Body, &p); err != nil {
		return gateway.Response{}, err
	}

	raw, err := g.random.Bytes(webhook.SecretBytes)
	if err != nil {
		return gateway.Response{}, fmt.Errorf("generate webhook secret: %w", err)
	}
	secret := webhook.SecretPrefix + hex.EncodeToString(raw)

	reg, err := webhook.New(g.idGen.New(), c.Identity.Owner, p, secret, g.clock.Now())
	if err != nil {
		return gateway.Response{}, gateway.InvalidInput("%v", err)
	}

	storeCtx, cancel := g.storeCtx(ctx)
	defer cancel()

	if err := g.webhooks.Create(storeCtx, reg, g.maxWebhooks); err != nil {
		if errors.Is(err, ports.ErrLimitReached) {
			return gateway.Response{}, gateway.InvalidInput("webhook limit reached: at most %d registrations per account", g.maxWebhooks)
		}
		return gateway.Response{}, err
	}

	g.logger.Info().
		Str("webhook_id", reg.ID).
		Str("owner", reg.Owner).
		Str("url", reg.URL).
		Msg("webhook registered")

	// The secret is only ever returned here.
	return gateway.Created(reg), nil
}

func (g *Gateway) deleteWebhook(ctx context.Context, c *Call) (gateway.Response, error) {
	id := c.Request.Param("id")

	storeCtx, cancel := g.storeCtx(ctx)
	defer cancel()

	reg, err := g.webhooks.Get(storeCtx, id)
	if err != nil {
		return gateway.Response{}, notFound(err, "webhook not found")
	}
	if !reg.OwnedBy(c.Identity.Owner) {
		return gateway.Response{}, gateway.NotFound("webhook not found")
	}
	if err := g.webhooks.Delete(storeCtx, id); err != nil {
		return gateway.Response{}, notFound(err, "webhook not found")
	}
	return gateway.Response{Status: 204}, nil
}

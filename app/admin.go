package app

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/toolgate/domain/gateway"
	"github.com/artpar/toolgate/domain/key"
	"github.com/artpar/toolgate/domain/tier"
	"github.com/artpar/toolgate/domain/tool"
)

// CreateKeyRequest is the admin payload for issuing a key.
type CreateKeyRequest struct {
	Owner     string     `json:"owner"`
	Name      string     `json:"name"`
	Tier      string     `json:"tier"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// UpdateKeyRequest is the admin payload for changing a key's tier.
type UpdateKeyRequest struct {
	Tier string `json:"tier"`
}

func (g *Gateway) adminCreateKey(ctx context.Context, c *Call) (gateway.Response, error) {
	var req CreateKeyRequest
	if err := decodeBody(c.Request.Body, &req); err != nil {
		return gateway.Response{}, err
	}
	if req.Tier == "" {
		req.Tier = string(tier.Free)
	}
	t, err := tier.Parse(req.Tier)
	if err != nil {
		return gateway.Response{}, gateway.InvalidInput("%v", err)
	}

	storeCtx, cancel := g.storeCtx(ctx)
	defer cancel()

	issued, err := g.keySvc.Create(storeCtx, key.CreateParams{
		Owner:     req.Owner,
		Name:      req.Name,
		Tier:      t,
		ExpiresAt: req.ExpiresAt,
	})
	if errors.Is(err, ErrInvalidKeyParams) {
		return gateway.Response{}, gateway.InvalidInput("%v", err)
	}
	if err != nil {
		return gateway.Response{}, err
	}

	g.logger.Info().
		Str("key_id", issued.ID).
		Str("owner", issued.Owner).
		Str("tier", string(issued.Tier)).
		Msg("api key issued")
	return gateway.Created(issued), nil
}

func (g *Gateway) adminUpdateKey(ctx context.Context, c *Call) (gateway.Response, error) {
	var req UpdateKeyRequest
	if err := decodeBody(c.Request.Body, &req); err != nil {
		return gateway.Response{}, err
	}
	t, err := tier.Parse(req.Tier)
	if err != nil {
		return gateway.Response{}, gateway.InvalidInput("%v", err)
	}

	storeCtx, cancel := g.storeCtx(ctx)
	defer cancel()

	view, err := g.keySvc.SetTier(storeCtx, c.Request.Param("id"), t)
	if err != nil {
		return gateway.Response{}, notFound(err, "key not found")
	}
	return gateway.OK(view), nil
}

func (g *Gateway) adminRevokeKey(ctx context.Context, c *Call) (gateway.Response, error) {
	storeCtx, cancel := g.storeCtx(ctx)
	defer cancel()

	if err := g.keySvc.Revoke(storeCtx, c.Request.Param("id")); err != nil {
		return gateway.Response{}, notFound(err, "key not found")
	}
	return gateway.Response{Status: 204}, nil
}

func (g *Gateway) adminPutTool(ctx context.Context, c *Call) (gateway.Response, error) {
	var t tool.Tool
	if err := decodeBody(c.Request.Body, &t); err != nil {
		return gateway.Response{}, err
	}
	slug := tool.NormalizeSlug(c.Request.Param("slug"))
	if t.Slug != "" && tool.NormalizeSlug(t.Slug) != slug {
		return gateway.Response{}, gateway.InvalidInput("body slug %q does not match path slug %q", t.Slug, slug)
	}
	t.Slug = slug
	t.UpdatedAt = g.clock.Now()
	if err := t.Validate(); err != nil {
		return gateway.Response{}, gateway.InvalidInput("%v", err)
	}

	storeCtx, cancel := g.storeCtx(ctx)
	defer cancel()

	created, err := g.tools.Upsert(storeCtx, t)
	if err != nil {
		return gateway.Response{}, err
	}
	if created {
		return gateway.Created(t), nil
	}
	return gateway.OK(t), nil
}

func (g *Gateway) adminAppendChangelog(ctx context.Context, c *Call) (gateway.Response, error) {
	var e tool.ChangelogEntry
	if err := decodeBody(c.Request.Body, &e); err != nil {
		return gateway.Response{}, err
	}
	slug := tool.NormalizeSlug(c.Request.Param("slug"))
	if !tool.ValidSlug(slug) {
		return gateway.Response{}, gateway.InvalidInput("invalid tool slug %q", slug)
	}
	e.Slug = slug
	if e.Date.IsZero() {
		e.Date = g.clock.Now()
	}
	if err := e.Validate(); err != nil {
		return gateway.Response{}, gateway.InvalidInput("%v", err)
	}

	storeCtx, cancel := g.storeCtx(ctx)
	defer cancel()

	if err := g.tools.AppendChangelog(storeCtx, e); err != nil {
		return gateway.Response{}, notFound(err, "tool %q not found", slug)
	}
	return gateway.Created(e), nil
}

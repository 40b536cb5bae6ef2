package app

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/artpar/toolgate/domain/gateway"
	"github.com/artpar/toolgate/domain/tool"
)

// listEnvelope wraps list payloads. The response shaper keeps exactly
// these two fields for restricted tiers.
type listEnvelope struct {
	Data  any `json:"data"`
	Count int `json:"count"`
}

type itemEnvelope struct {
	Data any `json:"data"`
}

func (g *Gateway) health(ctx context.Context, c *Call) (gateway.Response, error) {
	return gateway.OK(map[string]any{
		"status": "ok",
		"time":   g.clock.Now(),
	}), nil
}

func (g *Gateway) tiers(ctx context.Context, c *Call) (gateway.Response, error) {
	return gateway.OK(c.Config.Tiers.Descriptors()), nil
}

func (g *Gateway) sandboxList(ctx context.Context, c *Call) (gateway.Response, error) {
	storeCtx, cancel := g.storeCtx(ctx)
	defer cancel()

	tools, err := g.tools.GetMany(storeCtx, c.Config.SandboxTools.Slugs())
	if err != nil {
		return gateway.Response{}, err
	}
	return gateway.OK(listEnvelope{Data: tools, Count: len(tools)}), nil
}

func (g *Gateway) sandboxGet(ctx context.Context, c *Call) (gateway.Response, error) {
	slug := tool.NormalizeSlug(c.Request.Param("slug"))
	allowed := c.Config.SandboxTools
	if !allowed.Contains(slug) {
		return gateway.Response{}, gateway.NotFound("tool %q is not available in the sandbox; available tools: %s", slug, allowed)
	}

	storeCtx, cancel := g.storeCtx(ctx)
	defer cancel()

	t, err := g.tools.Get(storeCtx, slug)
	if err != nil {
		return gateway.Response{}, notFound(err, "tool %q not found", slug)
	}
	return gateway.OK(itemEnvelope{Data: t}), nil
}

func (g *Gateway) listTools(ctx context.Context, c *Call) (gateway.Response, error) {
	q := c.Request.Query
	f := tool.Filter{Category: q.Get("category")}

	var err error
	if f.Limit, err = intParam(q.Get("limit")); err != nil {
		return gateway.Response{}, gateway.InvalidInput("limit must be an integer")
	}
	if f.Offset, err = intParam(q.Get("offset")); err != nil {
		return gateway.Response{}, gateway.InvalidInput("offset must be an integer")
	}

	storeCtx, cancel := g.storeCtx(ctx)
	defer cancel()

	tools, err := g.tools.List(storeCtx, tool.NormalizeFilter(f))
	if err != nil {
		return gateway.Response{}, err
	}
	return gateway.OK(listEnvelope{Data: tools, Count: len(tools)}), nil
}

func (g *Gateway) getTool(ctx context.Context, c *Call) (gateway.Response, error) {
	slug, err := slugParam(c)
	if err != nil {
		return gateway.Response{}, err
	}

	storeCtx, cancel := g.storeCtx(ctx)
	defer cancel()

	t, err := g.tools.Get(storeCtx, slug)
	if err != nil {
		return gateway.Response{}, notFound(err, "tool %q not found", slug)
	}
	return gateway.OK(itemEnvelope{Data: t}), nil
}

func (g *Gateway) changelog(ctx context.Context, c *Call) (gateway.Response, error) {
	slug, err := slugParam(c)
	if err != nil {
		return gateway.Response{}, err
	}

	storeCtx, cancel := g.storeCtx(ctx)
	defer cancel()

	entries, err := g.tools.Changelog(storeCtx, slug)
	if err != nil {
		return gateway.Response{}, notFound(err, "tool %q not found", slug)
	}
	return gateway.OK(listEnvelope{Data: entries, Count: len(entries)}), nil
}

func (g *Gateway) compare(ctx context.Context, c *Call) (gateway.Response, error) {
	slugs, err := tool.ParseSlugs(c.Request.Query.Get("tools"))
	if err != nil {
		return gateway.Response{}, gateway.InvalidInput("%v", err)
	}

	storeCtx, cancel := g.storeCtx(ctx)
	defer cancel()

	tools, err := g.tools.GetMany(storeCtx, slugs)
	if err != nil {
		return gateway.Response{}, err
	}
	if len(tools) != len(slugs) {
		found := make(map[string]bool, len(tools))
		for _, t := range tools {
			found[t.Slug] = true
		}
		var missing []string
		for _, s := range slugs {
			if !found[s] {
				missing = append(missing, s)
			}
		}
		return gateway.Response{}, gateway.NotFound("tools not found: %s", strings.Join(missing, ", "))
	}
	return gateway.OK(listEnvelope{Data: tools, Count: len(tools)}), nil
}

func slugParam(c *Call) (string, error) {
	slug := tool.NormalizeSlug(c.Request.Param("slug"))
	if !tool.ValidSlug(slug) {
		return "", gateway.InvalidInput("invalid tool slug %q", slug)
	}
	return slug, nil
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// decodeBody strictly decodes a JSON request body into v.
func decodeBody(body []byte, v any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return gateway.InvalidInput("request body is required")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return gateway.InvalidInput("invalid JSON body: %v", err)
	}
	return nil
}

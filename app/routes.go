package app

import (
	"context"

	"github.com/artpar/toolgate/domain/gateway"
	"github.com/artpar/toolgate/domain/identity"
	"github.com/artpar/toolgate/domain/ratelimit"
	"github.com/artpar/toolgate/domain/shape"
	"github.com/artpar/toolgate/domain/tier"
)

// Access is the authentication class of a route.
type Access int

const (
	// Public routes need no credential and consume no quota.
	Public Access = iota
	// Sandbox routes are anonymous and metered per source IP.
	Sandbox
	// Key routes need an API key and are metered per key.
	Key
	// Admin routes need the shared admin secret.
	Admin
)

func (a Access) String() string {
	switch a {
	case Sandbox:
		return "sandbox"
	case Key:
		return "key"
	case Admin:
		return "admin"
	default:
		return "public"
	}
}

// Call is what a route handler sees of an admitted request.
type Call struct {
	Request  gateway.Request
	Identity identity.Identity
	Policy   tier.Policy
	Decision ratelimit.Decision
	Config   *DynamicConfig
}

// HandlerFunc is the business logic behind a route.
type HandlerFunc func(ctx context.Context, c *Call) (gateway.Response, error)

// Route is one entry of the route table.
type Route struct {
	Name    string
	Method  string
	Pattern string // chi pattern, {name} for path parameters
	Access  Access
	Feature tier.Feature // empty = no tier gate
	Shape   shape.Rule
	Handler HandlerFunc
}

// Routes returns the gateway's route table.
func (g *Gateway) Routes() []Route {
	return []Route{
		{Name: "health", Method: "GET", Pattern: "/api/health", Access: Public, Handler: g.health},
		{Name: "tiers", Method: "GET", Pattern: "/api/tiers", Access: Public, Handler: g.tiers},

		{Name: "sandbox.tools.list", Method: "GET", Pattern: "/api/sandbox/tools", Access: Sandbox, Shape: shape.ToolList, Handler: g.sandboxList},
		{Name: "sandbox.tools.get", Method: "GET", Pattern: "/api/sandbox/tools/{slug}", Access: Sandbox, Shape: shape.ToolDetail, Handler: g.sandboxGet},

		{Name: "tools.list", Method: "GET", Pattern: "/api/tools", Access: Key, Shape: shape.ToolList, Handler: g.listTools},
		{Name: "tools.get", Method: "GET", Pattern: "/api/tools/{slug}", Access: Key, Shape: shape.ToolDetail, Handler: g.getTool},
		{Name: "tools.changelog", Method: "GET", Pattern: "/api/tools/{slug}/changelog", Access: Key, Feature: tier.FeatureChangelog, Handler: g.changelog},
		{Name: "compare", Method: "GET", Pattern: "/api/compare", Access: Key, Feature: tier.FeatureComparison, Handler: g.compare},

		{Name: "webhooks.list", Method: "GET", Pattern: "/api/webhooks", Access: Key, Feature: tier.FeatureWebhooks, Handler: g.listWebhooks},
		{Name: "webhooks.create", Method: "POST", Pattern: "/api/webhooks", Access: Key, Feature: tier.FeatureWebhooks, Handler: g.createWebhook},
		{Name: "webhooks.delete", Method: "DELETE", Pattern: "/api/webhooks/{id}", Access: Key, Feature: tier.FeatureWebhooks, Handler: g.deleteWebhook},

		{Name: "usage", Method: "GET", Pattern: "/api/usage", Access: Key, Handler: g.usageReport},
		{Name: "keys.list", Method: "GET", Pattern: "/api/keys", Access: Key, Handler: g.listOwnKeys},
		{Name: "keys.delete", Method: "DELETE", Pattern: "/api/keys/{id}", Access: Key, Handler: g.revokeOwnKey},

		{Name: "admin.keys.create", Method: "POST", Pattern: "/api/admin/keys", Access: Admin, Handler: g.adminCreateKey},
		{Name: "admin.keys.update", Method: "PATCH", Pattern: "/api/admin/keys/{id}", Access: Admin, Handler: g.adminUpdateKey},
		{Name: "admin.keys.revoke", Method: "DELETE", Pattern: "/api/admin/keys/{id}", Access: Admin, Handler: g.adminRevokeKey},
		{Name: "admin.tools.put", Method: "PUT", Pattern: "/api/admin/tools/{slug}", Access: Admin, Handler: g.adminPutTool},
		{Name: "admin.tools.changelog", Method: "POST", Pattern: "/api/admin/tools/{slug}/changelog", Access: Admin, Handler: g.adminAppendChangelog},
	}
}

package app_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/artpar/toolgate/adapters/random"
	"github.com/artpar/toolgate/app"
	"github.com/artpar/toolgate/domain/gateway"
	"github.com/artpar/toolgate/domain/tier"
)

func TestWebhooks(t *testing.T) {
	h := newHarness(t, withConfig(func(c *app.GatewayConfig) { c.MaxWebhooksPerOwner = 2 }))
	owner := h.issue(t, "tenant-a", tier.Professional)
	other := h.issue(t, "tenant-b", tier.Enterprise)

	create := func(k app.IssuedKey, body string) app.Result {
		return h.do(t, "webhooks.create", gateway.Request{APIKey: k.RawKey, Body: []byte(body)})
	}

	res := create(owner, `{"url":"https://example.com/hook","events":["tool.updated","tool.created","tool.updated"]}`)
	wantStatus(t, res, 201)
	reg := bodyJSON(t, res.Response.Body)
	// The harness entropy source counts up from 0x01.
	if want := "whsec_0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20"; reg["secret"] != want {
		t.Errorf("secret = %v, want %s", reg["secret"], want)
	}
	if events := reg["events"].([]any); len(events) != 2 || events[0] != "tool.created" {
		t.Errorf("events = %v, want de-duplicated sorted set", events)
	}
	id := reg["id"].(string)

	invalid := []struct {
		name string
		body string
	}{
		{"empty", ``},
		{"malformed", `{"url":`},
		{"unknown field", `{"url":"https://example.com","events":["tool.created"],"extra":1}`},
		{"relative url", `{"url":"/hook","events":["tool.created"]}`},
		{"ftp url", `{"url":"ftp://example.com/hook","events":["tool.created"]}`},
		{"no events", `{"url":"https://example.com/hook","events":[]}`},
		{"unknown event", `{"url":"https://example.com/hook","events":["tool.deleted"]}`},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			wantStatus(t, create(owner, tt.body), 400)
		})
	}

	wantStatus(t, create(owner, `{"url":"https://example.com/2","events":["review.published"]}`), 201)
	res = create(owner, `{"url":"https://example.com/3","events":["review.published"]}`)
	wantStatus(t, res, 400)
	if !strings.Contains(res.Error.Message, "limit") {
		t.Errorf("message = %q", res.Error.Message)
	}

	res = h.do(t, "webhooks.list", gateway.Request{APIKey: owner.RawKey})
	wantStatus(t, res, 200)
	list := bodyJSON(t, res.Response.Body)
	if list["count"] != float64(2) {
		t.Errorf("count = %v", list["count"])
	}
	for _, el := range list["data"].([]any) {
		if _, ok := el.(map[string]any)["secret"]; ok {
			t.Error("listing must not reveal secrets")
		}
	}

	res = h.do(t, "webhooks.list", gateway.Request{APIKey: other.RawKey})
	if bodyJSON(t, res.Response.Body)["count"] != float64(0) {
		t.Error("registrations must be scoped to their owner")
	}

	res = h.do(t, "webhooks.delete", gateway.Request{APIKey: other.RawKey, Params: map[string]string{"id": id}})
	wantStatus(t, res, 404)

	res = h.do(t, "webhooks.delete", gateway.Request{APIKey: owner.RawKey, Params: map[string]string{"id": id}})
	wantStatus(t, res, 204)
	res = h.do(t, "webhooks.delete", gateway.Request{APIKey: owner.RawKey, Params: map[string]string{"id": id}})
	wantStatus(t, res, 404)
}

func TestCompare(t *testing.T) {
	h := newHarness(t)
	k := h.issue(t, "acme", tier.Professional)

	tests := []struct {
		query  string
		status int
		count  int
	}{
		{"claude,chatgpt", 200, 2},
		{"claude,chatgpt,gemini,cursor", 200, 4},
		{"claude", 400, 0},
		{"a,b,c,d,e,f", 400, 0},
		{"claude,nonexistent", 404, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			res := h.do(t, "compare", gateway.Request{
				APIKey: k.RawKey,
				Query:  map[string][]string{"tools": {tt.query}},
			})
			wantStatus(t, res, tt.status)
			if tt.status == 200 {
				if got := bodyJSON(t, res.Response.Body)["count"]; got != float64(tt.count) {
					t.Errorf("count = %v, want %d", got, tt.count)
				}
			}
		})
	}
}

func TestChangelog(t *testing.T) {
	h := newHarness(t)
	k := h.issue(t, "acme", tier.Professional)

	res := h.do(t, "admin.tools.changelog", gateway.Request{
		AdminKey: "s3cret",
		Params:   map[string]string{"slug": "claude"},
		Body:     []byte(`{"version":"v4","summary":"rescored","changes":["reasoning +0.3"]}`),
	})
	wantStatus(t, res, 201)

	res = h.do(t, "tools.changelog", gateway.Request{APIKey: k.RawKey, Params: map[string]string{"slug": "claude"}})
	wantStatus(t, res, 200)
	if bodyJSON(t, res.Response.Body)["count"] != float64(1) {
		t.Errorf("body = %v", res.Response.Body)
	}

	res = h.do(t, "tools.changelog", gateway.Request{APIKey: k.RawKey, Params: map[string]string{"slug": "missing"}})
	wantStatus(t, res, 404)

	res = h.do(t, "admin.tools.changelog", gateway.Request{
		AdminKey: "s3cret",
		Params:   map[string]string{"slug": "missing"},
		Body:     []byte(`{"version":"v1","summary":"x"}`),
	})
	wantStatus(t, res, 404)
}

func TestListTools_Validation(t *testing.T) {
	h := newHarness(t)
	k := h.issue(t, "acme", tier.Professional)

	res := h.do(t, "tools.list", gateway.Request{APIKey: k.RawKey, Query: map[string][]string{"limit": {"ten"}}})
	wantStatus(t, res, 400)

	res = h.do(t, "tools.list", gateway.Request{APIKey: k.RawKey, Query: map[string][]string{"limit": {"2"}, "offset": {"1"}}})
	wantStatus(t, res, 200)
	if bodyJSON(t, res.Response.Body)["count"] != float64(2) {
		t.Errorf("body = %v", res.Response.Body)
	}

	res = h.do(t, "tools.get", gateway.Request{APIKey: k.RawKey, Params: map[string]string{"slug": "../etc"}})
	wantStatus(t, res, 400)
	res = h.do(t, "tools.get", gateway.Request{APIKey: k.RawKey, Params: map[string]string{"slug": "nope"}})
	wantStatus(t, res, 404)
}

func TestUsageReport(t *testing.T) {
	h := newHarness(t)
	k := h.issue(t, "acme", tier.Free)

	for i := 0; i < 3; i++ {
		h.do(t, "tools.list", gateway.Request{APIKey: k.RawKey, Path: "/api/tools"})
	}

	res := h.do(t, "usage", gateway.Request{APIKey: k.RawKey, Path: "/api/usage"})
	wantStatus(t, res, 200)
	body := bodyJSON(t, res.Response.Body)

	if body["used"] != float64(4) || body["remaining"] != float64(96) || body["limit"] != float64(100) {
		t.Errorf("report = %v", body)
	}
	if body["tier"] != "free" || body["window"] != "day" {
		t.Errorf("report = %v", body)
	}
	summary := body["summary"].(map[string]any)
	if summary["requests"] != float64(4) {
		t.Errorf("summary = %v", summary)
	}
	if summary["byPath"].(map[string]any)["GET /api/tools"] != float64(3) {
		t.Errorf("byPath = %v", summary["byPath"])
	}
}

func TestAdminAuthentication(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		h := newHarness(t, withConfig(func(c *app.GatewayConfig) { c.AdminSecret = "" }))
		res := h.do(t, "admin.keys.create", gateway.Request{AdminKey: "anything"})
		wantStatus(t, res, 403)
	})

	t.Run("missing and wrong", func(t *testing.T) {
		h := newHarness(t)
		res := h.do(t, "admin.keys.create", gateway.Request{})
		wantStatus(t, res, 401)
		if res.Error.Message != gateway.MsgMissingCredential {
			t.Errorf("message = %q", res.Error.Message)
		}
		res = h.do(t, "admin.keys.create", gateway.Request{AdminKey: "guess"})
		wantStatus(t, res, 401)
	})

	t.Run("failures are damped", func(t *testing.T) {
		h := newHarness(t, withConfig(func(c *app.GatewayConfig) {
			c.AdminFailureRate = 0.001
			c.AdminFailureBurst = 3
		}))
		for i := 0; i < 3; i++ {
			wantStatus(t, h.do(t, "admin.keys.revoke", gateway.Request{AdminKey: fmt.Sprint("guess", i)}), 401)
		}
		wantStatus(t, h.do(t, "admin.keys.revoke", gateway.Request{AdminKey: "guess"}), 429)

		// The right secret is never damped.
		res := h.do(t, "admin.keys.revoke", gateway.Request{AdminKey: "s3cret", Params: map[string]string{"id": "key_missing"}})
		wantStatus(t, res, 404)
	})
}

func TestAdminKeyLifecycle(t *testing.T) {
	h := newHarness(t)
	admin := func(route, id, body string) app.Result {
		return h.do(t, route, gateway.Request{AdminKey: "s3cret", Params: map[string]string{"id": id}, Body: []byte(body)})
	}

	res := admin("admin.keys.create", "", `{"owner":"acme","name":"ci","tier":"free"}`)
	wantStatus(t, res, 201)
	created := bodyJSON(t, res.Response.Body)
	raw := created["key"].(string)
	id := created["id"].(string)
	if _, ok := created["hash"]; ok {
		t.Error("hash must never be returned")
	}

	wantStatus(t, h.do(t, "compare", gateway.Request{APIKey: raw, Query: map[string][]string{"tools": {"claude,chatgpt"}}}), 403)

	res = admin("admin.keys.update", id, `{"tier":"professional"}`)
	wantStatus(t, res, 200)
	if bodyJSON(t, res.Response.Body)["tier"] != "professional" {
		t.Errorf("body = %v", res.Response.Body)
	}
	wantStatus(t, h.do(t, "compare", gateway.Request{APIKey: raw, Query: map[string][]string{"tools": {"claude,chatgpt"}}}), 200)

	wantStatus(t, admin("admin.keys.update", id, `{"tier":"sandbox"}`), 400)
	wantStatus(t, admin("admin.keys.update", "key_missing", `{"tier":"free"}`), 404)

	invalid := []string{
		`{"name":"no owner","tier":"free"}`,
		`{"owner":"acme","tier":"platinum"}`,
		fmt.Sprintf(`{"owner":"acme","expiresAt":%q}`, start.Add(-time.Hour).Format(time.RFC3339)),
	}
	for _, body := range invalid {
		wantStatus(t, admin("admin.keys.create", "", body), 400)
	}

	wantStatus(t, admin("admin.keys.revoke", id, ""), 204)
	wantStatus(t, h.do(t, "tools.list", gateway.Request{APIKey: raw}), 401)
}

func TestAdminPutTool(t *testing.T) {
	h := newHarness(t)
	put := func(slug, body string) app.Result {
		return h.do(t, "admin.tools.put", gateway.Request{AdminKey: "s3cret", Params: map[string]string{"slug": slug}, Body: []byte(body)})
	}

	wantStatus(t, put("windsurf", `{"name":"Windsurf","category":"ide","overallScore":7.5}`), 201)
	wantStatus(t, put("windsurf", `{"name":"Windsurf","category":"ide","overallScore":7.9}`), 200)
	wantStatus(t, put("windsurf", `{"slug":"other","name":"Windsurf"}`), 400)
	wantStatus(t, put("windsurf", `{"name":"Windsurf","overallScore":12}`), 400)

	got, err := h.tools.Get(context.Background(), "windsurf")
	if err != nil || got.OverallScore != 7.9 || !got.UpdatedAt.Equal(start) {
		t.Errorf("stored tool = %+v, %v", got, err)
	}
}

func TestWebhooks_EntropyFailure(t *testing.T) {
	src := random.NewSequence(1)
	h := newHarness(t, withRandom(src))
	owner := h.issue(t, "tenant-a", tier.Professional)
	src.Fail(errors.New("entropy exhausted"))

	res := h.do(t, "webhooks.create", gateway.Request{
		APIKey: owner.RawKey,
		Body:   []byte(`{"url":"https://example.com/hook","events":["tool.created"]}`),
	})
	wantStatus(t, res, 500)
	if strings.Contains(res.Error.Message, "entropy") {
		t.Errorf("internal detail leaked: %q", res.Error.Message)
	}
}

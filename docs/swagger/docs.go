// Package swagger registers the OpenAPI document served at /swagger/.
// Keep it in step with app.Gateway.Routes.
package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "securityDefinitions": {
        "ApiKeyAuth": {"type": "apiKey", "name": "X-API-Key", "in": "header"},
        "AdminKeyAuth": {"type": "apiKey", "name": "X-Admin-Key", "in": "header"}
    },
    "paths": {
        "/api/health": {
            "get": {"tags": ["public"], "summary": "Liveness", "responses": {"200": {"description": "OK"}}}
        },
        "/api/tiers": {
            "get": {"tags": ["public"], "summary": "Tier descriptors", "responses": {"200": {"description": "Limits, windows and features per tier"}}}
        },
        "/api/sandbox/tools": {
            "get": {
                "tags": ["sandbox"],
                "summary": "List sandbox tools",
                "description": "Anonymous, 10 requests per UTC day per IP. Restricted field set.",
                "responses": {
                    "200": {"description": "{data, count}"},
                    "429": {"description": "Quota exceeded", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        },
        "/api/sandbox/tools/{slug}": {
            "get": {
                "tags": ["sandbox"],
                "summary": "Get a sandbox tool",
                "parameters": [{"type": "string", "name": "slug", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "{data}"},
                    "404": {"description": "Not on the sandbox allow-list", "schema": {"$ref": "#/definitions/Error"}},
                    "429": {"description": "Quota exceeded", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        },
        "/api/tools": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "tags": ["tools"],
                "summary": "List tools",
                "parameters": [
                    {"type": "string", "name": "category", "in": "query"},
                    {"type": "integer", "name": "limit", "in": "query"},
                    {"type": "integer", "name": "offset", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "{data, count}"},
                    "401": {"description": "Unauthenticated", "schema": {"$ref": "#/definitions/Error"}},
                    "429": {"description": "Quota exceeded", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        },
        "/api/tools/{slug}": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "tags": ["tools"],
                "summary": "Get a tool",
                "parameters": [{"type": "string", "name": "slug", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "{data}"},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        },
        "/api/tools/{slug}/changelog": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "tags": ["tools"],
                "summary": "Tool changelog (professional and above)",
                "parameters": [{"type": "string", "name": "slug", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "{data, count}"},
                    "403": {"description": "Tier too low", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        },
        "/api/compare": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "tags": ["tools"],
                "summary": "Compare 2 to 5 tools (professional and above)",
                "parameters": [{"type": "string", "name": "tools", "in": "query", "required": true, "description": "comma-separated slugs"}],
                "responses": {
                    "200": {"description": "{data, count}"},
                    "400": {"description": "Invalid slug list", "schema": {"$ref": "#/definitions/Error"}},
                    "403": {"description": "Tier too low", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        },
        "/api/webhooks": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "tags": ["webhooks"],
                "summary": "List webhook registrations",
                "responses": {"200": {"description": "{data, count}"}, "403": {"description": "Tier too low", "schema": {"$ref": "#/definitions/Error"}}}
            },
            "post": {
                "security": [{"ApiKeyAuth": []}],
                "tags": ["webhooks"],
                "summary": "Register a webhook",
                "parameters": [{"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/WebhookCreate"}}],
                "responses": {"201": {"description": "Registration including its signing secret"}, "400": {"description": "Invalid registration", "schema": {"$ref": "#/definitions/Error"}}}
            }
        },
        "/api/webhooks/{id}": {
            "delete": {
                "security": [{"ApiKeyAuth": []}],
                "tags": ["webhooks"],
                "summary": "Delete an owned webhook",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"204": {"description": "Deleted"}, "404": {"description": "Not found", "schema": {"$ref": "#/definitions/Error"}}}
            }
        },
        "/api/usage": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "tags": ["account"],
                "summary": "Usage in the current window",
                "responses": {"200": {"description": "Tier, limit, used, remaining, reset time and per-path summary"}}
            }
        },
        "/api/keys": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "tags": ["account"],
                "summary": "List the caller's keys",
                "responses": {"200": {"description": "{data, count}"}}
            }
        },
        "/api/keys/{id}": {
            "delete": {
                "security": [{"ApiKeyAuth": []}],
                "tags": ["account"],
                "summary": "Revoke one of the caller's keys",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"204": {"description": "Revoked"}, "404": {"description": "Not found", "schema": {"$ref": "#/definitions/Error"}}}
            }
        },
        "/api/admin/keys": {
            "post": {
                "security": [{"AdminKeyAuth": []}],
                "tags": ["admin"],
                "summary": "Issue an API key",
                "parameters": [{"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/KeyCreate"}}],
                "responses": {"201": {"description": "Key record including the raw key, shown once"}}
            }
        },
        "/api/admin/keys/{id}": {
            "patch": {
                "security": [{"AdminKeyAuth": []}],
                "tags": ["admin"],
                "summary": "Change a key's tier",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/KeyUpdate"}}
                ],
                "responses": {"200": {"description": "Updated key"}}
            },
            "delete": {
                "security": [{"AdminKeyAuth": []}],
                "tags": ["admin"],
                "summary": "Revoke a key",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"204": {"description": "Revoked"}}
            }
        },
        "/api/admin/tools/{slug}": {
            "put": {
                "security": [{"AdminKeyAuth": []}],
                "tags": ["admin"],
                "summary": "Create or replace a tool",
                "parameters": [{"type": "string", "name": "slug", "in": "path", "required": true}],
                "responses": {"200": {"description": "Replaced"}, "201": {"description": "Created"}}
            }
        },
        "/api/admin/tools/{slug}/changelog": {
            "post": {
                "security": [{"AdminKeyAuth": []}],
                "tags": ["admin"],
                "summary": "Append a changelog entry",
                "parameters": [{"type": "string", "name": "slug", "in": "path", "required": true}],
                "responses": {"201": {"description": "Appended"}, "404": {"description": "Unknown tool", "schema": {"$ref": "#/definitions/Error"}}}
            }
        }
    },
    "definitions": {
        "Error": {
            "type": "object",
            "properties": {"error": {"type": "string", "example": "rate limit exceeded for free tier: 100 requests per day"}}
        },
        "WebhookCreate": {
            "type": "object",
            "properties": {
                "url": {"type": "string", "example": "https://example.com/hooks/toolgate"},
                "events": {"type": "array", "items": {"type": "string", "enum": ["tool.created", "tool.updated", "review.published", "certification.changed"]}}
            }
        },
        "KeyCreate": {
            "type": "object",
            "properties": {
                "owner": {"type": "string"},
                "name": {"type": "string"},
                "tier": {"type": "string", "enum": ["free", "professional", "enterprise"]},
                "expiresAt": {"type": "string", "format": "date-time"}
            }
        },
        "KeyUpdate": {
            "type": "object",
            "properties": {"tier": {"type": "string", "enum": ["free", "professional", "enterprise"]}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "toolgate API",
	Description:      "Tiered admission gateway for tool intelligence data.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

package service

import (
	"fmt"
	"html"
	"net/http"
	"sync"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

type obj = map[string]any

var (
	openAPIOnce sync.Once
	openAPIJSON []byte
	openAPIYAML []byte
	openAPIErr  error
)

func ref(name string) obj { return obj{"$ref": "#/components/schemas/" + name} }

func jsonBody(schema obj, description string) obj {
	return obj{
		"description": description,
		"content":     obj{"application/json": obj{"schema": schema}},
	}
}

func numericValueSchema() obj {
	return obj{
		"type": "object",
		"properties": obj{
			"value":    obj{"type": "number", "default": 0},
			"currency": obj{"type": "string", "default": "USD"},
		},
	}
}

func openAPIDocument() obj {
	errorResp := func(d string) obj { return jsonBody(ref("Error"), d) }
	secured := []any{obj{"bearerAuth": []any{}}}

	return obj{
		"openapi": "3.0.3",
		"info": obj{
			"title":   serviceName,
			"version": serviceVersion,
			"description": "REST API over the Interactive Brokers Gateway.\n\n" +
				"1. Get a JWT: `POST /auth/token` with username/password\n" +
				"2. Send it as `Authorization: Bearer <token>`",
		},
		"paths": obj{
			"/health": obj{"get": obj{
				"tags":    []any{"Health"},
				"summary": "Gateway connection health (public)",
				"responses": obj{
					"200": jsonBody(ref("Health"), "Connected and account data ready"),
					"503": jsonBody(ref("Health"), "Not connected or account data not ready"),
				},
			}},
			"/auth/token": obj{"post": obj{
				"tags":    []any{"Authentication"},
				"summary": "Exchange username and password for a bearer token",
				"requestBody": obj{
					"required": true,
					"content": obj{"application/x-www-form-urlencoded": obj{"schema": obj{
						"type":     "object",
						"required": []any{"username", "password"},
						"properties": obj{
							"username": obj{"type": "string"},
							"password": obj{"type": "string", "format": "password"},
						},
					}}},
				},
				"responses": obj{
					"200": jsonBody(ref("Token"), "Token issued"),
					"401": errorResp("Incorrect username or password"),
				},
			}},
			"/account/balance": obj{"get": obj{
				"tags":     []any{"Account"},
				"summary":  "Account summary, cash balances and positions",
				"security": secured,
				"responses": obj{
					"200": jsonBody(ref("Balance"), "Account balance"),
					"401": errorResp("Not authenticated"),
					"503": errorResp("Not connected to IB Gateway"),
				},
			}},
			"/account/summary": obj{"get": obj{
				"tags":     []any{"Account"},
				"summary":  "Key account metrics as numbers",
				"security": secured,
				"responses": obj{
					"200": jsonBody(ref("Summary"), "Account summary"),
					"401": errorResp("Not authenticated"),
					"503": errorResp("Not connected to IB Gateway"),
				},
			}},
			"/gateway/status": obj{"get": obj{
				"tags":     []any{"Gateway"},
				"summary":  "Connection state including the last gateway error",
				"security": secured,
				"responses": obj{
					"200": jsonBody(ref("GatewayStatus"), "Connection status"),
					"401": errorResp("Not authenticated"),
				},
			}},
		},
		"components": obj{
			"securitySchemes": obj{
				"bearerAuth": obj{"type": "http", "scheme": "bearer", "bearerFormat": "JWT"},
			},
			"schemas": obj{
				"Error": obj{"type": "object", "properties": obj{
					"detail":         obj{"type": "string"},
					"correlation_id": obj{"type": "string", "format": "uuid"},
				}},
				"Token": obj{"type": "object", "properties": obj{
					"access_token": obj{"type": "string"},
					"token_type":   obj{"type": "string", "example": "bearer"},
					"expires_in":   obj{"type": "integer"},
				}},
				"Health": obj{"type": "object", "properties": obj{
					"status":          obj{"type": "string", "enum": []any{healthHealthy, healthDegraded, healthUnhealthy}},
					"connected":       obj{"type": "boolean"},
					"account_ready":   obj{"type": "boolean"},
					"account_id":      obj{"type": "string", "nullable": true},
					"trading_mode":    obj{"type": "string", "enum": []any{"paper", "live"}},
					"gateway_host":    obj{"type": "string"},
					"gateway_port":    obj{"type": "integer"},
					"last_error_code": obj{"type": "integer", "nullable": true},
				}},
				"AccountValue": obj{"type": "object", "properties": obj{
					"value":    obj{"type": "string"},
					"currency": obj{"type": "string"},
				}},
				"Position": obj{"type": "object", "properties": obj{
					"symbol":        obj{"type": "string"},
					"secType":       obj{"type": "string"},
					"exchange":      obj{"type": "string"},
					"currency":      obj{"type": "string"},
					"position":      obj{"type": "number"},
					"marketPrice":   obj{"type": "number"},
					"marketValue":   obj{"type": "number"},
					"averageCost":   obj{"type": "number"},
					"unrealizedPNL": obj{"type": "number"},
					"realizedPNL":   obj{"type": "number"},
				}},
				"Balance": obj{"type": "object", "properties": obj{
					"account_id":    obj{"type": "string"},
					"last_update":   obj{"type": "string"},
					"connected":     obj{"type": "boolean"},
					"trading_mode":  obj{"type": "string"},
					"summary":       obj{"type": "object", "additionalProperties": ref("AccountValue")},
					"cash_balances": obj{"type": "object", "additionalProperties": obj{"type": "string"}},
					"positions":     obj{"type": "array", "items": ref("Position")},
				}},
				"Summary": obj{"type": "object", "properties": obj{
					"account_id":       obj{"type": "string"},
					"trading_mode":     obj{"type": "string"},
					"last_update":      obj{"type": "string"},
					"net_liquidation":  numericValueSchema(),
					"total_cash_value": numericValueSchema(),
					"buying_power":     numericValueSchema(),
					"available_funds":  numericValueSchema(),
					"unrealized_pnl":   numericValueSchema(),
					"realized_pnl":     numericValueSchema(),
					"position_count":   obj{"type": "integer"},
				}},
				"GatewayStatus": obj{"type": "object", "properties": obj{
					"state":           obj{"type": "string", "enum": []any{"idle", "connecting", "connected", "connection_lost", "disconnecting"}},
					"connected":       obj{"type": "boolean"},
					"account_ready":   obj{"type": "boolean"},
					"account_id":      obj{"type": "string", "nullable": true},
					"trading_mode":    obj{"type": "string"},
					"gateway_host":    obj{"type": "string"},
					"gateway_port":    obj{"type": "integer"},
					"last_error":      obj{"type": "string", "nullable": true},
					"last_error_code": obj{"type": "integer", "nullable": true},
					"error_count":     obj{"type": "integer"},
				}},
			},
		},
	}
}

func renderOpenAPI() ([]byte, []byte, error) {
	openAPIOnce.Do(func() {
		doc := openAPIDocument()
		if openAPIJSON, openAPIErr = sonic.Marshal(doc); openAPIErr != nil {
			return
		}
		openAPIYAML, openAPIErr = yaml.Marshal(doc)
	})
	return openAPIJSON, openAPIYAML, openAPIErr
}

func (s *Server) serveOpenAPI(w http.ResponseWriter, r *http.Request, yamlFormat bool) {
	js, ym, err := renderOpenAPI()
	if err != nil {
		s.log.Error("render openapi", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
		s.writeError(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}
	if yamlFormat {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(ym)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(js)
}

func (s *Server) handleOpenAPIJSON(w http.ResponseWriter, r *http.Request) { s.serveOpenAPI(w, r, false) }
func (s *Server) handleOpenAPIYAML(w http.ResponseWriter, r *http.Request) { s.serveOpenAPI(w, r, true) }

const swaggerPage = `<!DOCTYPE html>
<html>
<head>
<title>%s - Swagger UI</title>
<link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
<script>
SwaggerUIBundle({url: "/openapi.json", dom_id: "#swagger-ui"});
</script>
</body>
</html>
`

// handleDocs serves Swagger UI to holders of a valid token, passed as the
// token query parameter since browsers cannot set the header.
func (s *Server) handleDocs(w http.ResponseWriter, r *http.Request) {
	if _, err := s.auth.Verify(r.URL.Query().Get("token")); err != nil {
		s.writeError(w, r, http.StatusUnauthorized, "Invalid or expired token. Get a token from POST /auth/token")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprintf(w, swaggerPage, html.EscapeString(serviceName))
}

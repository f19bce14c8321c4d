package api

import "net/http"

// openAPIDoc is the hand-maintained API description served to the swagger
// UI at /docs/.
const openAPIDoc = `{
  "swagger": "2.0",
  "info": {"title": "Chatterly client API", "version": "1.0"},
  "basePath": "/",
  "paths": {
    "/healthz": {"get": {"summary": "Liveness check", "responses": {"200": {"description": "ok"}}}},
    "/v1/session": {
      "get": {"summary": "Current session", "responses": {"200": {"description": "session"}, "401": {"description": "not signed in"}}},
      "post": {"summary": "Install identity from the external provider", "responses": {"200": {"description": "session"}}},
      "delete": {"summary": "Sign out", "responses": {"204": {"description": "signed out"}}}
    },
    "/v1/channels": {"get": {"summary": "List the account's channels, newest activity first", "responses": {"200": {"description": "channels"}}}},
    "/v1/channels/open": {"post": {"summary": "Find or create the direct channel with an account", "responses": {"200": {"description": "channel"}}}},
    "/v1/channels/{id}/messages": {"get": {"summary": "Open a channel: load history and switch the live feed", "responses": {"200": {"description": "messages"}}}},
    "/v1/messages": {"post": {"summary": "Send a text message (accepted; feedback via /v1/live)", "responses": {"202": {"description": "accepted"}}}},
    "/v1/uploads": {"post": {"summary": "Upload a file and send it as an attachment", "responses": {"202": {"description": "accepted"}}}},
    "/v1/accounts/search": {"get": {"summary": "Search accounts by display name, excluding self", "responses": {"200": {"description": "accounts"}}}},
    "/v1/live": {"get": {"summary": "WebSocket stream of store events and notices", "responses": {"101": {"description": "switching protocols"}}}}
  }
}`

func (s *server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(openAPIDoc))
}

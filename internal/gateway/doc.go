// Package gateway wires the chat gateway's components and serves them over HTTP.
//
// # Gateway
//
// New builds every component from the configuration:
//
//	store      (sqlite or postgres through sqlx)
//	provider   (resty client for the messaging provider)
//	realtime   (SSE hub)
//	media      (optional blob store)
//	conversation service
//
// Run serves until the context is canceled, then shuts down with the
// configured timeout.
//
// # HTTP API
//
// Routes are registered on a gorilla/mux router. Every route passes through a
// recover and request-logging chain; /api routes additionally require an
// operator identity.
//
//	POST  {webhook.path}                          provider webhook
//	GET   /api/conversations                      list (session, limit, local)
//	POST  /api/conversations                      create
//	GET   /api/conversations/{id}                 detail
//	PATCH /api/conversations/{id}                 partial update
//	GET   /api/conversations/{id}/messages        message page (cursor, limit)
//	POST  /api/conversations/{id}/messages        send
//	POST  /api/conversations/{id}/read            mark read
//	POST  /api/conversations/{id}/typing          typing signal
//	GET   /api/realtime/stream                    SSE stream
//	GET   /health, /health/ready, /metrics
//
// Errors are JSON objects {"error": "...", "code": "..."} with the status
// chosen by chaterr.HTTPStatus.
//
// # Webhooks
//
// The webhook endpoint always acknowledges with an empty 200 once the secret
// check passes, whatever the payload contained, so providers never retry a
// delivery because of an unrecognized event.
package gateway

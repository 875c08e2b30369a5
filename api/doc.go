// Package api holds the HTTP and WebSocket surfaces of hitlbridge.
//
// REST endpoints (package handlers):
//
//	GET  /api/v1/requests                  pending requests, ?execution_id= filter
//	GET  /api/v1/requests/{id}             one pending request
//	POST /api/v1/requests/{id}/response    submit a human answer
//	POST /api/v1/requests/cleanup          sweep requests older than ?max_age=
//	GET  /api/v1/audit                     audit trail, ?execution_id= ?outcome= ?limit=
//	GET  /api/v1/audit/{id}                one audit record
//
// Operators may instead connect to /api/v1/ws (package ws) and receive
// human_request frames, answering with human_response frames.
//
// When auth is enabled every /api/v1 route requires a bearer JWT. Browser
// WebSocket clients pass it as the access_token query parameter.
package api

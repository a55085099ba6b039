// Package api exposes the organization lifecycle, access policy and billing
// services over HTTP.
//
// Routes live under /api/v1. Errors carry stable codes in a uniform JSON
// envelope; policy denials are not errors and come back as 200 decisions.
// Authentication is expected to happen at the gateway in front of this
// service, so handlers take actor IDs from request payloads.
package api

// Package httputil provides HTTP handler utilities for consistent error
// translation, JSON encoding/decoding, request parsing and the request-scoped
// middleware every route shares.
//
// StatusFor is the one table mapping domain errors to HTTP status codes. The
// guard and the admin handlers both answer through WriteError so that a given
// error always produces the same status and body.
package httputil

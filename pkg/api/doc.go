// Package api wires the gin engine: request logging, panic recovery, CORS in
// debug, controller registration, the metrics endpoint and the SPA fallback
// serving the static frontend.
package api

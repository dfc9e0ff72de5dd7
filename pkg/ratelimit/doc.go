// Package ratelimit provides the two request-throttling layers guarding the
// API: a fixed-window per-IP request counter and a per-account credential
// failure throttle. Both keep their state in process, sweep expired entries
// in the background, and take an injectable clock for tests.
package ratelimit

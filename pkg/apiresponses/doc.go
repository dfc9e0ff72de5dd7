// Package apiresponses provides standardized HTTP API response helpers
// (error, unauthorized, conflict, too-many-requests, etc.) shared between
// the api, auth, flash and weather packages without import cycles.
package apiresponses

// Package weather proxies forecast and geocoding lookups to the upstream
// Open-Meteo APIs, normalizing their payloads for the frontend and capping
// outbound call volume with a token bucket.
package weather

// Package observability provides logging, Prometheus metrics, and health
// check endpoints for the Hangar service.
package observability

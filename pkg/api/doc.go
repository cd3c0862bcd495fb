// Package api exposes the HTTP surface: session endpoints, group
// management, and app and folder management, all gated by the permission
// model.
package api

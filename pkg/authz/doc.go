// Package authz decides whether a user may perform an action on a resource.
//
// Decisions combine three inputs: the capability flags on the groups a user
// belongs to, per-app grants those groups hold, and app ownership. Unknown
// resource kinds and actions are denied.
package authz

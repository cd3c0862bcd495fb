// Package apps manages applications and folders within an organization.
//
// Every app records the user who created it. Ownership matters for
// authorization: a creator can read, update and delete their own app even
// when no group grants it.
package apps

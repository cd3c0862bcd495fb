// Package users manages user accounts and their group permissions.
//
// # Overview
//
// A user belongs to one or more organizations through organization_users
// membership rows. Within an organization, capabilities are granted through
// named groups (group_permissions) that carry boolean flags for app and
// folder actions, optionally refined per application by app_group_permissions
// overrides.
//
// Two groups are reserved in every organization:
//
//   - admin: full control; every organization must keep at least one active
//     member in it
//   - all_users: baseline group; can never be removed from a user
//
// # Transactions
//
// Every mutating method accepts an optional *sql.Tx. Passing nil makes the
// method open and commit its own transaction; passing a transaction makes the
// method join it and leaves commit/rollback to the caller.
package users

// Package postgres handles database connection setup and schema migrations.
package postgres

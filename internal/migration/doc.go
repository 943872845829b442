// Package migration manages the Postgres schema with embedded SQL migrations.
// This package is internal and should not be imported by external projects.
package migration

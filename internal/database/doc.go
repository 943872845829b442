// Package database manages the Postgres connection pool used by the
// repositories. This package is internal and should not be imported by
// external projects.
package database

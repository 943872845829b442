// Package cache provides Redis-backed caching for conversation history.
// This package is internal and should not be imported by external projects.
package cache

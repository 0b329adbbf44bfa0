// Package store declares interfaces for persisting the ruleset
// repository backing the auxiliary vocab/ruleset endpoints.
// Implementations live in other packages; this package must not import
// database drivers or concrete clients.
package store

// Package postgres implements the service repository contracts against
// PostgreSQL via database/sql and lib/pq.
package postgres

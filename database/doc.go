// Package database is the connection provider shared by the session and
// persistence APIs. It opens and validates the store, owns the connection
// pool, creates the schema, logs SQL and classifies store errors.
package database

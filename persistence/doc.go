// Package persistence is the entity-manager API over the user store, built
// on GORM. It shares the connection pool of a database.Manager with the
// session package, so rows written through either API are visible to the
// other once committed.
package persistence

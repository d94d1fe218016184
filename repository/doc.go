// Package repository provides a generic repository built on Bun. A repository
// is bound to a bun.IDB, so the same code runs on the connection pool or
// inside a transaction. Failures are reported as database.Error values.
package repository

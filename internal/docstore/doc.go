// Package docstore implements domain.DocumentStore: schemaless JSON
// documents grouped into tables, with atomic array take/append and
// change subscriptions.
//
// Memory serves tests and single-process use; SQL persists to SQLite or
// Postgres. The relay package exposes either one over HTTP.
package docstore

// Package main runs the FADirect relay: an HTTP front for a document store
// holding published prekey bundles and encrypted arrangement messages.
//
// The relay serves the API documented in internal/relay over SQLite (default,
// relay.db), Postgres or memory. Settings come from flags or FADIRECT_RELAY_*
// environment variables:
//
//	--listen     listen address (default :8080)
//	--store      sqlite, postgres or memory
//	--dsn        SQL data source
//	--log-level  debug, info, warn or error
//
// Behaviour
//
//   - Clients use --store relay --relay http://host:port.
//   - Changes are streamed to watchers as NDJSON; the server has no write
//     timeout so streams stay open.
//   - SIGINT or SIGTERM drains in-flight requests before exit.
//
// The relay is an untrusted middleman. It never sees plaintext or private
// keys; it only stores ciphertext and public bundles.
package main

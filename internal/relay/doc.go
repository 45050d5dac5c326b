// Package relay exposes a domain.DocumentStore over HTTP and provides the
// matching client, itself a domain.DocumentStore.
//
// The relay is an untrusted middleman: it stores published bundles and
// encrypted message envelopes, never plaintext or private keys.
//
// HTTP API
//
//	GET    /docs/{table}/{id}                   read one document
//	PUT    /docs/{table}/{id}                   create or replace
//	PATCH  /docs/{table}/{id}                   merge top-level fields
//	DELETE /docs/{table}/{id}                   delete
//	POST   /docs/{table}                        insert with a generated id
//	GET    /docs/{table}?field=F&value=V        find, oldest first
//	POST   /docs/{table}/{id}/take/{field}      atomically remove one array element
//	                                            (?order=lowest|highest by "keyId")
//	POST   /docs/{table}/{id}/append/{field}    append array elements
//	GET    /watch/{table}?field=F&value=V       stream changes as NDJSON
//
// Missing documents are reported as 404 and map back to
// domain.ErrDocumentNotFound in the client. Idempotent requests are retried
// with exponential backoff on transport errors and 5xx responses.
package relay

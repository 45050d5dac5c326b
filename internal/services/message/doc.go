// Package message sends and reads arrangement messages.
//
// Messages live in the "messages" table of the shared document store with
// their content replaced by an encrypted envelope. Reading decrypts each
// message for the local user; content that cannot be opened is shown as a
// placeholder rather than failing the whole listing.
package message

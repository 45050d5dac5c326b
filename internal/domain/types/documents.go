package types

import (
	"encoding/json"
	"time"
)

// Document is a JSON object stored in the shared document store. Values are
// kept raw so partial updates merge at the top level only.
type Document map[string]json.RawMessage

// Stored is a document together with its identity and bookkeeping.
type Stored struct {
	ID        string    `json:"id"`
	Data      Document  `json:"data"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChangeKind classifies a document change notification.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// Change is a notification that a document in a table changed. It is a hint:
// subscribers re-read the store for authoritative content.
type Change struct {
	Table string     `json:"table"`
	Kind  ChangeKind `json:"kind"`
	ID    string     `json:"id"`
	Data  Document   `json:"data,omitempty"`
}

// Filter restricts a query or subscription to documents whose top-level
// Field equals Value. The zero Filter matches everything.
type Filter struct {
	Field string
	Value string
}

// Pick selects which element TakeOne removes from an array field.
type Pick int

const (
	// PickLowest removes the element with the smallest "keyId".
	PickLowest Pick = iota
	// PickHighest removes the element with the largest "keyId".
	PickHighest
)

// Package domain defines core data models and interfaces shared across the app.
// It contains plain types (key material, sessions, envelopes, documents),
// contracts (stores and services) and the error taxonomy only.
//
// The types and interfaces live in subpackages and are re-exported here as
// aliases so callers import a single package.
package domain

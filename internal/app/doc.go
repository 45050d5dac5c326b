// Package app wires application dependencies for the CLI.
//
// Configuration is read with viper from flags, FADIRECT_* environment
// variables and an optional config.yaml in the home directory. NewWire builds
// the vault, key store, document store and services from the Config, and App
// runs the user-facing flows (init, send, receive, watch, prekey upkeep) on
// top of them.
package app

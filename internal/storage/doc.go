// Package storage defines the registration persistence contract and the
// sentinel errors shared by its adapters.
package storage

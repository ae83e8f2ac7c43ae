// Package storage is the durable key/value port the wizard persists into.
//
// Values are opaque strings, mirroring browser local storage. Backends live
// in internal/repository; this package holds the port, the in-memory
// backend, key scoping and the degrade-to-memory wrapper.
package storage

import (
	"context"
	"errors"
)

// Slot names written by the wizard.
const (
	SlotCurrentStep = "currentStep"
	SlotTicketData  = "ticketData"
	SlotTicketForm  = "ticketForm"
	SlotInventory   = "ticketInventory"
)

var ErrUnavailable = errors.New("storage unavailable")

// Storage is a string-valued key/value store.
//
// Get reports ok=false for a missing key. SetMany writes all pairs or none
// where the backend supports it.
type Storage interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	SetMany(ctx context.Context, kv map[string]string) error
	Delete(ctx context.Context, keys ...string) error
}

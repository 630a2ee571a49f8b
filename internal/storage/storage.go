package storage

import (
	"context"
	"errors"

	"github.com/seibukan/gasshuku/internal/registration"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// ErrInvalidTransition indicates a status change the monotonic registration
// lifecycle disallows.
var ErrInvalidTransition = errors.New("invalid status transition")

// RegistrationStore persists camp registrations. Writes may transiently fail
// with a contention error from the underlying engine; the caller decides the
// retry policy.
type RegistrationStore interface {
	Insert(ctx context.Context, reg registration.Registration) error
	ListAll(ctx context.Context) ([]registration.Registration, error)
	Count(ctx context.Context) (int64, error)
	MarkPaid(ctx context.Context, id string) error
	MarkDeleted(ctx context.Context, id string) error
	Anonymize(ctx context.Context, id string) error
}

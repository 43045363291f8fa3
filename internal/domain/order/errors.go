package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors for order operations.
var (
	ErrNotFound      = errors.New("order not found")
	ErrInvalidStatus = errors.New("invalid status")
	// ErrDuplicateOrderNumber is returned by a Repository when the generated
	// order number collides with an existing one.
	ErrDuplicateOrderNumber = errors.New("duplicate order number")
	// ErrValidation matches every *ValidationError via errors.Is.
	ErrValidation = errors.New("validation failed")
)

// ValidationError reports a malformed or missing request field. It is always
// returned before the store is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// CatalogError reports a line item or delivery zone that disagrees with the
// menu catalog. Err is catalog.ErrItemNotFound or catalog.ErrZoneNotFound
// when the entry is missing altogether.
type CatalogError struct {
	ItemID int
	Zone   string
	Reason string
	Err    error
}

func (e *CatalogError) Error() string {
	if e.Zone != "" {
		return fmt.Sprintf("delivery zone %s: %s", e.Zone, e.Reason)
	}
	return fmt.Sprintf("item %d: %s", e.ItemID, e.Reason)
}

func (e *CatalogError) Unwrap() error { return e.Err }

// TransitionError reports a status change outside the lifecycle.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot change status from %s to %s", e.From, e.To)
}

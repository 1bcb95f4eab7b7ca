package service

import (
	"errors"
	"fmt"

	"github.com/ukydev/fleet-maintenance/internal/db"
	"github.com/ukydev/fleet-maintenance/internal/models"
	"github.com/ukydev/fleet-maintenance/internal/validation"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
	ErrValidation       = errors.New("validation failed")
)

// invalid wraps validation failures so callers can match ErrValidation and
// still reach the field list with errors.As.
func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrValidation, err)
}

func invalidField(field, tag, msg string) error {
	return invalid(validation.Field(field, tag, msg))
}

// ValidationError reports one rejected field as ErrValidation.
func ValidationError(field, tag, msg string) error {
	return invalidField(field, tag, msg)
}

// storeErr maps store errors onto the service taxonomy.
func storeErr(err error) error {
	if errors.Is(err, db.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// authorize hides records the principal cannot see and rejects actions its
// role does not allow.
func authorize(p *models.Principal, o models.Ownership, action string) error {
	if !p.CanAccess(o, models.ActionViewVehicles) {
		return ErrNotFound
	}
	if !p.CanAccess(o, action) {
		return ErrForbidden
	}
	return nil
}

package service

import (
	"context"
	"fmt"

	"github.com/prohmpiriya/studio-booking/internal/domain"
	"github.com/prohmpiriya/studio-booking/internal/repository"
)

const defaultStaffRole = "staff"

// authorizer decides whether an actor may act on a member's records.
// Owners always may; staff may act for members of their studio.
type authorizer struct {
	staff     repository.StaffRepository
	staffRole string
}

func newAuthorizer(staff repository.StaffRepository, staffRole string) *authorizer {
	if staffRole == "" {
		staffRole = defaultStaffRole
	}
	return &authorizer{staff: staff, staffRole: staffRole}
}

// isStaff reports whether actor is staff by token role or by studio directory
func (a *authorizer) isStaff(ctx context.Context, studioID string, actor domain.Actor) (bool, error) {
	if actor.HasRole(a.staffRole) {
		return true, nil
	}
	if a.staff == nil || actor.ID == "" {
		return false, nil
	}
	ok, err := a.staff.IsStaff(ctx, studioID, actor.ID)
	if err != nil {
		return false, fmt.Errorf("failed to check staff membership: %w", err)
	}
	return ok, nil
}

// canActFor returns ErrForbidden unless actor owns the record or is staff
func (a *authorizer) canActFor(ctx context.Context, studioID, ownerID string, actor domain.Actor) error {
	if actor.ID != "" && actor.ID == ownerID {
		return nil
	}
	staff, err := a.isStaff(ctx, studioID, actor)
	if err != nil {
		return err
	}
	if !staff {
		return domain.ErrForbidden
	}
	return nil
}

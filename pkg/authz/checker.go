package authz

import (
	"context"
	"fmt"

	"github.com/hangarhq/hangar/pkg/users"
)

// Resource is the kind of entity an action targets. The set is closed;
// Checker.Can denies anything outside it.
type Resource string

const (
	ResourceApp     Resource = "app"
	ResourceUser    Resource = "user"
	ResourceThread  Resource = "thread"
	ResourceComment Resource = "comment"
	ResourceFolder  Resource = "folder"
)

// Action names what the user wants to do with the resource.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// PermissionSource provides the group memberships and per-app grants a
// decision is based on. *users.Store satisfies it.
type PermissionSource interface {
	GroupPermissions(ctx context.Context, userID, orgID int64) ([]users.GroupPermission, error)
	AppGroupPermissions(ctx context.Context, userID, orgID int64, appID *int64) ([]users.AppGroupPermission, error)
	HasGroup(ctx context.Context, userID, orgID int64, groupName string) (bool, error)
}

// OwnershipSource reports app ownership. *apps.Store satisfies it.
type OwnershipSource interface {
	IsOwner(ctx context.Context, appID, userID int64) (bool, error)
}

// Recorder observes decision outcomes, typically for metrics. May be nil.
type Recorder interface {
	RecordPermissionCheck(resource, action string, allowed bool)
}

// Checker evaluates authorization decisions.
type Checker struct {
	permissions PermissionSource
	ownership   OwnershipSource
	recorder    Recorder
}

// NewChecker creates a new checker. recorder may be nil.
func NewChecker(permissions PermissionSource, ownership OwnershipSource, recorder Recorder) *Checker {
	return &Checker{permissions: permissions, ownership: ownership, recorder: recorder}
}

// Can reports whether the user may perform action on the given resource kind
// within the organization. resourceID identifies the target app for app,
// thread and comment checks and may be nil for create checks.
func (c *Checker) Can(ctx context.Context, userID, orgID int64, action Action, resource Resource, resourceID *int64) (bool, error) {
	allowed, err := c.decide(ctx, userID, orgID, action, resource, resourceID)
	if err != nil {
		return false, err
	}
	if c.recorder != nil {
		c.recorder.RecordPermissionCheck(string(resource), string(action), allowed)
	}
	return allowed, nil
}

func (c *Checker) decide(ctx context.Context, userID, orgID int64, action Action, resource Resource, resourceID *int64) (bool, error) {
	switch resource {
	case ResourceApp:
		return c.canApp(ctx, userID, orgID, action, resourceID)
	case ResourceUser:
		// Only admins manage users, whatever the action.
		return c.permissions.HasGroup(ctx, userID, orgID, users.GroupAdmin)
	case ResourceThread, ResourceComment:
		// Threads and comments live inside an app; touching them requires
		// update access to that app.
		return c.canApp(ctx, userID, orgID, ActionUpdate, resourceID)
	case ResourceFolder:
		if action == ActionCreate {
			return c.anyGroupFlag(ctx, userID, orgID, func(gp users.GroupPermission) bool { return gp.FolderCreate })
		}
		return false, nil
	default:
		return false, nil
	}
}

func (c *Checker) canApp(ctx context.Context, userID, orgID int64, action Action, appID *int64) (bool, error) {
	switch action {
	case ActionCreate:
		return c.anyGroupFlag(ctx, userID, orgID, func(gp users.GroupPermission) bool { return gp.AppCreate })
	case ActionRead, ActionUpdate, ActionDelete:
		if appID == nil {
			return false, fmt.Errorf("app %s check requires a resource id", action)
		}

		grants, err := c.permissions.AppGroupPermissions(ctx, userID, orgID, appID)
		if err != nil {
			return false, err
		}
		for _, grant := range grants {
			switch {
			case action == ActionRead && grant.Read,
				action == ActionUpdate && grant.Update,
				action == ActionDelete && grant.Delete:
				return true, nil
			}
		}

		if action == ActionDelete {
			ok, err := c.anyGroupFlag(ctx, userID, orgID, func(gp users.GroupPermission) bool { return gp.AppDelete })
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}

		// Ownership satisfies read, update and delete on its own.
		return c.ownership.IsOwner(ctx, *appID, userID)
	default:
		return false, nil
	}
}

func (c *Checker) anyGroupFlag(ctx context.Context, userID, orgID int64, flag func(users.GroupPermission) bool) (bool, error) {
	groups, err := c.permissions.GroupPermissions(ctx, userID, orgID)
	if err != nil {
		return false, err
	}
	for _, gp := range groups {
		if flag(gp) {
			return true, nil
		}
	}
	return false, nil
}

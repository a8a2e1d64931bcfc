package controllers

import (
	"fmt"
	"strings"

	"github.com/cyverse-de/echo-middleware/v2/params"
	"github.com/cyverse/compute-qms/internal/model"
	"github.com/cyverse/compute-qms/internal/query"
	"github.com/cyverse/compute-qms/utils"
	"github.com/labstack/echo/v4"
)

// extractUserID extracts and validates the user ID path parameter.
func extractUserID(ctx echo.Context) (string, error) {
	userID, err := params.ValidatedPathParam(ctx, "user_id", "required,max=255")
	if err != nil {
		return "", fmt.Errorf("a valid user ID is required")
	}
	return strings.TrimSpace(userID), nil
}

// extractUUID extracts a path parameter that must contain a UUID.
func extractUUID(ctx echo.Context, name, description string) (string, error) {
	value, err := params.ValidatedPathParam(ctx, name, "uuid")
	if err != nil {
		return "", fmt.Errorf("the %s must be a valid UUID", description)
	}
	return value, nil
}

// extractResourceType extracts and validates the resource type path parameter.
func extractResourceType(ctx echo.Context) (model.ResourceType, error) {
	kind, err := params.ValidatedPathParam(ctx, "resource_type", "oneof=vm container")
	if err != nil {
		return "", fmt.Errorf("the resource type must be one of: vm, container")
	}
	return model.ResourceType(kind), nil
}

// extractResourceID extracts and validates the resource ID path parameter.
func extractResourceID(ctx echo.Context) (string, error) {
	resourceID, err := params.ValidatedPathParam(ctx, "resource_id", "required,max=255")
	if err != nil {
		return "", fmt.Errorf("a valid resource ID is required")
	}
	return resourceID, nil
}

// normalizeUsername removes the configured suffix from a username supplied by a caller.
func (s Server) normalizeUsername(username string) string {
	return utils.RemoveUsernameSuffix(strings.TrimSpace(username), s.UsernameSuffix)
}

// callerFromRequest builds the caller identity from the query parameters set by the authenticating proxy.
func (s Server) callerFromRequest(ctx echo.Context) (model.Caller, error) {
	var caller model.Caller

	userID, err := query.ValidatedQueryParam(ctx, "caller", "required,max=255")
	if err != nil {
		return caller, fmt.Errorf("missing or invalid query parameter: caller")
	}

	username, err := query.ValidatedQueryParam(ctx, "caller-username", "omitempty,max=255")
	if err != nil {
		return caller, err
	}

	defaultRole := string(model.RoleUser)
	role, err := query.ValidateEnumQueryParam(
		ctx, "role", []string{string(model.RoleUser), string(model.RoleAdmin)}, &defaultRole,
	)
	if err != nil {
		return caller, err
	}

	caller.UserID = userID
	caller.Username = s.normalizeUsername(username)
	caller.Role = model.Role(role)
	return caller, nil
}

// isAdminCaller returns true if the request was made by an administrator.
func isAdminCaller(ctx echo.Context) (bool, error) {
	defaultRole := string(model.RoleUser)
	role, err := query.ValidateEnumQueryParam(
		ctx, "role", []string{string(model.RoleUser), string(model.RoleAdmin)}, &defaultRole,
	)
	if err != nil {
		return false, err
	}
	return model.Role(role) == model.RoleAdmin, nil
}

// actor returns the identifier recorded as the performer of an administrative change.
func actor(ctx echo.Context) string {
	return ctx.QueryParam("caller")
}

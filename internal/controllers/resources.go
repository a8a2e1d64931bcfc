package controllers

import (
	"net/http"

	"github.com/cyverse/compute-qms/internal/httpmodel"
	"github.com/cyverse/compute-qms/internal/model"
	"github.com/cyverse/compute-qms/internal/ownership"
	"github.com/cyverse/compute-qms/internal/query"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// ListResources lists the live resources of one type that the caller may see.
//
// swagger:route GET /v1/resources/{resource_type} resources listResources
//
// # List Resources
//
// Administrators see every resource, including resources with no recorded owner. Other callers only see their own
// resources. Setting unowned=true limits the listing to resources with no recorded owner.
//
// responses:
//
//	200: resourceListing
//	400: badRequestResponse
//	502: badGatewayResponse
//	500: internalServerErrorResponse
func (s Server) ListResources(ctx echo.Context) error {
	log := log.WithFields(logrus.Fields{"context": "listing resources"})

	kind, err := extractResourceType(ctx)
	if err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}
	caller, err := s.callerFromRequest(ctx)
	if err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}
	defaultUnowned := false
	unownedOnly, err := query.ValidateBooleanQueryParam(ctx, "unowned", &defaultUnowned)
	if err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}

	log = log.WithFields(logrus.Fields{"user": caller.UserID, "type": kind})

	resources, err := s.Provisioner.List(ctx.Request().Context(), caller, kind)
	if err != nil {
		return errorResponse(ctx, log, err)
	}

	if unownedOnly {
		unowned := make([]ownership.OwnedResource, 0)
		for _, r := range resources {
			if !r.IsOwned() {
				unowned = append(unowned, r)
			}
		}
		resources = unowned
	}

	return model.Success(ctx, resources, http.StatusOK)
}

// CreateResource creates a resource on behalf of the caller.
//
// swagger:route POST /v1/resources/{resource_type} resources createResource
//
// # Create a Resource
//
// Admits the request, reserves the usage, creates the resource and records the caller as its owner. The reservation
// is released if the resource can't be created.
//
// responses:
//
//	201: resourceResponse
//	400: badRequestResponse
//	403: quotaExceededResponse
//	502: badGatewayResponse
//	500: internalServerErrorResponse
func (s Server) CreateResource(ctx echo.Context) error {
	log := log.WithFields(logrus.Fields{"context": "creating resource"})

	kind, err := extractResourceType(ctx)
	if err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}
	caller, err := s.callerFromRequest(ctx)
	if err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}

	var body httpmodel.NewResource
	if err = ctx.Bind(&body); err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}
	if err = body.Validate(); err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}

	log = log.WithFields(logrus.Fields{"user": caller.UserID, "type": kind})

	resource, err := s.Provisioner.Create(ctx.Request().Context(), caller, kind, body.ToSpec())
	if err != nil {
		return errorResponse(ctx, log, err)
	}

	log.Infof("created %s", resource.ID)

	return model.Success(ctx, resource, http.StatusCreated)
}

// DeleteResource deletes a resource owned by the caller.
//
// swagger:route DELETE /v1/resources/{resource_type}/{resource_id} resources deleteResource
//
// # Delete a Resource
//
// Deletes the resource and releases the usage recorded for it. Only the owner or an administrator may delete a
// resource.
//
// responses:
//
//	200: successMessageResponse
//	400: badRequestResponse
//	403: forbiddenResponse
//	404: notFoundResponse
//	502: badGatewayResponse
//	500: internalServerErrorResponse
func (s Server) DeleteResource(ctx echo.Context) error {
	log := log.WithFields(logrus.Fields{"context": "deleting resource"})

	kind, err := extractResourceType(ctx)
	if err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}
	resourceID, err := extractResourceID(ctx)
	if err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}
	caller, err := s.callerFromRequest(ctx)
	if err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}

	log = log.WithFields(logrus.Fields{"user": caller.UserID, "type": kind, "id": resourceID})

	if err = s.Provisioner.Delete(ctx.Request().Context(), caller, kind, resourceID); err != nil {
		return errorResponse(ctx, log, err)
	}

	return model.SuccessMessage(ctx, "resource deleted", http.StatusOK)
}

// ListOwnershipRecords lists the ownership records for a resource type.
//
// swagger:route GET /v1/ownership/{resource_type} ownership listOwnershipRecords
//
// # List Ownership Records
//
// responses:
//
//	200: ownershipListing
//	400: badRequestResponse
//	500: internalServerErrorResponse
func (s Server) ListOwnershipRecords(ctx echo.Context) error {
	log := log.WithFields(logrus.Fields{"context": "listing ownership records"})

	kind, err := extractResourceType(ctx)
	if err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}

	records, err := s.Ownership.Records(ctx.Request().Context(), kind)
	if err != nil {
		return errorResponse(ctx, log, err)
	}

	return model.Success(ctx, records, http.StatusOK)
}

// GetOwnershipRecord returns the ownership record for a resource.
//
// swagger:route GET /v1/ownership/{resource_type}/{resource_id} ownership getOwnershipRecord
//
// # Get an Ownership Record
//
// responses:
//
//	200: ownershipResponse
//	400: badRequestResponse
//	404: notFoundResponse
//	500: internalServerErrorResponse
func (s Server) GetOwnershipRecord(ctx echo.Context) error {
	log := log.WithFields(logrus.Fields{"context": "getting ownership record"})

	kind, err := extractResourceType(ctx)
	if err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}
	resourceID, err := extractResourceID(ctx)
	if err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}

	record, err := s.Ownership.Lookup(ctx.Request().Context(), kind, resourceID)
	if err != nil {
		return errorResponse(ctx, log, err)
	}

	return model.Success(ctx, record, http.StatusOK)
}

// AddOwnershipRecord records the owner of a resource that was created outside of this service.
//
// swagger:route PUT /v1/ownership/{resource_type}/{resource_id} ownership addOwnershipRecord
//
// # Record the Owner of a Resource
//
// Recording the same owner twice succeeds. Usage counters are not changed; the next reconciliation run picks the
// resource up.
//
// responses:
//
//	200: ownershipResponse
//	400: badRequestResponse
//	409: conflictResponse
//	500: internalServerErrorResponse
func (s Server) AddOwnershipRecord(ctx echo.Context) error {
	log := log.WithFields(logrus.Fields{"context": "adding ownership record"})

	kind, err := extractResourceType(ctx)
	if err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}
	resourceID, err := extractResourceID(ctx)
	if err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}

	var body httpmodel.Ownership
	if err = ctx.Bind(&body); err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}
	if err = body.Validate(); err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}

	log = log.WithFields(logrus.Fields{"type": kind, "id": resourceID, "owner": body.OwnerUserID})

	record, err := s.Ownership.AddResourceOwnership(
		ctx.Request().Context(), resourceID, kind, body.OwnerUserID, body.Size.ToModel(),
	)
	if err != nil {
		return errorResponse(ctx, log, err)
	}

	return model.Success(ctx, record, http.StatusOK)
}

// RemoveOwnershipRecord removes the ownership record for a resource.
//
// swagger:route DELETE /v1/ownership/{resource_type}/{resource_id} ownership removeOwnershipRecord
//
// # Remove an Ownership Record
//
// Removing a record that doesn't exist succeeds.
//
// responses:
//
//	200: successMessageResponse
//	400: badRequestResponse
//	500: internalServerErrorResponse
func (s Server) RemoveOwnershipRecord(ctx echo.Context) error {
	log := log.WithFields(logrus.Fields{"context": "removing ownership record"})

	kind, err := extractResourceType(ctx)
	if err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}
	resourceID, err := extractResourceID(ctx)
	if err != nil {
		return model.Error(ctx, err.Error(), http.StatusBadRequest)
	}

	if err = s.Ownership.RemoveOwnership(ctx.Request().Context(), resourceID, kind); err != nil {
		return errorResponse(ctx, log, err)
	}

	return model.SuccessMessage(ctx, "ownership record removed", http.StatusOK)
}

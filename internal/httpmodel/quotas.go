// Package httpmodel defines the request bodies accepted by the HTTP API.
package httpmodel

import (
	"fmt"

	"github.com/cyverse/compute-qms/internal/model"
	"github.com/go-playground/validator/v10"
)

// Note: the names in the comments may deviate a bit from the actual structure names in order to avoid producing
// confusing Swagger docs.

// A single validator is shared by every request body.
var v = validator.New()

// validationError converts the first validator failure into a readable message.
func validationError(err error) error {
	if err == nil {
		return nil
	}
	if fieldErrors, ok := err.(validator.ValidationErrors); ok && len(fieldErrors) > 0 {
		fe := fieldErrors[0]
		if fe.Param() != "" {
			return fmt.Errorf("invalid value for %s: must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param())
		}
		return fmt.Errorf("invalid value for %s: %s", fe.Field(), fe.Tag())
	}
	return err
}

// QuotaSettings
//
// swagger:model
type QuotaSettings struct {

	// The username to associate with the quota record
	Username string `json:"username" validate:"omitempty,max=255"`

	// The quota values to change; omitted values are left alone
	Quotas *model.QuotaOverrides `json:"quotas"`

	// True if the user is an administrator
	IsAdmin *bool `json:"is_admin"`
}

// Validate verifies that no quota value is negative. Nested structs are validated along with the outer one.
func (q QuotaSettings) Validate() error {
	return validationError(v.Struct(q))
}

// Suspension
//
// swagger:model
type Suspension struct {

	// True to suspend the account, false to reinstate it
	//
	// required: true
	Suspended *bool `json:"suspended" validate:"required"`
}

// Validate verifies that the suspension flag is present.
func (s Suspension) Validate() error {
	return validationError(v.Struct(s))
}

// VMAdmission
//
// swagger:model
type VMAdmission struct {

	// The number of virtual CPUs requested
	VCPUs int64 `json:"vcpus" validate:"gte=0,lte=4096"`

	// The amount of memory requested in megabytes
	MemoryMB int64 `json:"memory_mb" validate:"gte=0,lte=16777216"`

	// The amount of disk requested in gigabytes
	DiskGB int64 `json:"disk_gb" validate:"gte=0,lte=1048576"`
}

// Validate verifies that none of the requested amounts are negative.
func (a VMAdmission) Validate() error {
	return validationError(v.Struct(a))
}

package httpmodel

import (
	"github.com/cyverse/compute-qms/internal/infra"
	"github.com/cyverse/compute-qms/internal/model"
)

// NewResource
//
// swagger:model
type NewResource struct {

	// The requested resource name
	Name string `json:"name" validate:"omitempty,max=128"`

	// The image to run
	Image string `json:"image" validate:"omitempty,max=512"`

	// The declared resource size
	Size ResourceSize `json:"size"`

	// Extra labels to attach to the resource
	Labels map[string]string `json:"labels"`
}

// ResourceSize
//
// swagger:model
type ResourceSize struct {

	// The number of virtual CPUs
	VCPUs int64 `json:"vcpus" validate:"gte=0,lte=4096"`

	// The amount of memory in megabytes
	MemoryMB int64 `json:"memory_mb" validate:"gte=0,lte=16777216"`

	// The amount of disk in gigabytes
	DiskGB int64 `json:"disk_gb" validate:"gte=0,lte=1048576"`
}

// ToModel converts the size to its model equivalent.
func (s ResourceSize) ToModel() model.ResourceSize {
	return model.ResourceSize{VCPUs: s.VCPUs, MemoryMB: s.MemoryMB, DiskGB: s.DiskGB}
}

// Validate verifies the resource name and size.
func (r NewResource) Validate() error {
	return validationError(v.Struct(r))
}

// ToSpec converts the request body to an infrastructure spec.
func (r NewResource) ToSpec() infra.Spec {
	return infra.Spec{
		Name:   r.Name,
		Image:  r.Image,
		Size:   r.Size.ToModel(),
		Labels: r.Labels,
	}
}

// Ownership
//
// swagger:model
type Ownership struct {

	// The identifier of the owning user
	//
	// required: true
	OwnerUserID string `json:"owner_user_id" validate:"required,max=255"`

	// The declared size of the resource
	Size ResourceSize `json:"size"`
}

// Validate verifies that an owner was named.
func (o Ownership) Validate() error {
	return validationError(v.Struct(o))
}

package model

import "time"

// ResourceType identifies the class of infrastructure resource that a quota, usage counter, or ownership record
// refers to.
type ResourceType string

const (
	ResourceTypeVM        ResourceType = "vm"
	ResourceTypeContainer ResourceType = "container"
)

// ResourceTypes lists every resource type managed by the service.
var ResourceTypes = []ResourceType{ResourceTypeVM, ResourceTypeContainer}

// Valid returns true if the resource type is one that the service knows how to manage.
func (rt ResourceType) Valid() bool {
	return rt == ResourceTypeVM || rt == ResourceTypeContainer
}

// ResourceSize describes the compute resources declared for a single VM or container.
//
// swagger:model
type ResourceSize struct {
	// The number of virtual CPUs
	VCPUs int64 `gorm:"column:vcpus;not null;default:0" json:"vcpus"`

	// The amount of memory in megabytes
	MemoryMB int64 `gorm:"column:memory_mb;not null;default:0" json:"memory_mb"`

	// The amount of disk space in gigabytes
	DiskGB int64 `gorm:"column:disk_gb;not null;default:0" json:"disk_gb"`
}

// Add returns the sum of two resource sizes.
func (s ResourceSize) Add(other ResourceSize) ResourceSize {
	return ResourceSize{
		VCPUs:    s.VCPUs + other.VCPUs,
		MemoryMB: s.MemoryMB + other.MemoryMB,
		DiskGB:   s.DiskGB + other.DiskGB,
	}
}

// OwnershipRecord links an infrastructure resource to the user who created it.
//
// swagger:model
type OwnershipRecord struct {
	// The resource identifier assigned by the infrastructure layer
	ResourceID string `gorm:"primaryKey" json:"resource_id"`

	// The resource type
	ResourceType ResourceType `gorm:"primaryKey;type:text" json:"resource_type"`

	// The identifier of the owning user
	OwnerUserID string `gorm:"not null;index" json:"owner_user_id"`

	// The size declared when the resource was created
	ResourceSize `gorm:"embedded"`

	// The date and time the ownership record was created
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name to use the database.
func (o *OwnershipRecord) TableName() string {
	return "resource_ownership"
}

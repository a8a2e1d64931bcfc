package model

import "time"

// Dimension names a single quota dimension.
type Dimension string

const (
	DimensionVCPUs      Dimension = "vcpus"
	DimensionMemoryMB   Dimension = "memory_mb"
	DimensionDiskGB     Dimension = "disk_gb"
	DimensionVMs        Dimension = "vms"
	DimensionContainers Dimension = "containers"
)

// Dimensions lists every quota dimension in the order in which admission checks report them.
var Dimensions = []Dimension{
	DimensionVMs,
	DimensionContainers,
	DimensionVCPUs,
	DimensionMemoryMB,
	DimensionDiskGB,
}

// Description returns a human readable description of the dimension.
func (d Dimension) Description() string {
	switch d {
	case DimensionVCPUs:
		return "vCPU"
	case DimensionMemoryMB:
		return "memory"
	case DimensionDiskGB:
		return "disk"
	case DimensionVMs:
		return "VM count"
	case DimensionContainers:
		return "container count"
	default:
		return string(d)
	}
}

// Quotas is the entitlement ceiling for a single user.
//
// swagger:model
type Quotas struct {
	// The maximum number of virtual CPUs across all VMs
	MaxVCPUs int64 `gorm:"column:max_vcpus;not null;default:0" json:"max_vcpus"`

	// The maximum amount of memory across all VMs in megabytes
	MaxMemoryMB int64 `gorm:"column:max_memory_mb;not null;default:0" json:"max_memory_mb"`

	// The maximum amount of disk across all VMs in gigabytes
	MaxDiskGB int64 `gorm:"column:max_disk_gb;not null;default:0" json:"max_disk_gb"`

	// The maximum number of VMs
	MaxVMs int64 `gorm:"column:max_vms;not null;default:0" json:"max_vms"`

	// The maximum number of containers
	MaxContainers int64 `gorm:"column:max_containers;not null;default:0" json:"max_containers"`
}

// Limit returns the ceiling for a single dimension.
func (q Quotas) Limit(d Dimension) int64 {
	switch d {
	case DimensionVCPUs:
		return q.MaxVCPUs
	case DimensionMemoryMB:
		return q.MaxMemoryMB
	case DimensionDiskGB:
		return q.MaxDiskGB
	case DimensionVMs:
		return q.MaxVMs
	case DimensionContainers:
		return q.MaxContainers
	default:
		return 0
	}
}

// Usage holds the live usage counters for a single user.
//
// swagger:model
type Usage struct {
	// The number of virtual CPUs in use
	CurrentVCPUs int64 `gorm:"column:current_vcpus;not null;default:0" json:"current_vcpus"`

	// The amount of memory in use in megabytes
	CurrentMemoryMB int64 `gorm:"column:current_memory_mb;not null;default:0" json:"current_memory_mb"`

	// The amount of disk in use in gigabytes
	CurrentDiskGB int64 `gorm:"column:current_disk_gb;not null;default:0" json:"current_disk_gb"`

	// The number of VMs owned by the user
	CurrentVMs int64 `gorm:"column:current_vms;not null;default:0" json:"current_vms"`

	// The number of containers owned by the user
	CurrentContainers int64 `gorm:"column:current_containers;not null;default:0" json:"current_containers"`
}

// Current returns the current usage for a single dimension.
func (u Usage) Current(d Dimension) int64 {
	switch d {
	case DimensionVCPUs:
		return u.CurrentVCPUs
	case DimensionMemoryMB:
		return u.CurrentMemoryMB
	case DimensionDiskGB:
		return u.CurrentDiskGB
	case DimensionVMs:
		return u.CurrentVMs
	case DimensionContainers:
		return u.CurrentContainers
	default:
		return 0
	}
}

// Set sets the current usage for a single dimension.
func (u *Usage) Set(d Dimension, value int64) {
	switch d {
	case DimensionVCPUs:
		u.CurrentVCPUs = value
	case DimensionMemoryMB:
		u.CurrentMemoryMB = value
	case DimensionDiskGB:
		u.CurrentDiskGB = value
	case DimensionVMs:
		u.CurrentVMs = value
	case DimensionContainers:
		u.CurrentContainers = value
	}
}

// UsageDelta is a change to the usage counters caused by creating or deleting a single resource.
type UsageDelta struct {
	ResourceSize
	Count int64
}

// Amounts returns the per-dimension amounts for a usage delta applied to the given resource type. Containers only
// count against the container count; their sizes are not tracked.
func (d UsageDelta) Amounts(rt ResourceType) map[Dimension]int64 {
	switch rt {
	case ResourceTypeVM:
		return map[Dimension]int64{
			DimensionVMs:      d.Count,
			DimensionVCPUs:    d.VCPUs,
			DimensionMemoryMB: d.MemoryMB,
			DimensionDiskGB:   d.DiskGB,
		}
	case ResourceTypeContainer:
		return map[Dimension]int64{DimensionContainers: d.Count}
	default:
		return map[Dimension]int64{}
	}
}

// UserQuota is the entitlement record for a single user.
//
// swagger:model
type UserQuota struct {
	// The user identifier
	UserID string `gorm:"primaryKey" json:"user_id"`

	// The username
	Username string `gorm:"not null;index" json:"username"`

	// The entitlement ceilings
	Quotas Quotas `gorm:"embedded" json:"quotas"`

	// The current usage counters
	Usage Usage `gorm:"embedded" json:"usage"`

	// True if the account is suspended
	Suspended bool `gorm:"not null;default:false" json:"suspended"`

	// The spendable token balance
	TokenBalance int64 `gorm:"not null;default:0" json:"token_balance"`

	// The identifier of the active billing plan
	CurrentPlan string `gorm:"not null" json:"current_plan"`

	// The date and time the active plan was activated
	PlanActivatedAt *time.Time `json:"plan_activated_at,omitempty"`

	// The date and time the active plan expires, if ever
	PlanExpiresAt *time.Time `json:"plan_expires_at,omitempty"`

	// True if the user is an administrator
	IsAdmin bool `gorm:"not null;default:false" json:"is_admin"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name to use the database.
func (q *UserQuota) TableName() string {
	return "user_quotas"
}

// Overage describes a single dimension in which usage has reached or exceeded the ceiling.
//
// swagger:model
type Overage struct {
	Dimension Dimension `json:"dimension"`
	Quota     int64     `json:"quota"`
	Usage     int64     `json:"usage"`
}

// Overages lists the dimensions in which the user's usage is at or above the ceiling. Dimensions with no usage are
// never reported.
func (q *UserQuota) Overages() []Overage {
	result := make([]Overage, 0)
	for _, d := range Dimensions {
		if q.Usage.Current(d) > 0 && q.Usage.Current(d) >= q.Quotas.Limit(d) {
			result = append(result, Overage{Dimension: d, Quota: q.Quotas.Limit(d), Usage: q.Usage.Current(d)})
		}
	}
	return result
}

// QuotaOverrides is a partial set of quota values. Nil fields are left unchanged when the overrides are applied.
type QuotaOverrides struct {
	MaxVCPUs      *int64 `json:"max_vcpus,omitempty" validate:"omitempty,gte=0"`
	MaxMemoryMB   *int64 `json:"max_memory_mb,omitempty" validate:"omitempty,gte=0"`
	MaxDiskGB     *int64 `json:"max_disk_gb,omitempty" validate:"omitempty,gte=0"`
	MaxVMs        *int64 `json:"max_vms,omitempty" validate:"omitempty,gte=0"`
	MaxContainers *int64 `json:"max_containers,omitempty" validate:"omitempty,gte=0"`
}

// ApplyTo merges the overrides into a set of quotas.
func (o *QuotaOverrides) ApplyTo(q *Quotas) {
	if o == nil {
		return
	}
	if o.MaxVCPUs != nil {
		q.MaxVCPUs = *o.MaxVCPUs
	}
	if o.MaxMemoryMB != nil {
		q.MaxMemoryMB = *o.MaxMemoryMB
	}
	if o.MaxDiskGB != nil {
		q.MaxDiskGB = *o.MaxDiskGB
	}
	if o.MaxVMs != nil {
		q.MaxVMs = *o.MaxVMs
	}
	if o.MaxContainers != nil {
		q.MaxContainers = *o.MaxContainers
	}
}

// Negative returns the name of the first override that is negative, or an empty string if none are.
func (o *QuotaOverrides) Negative() string {
	if o == nil {
		return ""
	}
	checks := []struct {
		name  string
		value *int64
	}{
		{"max_vcpus", o.MaxVCPUs},
		{"max_memory_mb", o.MaxMemoryMB},
		{"max_disk_gb", o.MaxDiskGB},
		{"max_vms", o.MaxVMs},
		{"max_containers", o.MaxContainers},
	}
	for _, c := range checks {
		if c.value != nil && *c.value < 0 {
			return c.name
		}
	}
	return ""
}

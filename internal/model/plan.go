package model

// Canonical plan identifiers.
const (
	PlanFree       = "free"
	PlanBasic      = "basic"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
	PlanAdmin      = "admin"
)

// Plan is a billing plan: a quota bundle with a monthly token cost. Plans are immutable at runtime.
//
// swagger:model
type Plan struct {
	// The plan identifier
	//
	// readOnly: true
	ID string `json:"id"`

	// The plan name
	Name string `json:"name"`

	// The number of tokens charged when a user switches to the plan
	TokenCost int64 `json:"token_cost"`

	// The quota bundle granted by the plan
	Quotas Quotas `json:"quotas"`

	// Display-only feature descriptions
	Features []string `json:"features,omitempty"`
}

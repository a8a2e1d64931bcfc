// Package plans contains the catalog of billing plans. The catalog is built once at startup and never changes
// while the service is running.
package plans

import (
	"fmt"

	"github.com/cyverse/compute-qms/internal/model"
	"github.com/cyverse/compute-qms/internal/qmserrors"
	"github.com/cyverse/compute-qms/logging"
	"github.com/sirupsen/logrus"
)

var log = logging.GetLogger().WithFields(logrus.Fields{"package": "plans"})

// unlimited is used for every ceiling of the admin plan.
const unlimited = 999999999

// Defaults returns the built-in plan catalog.
func Defaults() []model.Plan {
	return []model.Plan{
		{
			ID:        model.PlanFree,
			Name:      "Free",
			TokenCost: 0,
			Quotas: model.Quotas{
				MaxVCPUs:      2,
				MaxMemoryMB:   2048,
				MaxDiskGB:     20,
				MaxVMs:        1,
				MaxContainers: 3,
			},
			Features: []string{"1 virtual machine", "3 containers", "Community support"},
		},
		{
			ID:        model.PlanBasic,
			Name:      "Basic",
			TokenCost: 100,
			Quotas: model.Quotas{
				MaxVCPUs:      4,
				MaxMemoryMB:   8192,
				MaxDiskGB:     100,
				MaxVMs:        3,
				MaxContainers: 10,
			},
			Features: []string{"3 virtual machines", "10 containers", "Email support"},
		},
		{
			ID:        model.PlanPro,
			Name:      "Pro",
			TokenCost: 300,
			Quotas: model.Quotas{
				MaxVCPUs:      16,
				MaxMemoryMB:   32768,
				MaxDiskGB:     500,
				MaxVMs:        10,
				MaxContainers: 30,
			},
			Features: []string{"10 virtual machines", "30 containers", "Priority support"},
		},
		{
			ID:        model.PlanEnterprise,
			Name:      "Enterprise",
			TokenCost: 1000,
			Quotas: model.Quotas{
				MaxVCPUs:      64,
				MaxMemoryMB:   131072,
				MaxDiskGB:     2000,
				MaxVMs:        50,
				MaxContainers: 100,
			},
			Features: []string{"50 virtual machines", "100 containers", "Dedicated support"},
		},
		{
			ID:        model.PlanAdmin,
			Name:      "Administrator",
			TokenCost: 0,
			Quotas: model.Quotas{
				MaxVCPUs:      unlimited,
				MaxMemoryMB:   unlimited,
				MaxDiskGB:     unlimited,
				MaxVMs:        unlimited,
				MaxContainers: unlimited,
			},
			Features: []string{"Unlimited resources"},
		},
	}
}

// Catalog is a read-only table of plans.
type Catalog struct {
	plans       map[string]model.Plan
	order       []string
	defaultPlan string
}

// NewCatalog validates a list of plans and builds a catalog from it. If the list is empty, the built-in plans are
// used instead.
func NewCatalog(plans []model.Plan, defaultPlan string) (*Catalog, error) {
	log := log.WithFields(logrus.Fields{"context": "building plan catalog"})

	if len(plans) == 0 {
		plans = Defaults()
	}
	if defaultPlan == "" {
		defaultPlan = model.PlanFree
	}

	c := &Catalog{
		plans:       make(map[string]model.Plan, len(plans)),
		order:       make([]string, 0, len(plans)),
		defaultPlan: defaultPlan,
	}

	for _, p := range plans {
		if p.ID == "" {
			return nil, fmt.Errorf("every plan must have an ID")
		}
		if _, dup := c.plans[p.ID]; dup {
			return nil, fmt.Errorf("duplicate plan ID: %s", p.ID)
		}
		if p.TokenCost < 0 {
			return nil, fmt.Errorf("plan %s has a negative token cost", p.ID)
		}
		for _, d := range model.Dimensions {
			if p.Quotas.Limit(d) < 0 {
				return nil, fmt.Errorf("plan %s has a negative %s ceiling", p.ID, d.Description())
			}
		}
		if p.Name == "" {
			p.Name = p.ID
		}
		c.plans[p.ID] = p
		c.order = append(c.order, p.ID)
	}

	if _, ok := c.plans[defaultPlan]; !ok {
		return nil, fmt.Errorf("the default plan, %s, is not in the catalog", defaultPlan)
	}

	log.Debugf("loaded %d plans; default plan is %s", len(c.order), defaultPlan)

	return c, nil
}

// List returns every plan in catalog order.
func (c *Catalog) List() []model.Plan {
	result := make([]model.Plan, len(c.order))
	for i, id := range c.order {
		result[i] = c.plans[id]
	}
	return result
}

// Get returns the plan with the given ID.
func (c *Catalog) Get(id string) (model.Plan, error) {
	p, ok := c.plans[id]
	if !ok {
		return model.Plan{}, qmserrors.NotFound("plan", id)
	}
	return p, nil
}

// Default returns the plan assigned to newly provisioned users.
func (c *Catalog) Default() model.Plan {
	return c.plans[c.defaultPlan]
}

// ForNewUser returns the plan that a newly provisioned user receives. Administrators get the admin plan when the
// catalog has one.
func (c *Catalog) ForNewUser(isAdmin bool) model.Plan {
	if isAdmin {
		if p, ok := c.plans[model.PlanAdmin]; ok {
			return p
		}
	}
	return c.Default()
}

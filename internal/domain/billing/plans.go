package billing

import (
	"github.com/datagaffer/billing-api/internal/types"
)

// PlanCatalog is the static mapping between this system's plan codes and the
// processor's price identifiers. Lookups are pure; unknown price ids resolve
// to no plan, never an error.
type PlanCatalog struct {
	priceByPlan map[types.PlanCode]string
	planByPrice map[string]types.PlanCode
}

// NewPlanCatalog builds the catalog from plan -> price id pairs. Plans with
// an empty price id are left out of both directions.
func NewPlanCatalog(prices map[types.PlanCode]string) *PlanCatalog {
	c := &PlanCatalog{
		priceByPlan: make(map[types.PlanCode]string, len(prices)),
		planByPrice: make(map[string]types.PlanCode, len(prices)),
	}
	for plan, priceID := range prices {
		if priceID == "" {
			continue
		}
		c.priceByPlan[plan] = priceID
		c.planByPrice[priceID] = plan
	}
	return c
}

// PlanForPrice maps a processor price id to a plan code, or nil when the
// price is not recognized.
func (c *PlanCatalog) PlanForPrice(priceID string) *types.PlanCode {
	if plan, ok := c.planByPrice[priceID]; ok {
		return &plan
	}
	return nil
}

// PriceForPlan maps a plan code to its processor price id.
func (c *PlanCatalog) PriceForPlan(plan types.PlanCode) (string, bool) {
	priceID, ok := c.priceByPlan[plan]
	return priceID, ok
}

package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datagaffer/billing-api/internal/types"
)

func TestPlanCatalog_PlanForPrice(t *testing.T) {
	catalog := NewPlanCatalog(map[types.PlanCode]string{
		types.PlanMonthly: "price_monthly_123",
		types.PlanYearly:  "price_yearly_456",
	})

	plan := catalog.PlanForPrice("price_monthly_123")
	require.NotNil(t, plan)
	assert.Equal(t, types.PlanMonthly, *plan)

	plan = catalog.PlanForPrice("price_yearly_456")
	require.NotNil(t, plan)
	assert.Equal(t, types.PlanYearly, *plan)

	// Unknown price ids resolve to no plan, never an error.
	assert.Nil(t, catalog.PlanForPrice("price_unknown"))
	assert.Nil(t, catalog.PlanForPrice(""))
}

func TestPlanCatalog_PriceForPlan(t *testing.T) {
	catalog := NewPlanCatalog(map[types.PlanCode]string{
		types.PlanMonthly: "price_monthly_123",
	})

	priceID, ok := catalog.PriceForPlan(types.PlanMonthly)
	assert.True(t, ok)
	assert.Equal(t, "price_monthly_123", priceID)

	_, ok = catalog.PriceForPlan(types.PlanYearly)
	assert.False(t, ok)
}

func TestPlanCatalog_SkipsUnconfiguredPrices(t *testing.T) {
	catalog := NewPlanCatalog(map[types.PlanCode]string{
		types.PlanMonthly: "price_monthly_123",
		types.PlanYearly:  "",
	})

	_, ok := catalog.PriceForPlan(types.PlanYearly)
	assert.False(t, ok)
	assert.Nil(t, catalog.PlanForPrice(""))
}

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanCode_Scan(t *testing.T) {
	var p PlanCode
	require.NoError(t, p.Scan("monthly"))
	assert.Equal(t, PlanMonthly, p)

	require.NoError(t, p.Scan([]byte("yearly")))
	assert.Equal(t, PlanYearly, p)

	assert.Error(t, p.Scan("platinum"))
	assert.Error(t, p.Scan(42))
}

func TestPlanCode_Value(t *testing.T) {
	v, err := PlanMonthly.Value()
	require.NoError(t, err)
	assert.Equal(t, "monthly", v)

	_, err = PlanCode("bogus").Value()
	assert.Error(t, err)
}

func TestValidPlanCode(t *testing.T) {
	assert.True(t, ValidPlanCode("monthly"))
	assert.True(t, ValidPlanCode("yearly"))
	assert.False(t, ValidPlanCode("weekly"))
	assert.False(t, ValidPlanCode(""))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "user@example.com", NormalizeEmail("  User@Example.COM "))
	assert.Equal(t, "", NormalizeEmail("   "))
}

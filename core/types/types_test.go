package types

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCalendarArithmetic(t *testing.T) {
	june := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 30, DaysInMonth(june))
	assert.Equal(t, 720.0, HoursInMonth(june))
	assert.Equal(t, 2592000.0, SecondsInMonth(june))

	leapFeb := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 29, DaysInMonth(leapFeb))
}

func TestPartitionPrefix(t *testing.T) {
	k := PartitionKey{
		OrgID:      "org1234567",
		Kind:       KindOCP,
		SourceUUID: "uuid-1",
		Year:       "2026",
		Month:      "06",
	}
	assert.Equal(t,
		"data/org1234567/OCP/source=uuid-1/year=2026/month=06/openshift_pod_usage_line_items_daily/",
		k.Prefix(SubtypePodUsage))

	start, err := k.MonthStart()
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), start)
}

func TestCostFieldsScaleAndMarkup(t *testing.T) {
	c := CostFields{
		UnblendedCost:            decimal.NewFromInt(10),
		BlendedCost:              decimal.NewFromInt(8),
		SavingsPlanEffectiveCost: decimal.NewFromInt(6),
		CalculatedAmortizedCost:  decimal.NewFromInt(10),
	}

	half := c.Scale(decimal.NewFromFloat(0.5))
	assert.True(t, half.UnblendedCost.Equal(decimal.NewFromInt(5)))
	assert.True(t, half.BlendedCost.Equal(decimal.NewFromInt(4)))

	marked := half.ApplyMarkup(decimal.NewFromFloat(0.1))
	assert.True(t, marked.MarkupCost.Equal(decimal.NewFromFloat(0.5)))
	assert.True(t, marked.MarkupCostBlended.Equal(decimal.NewFromFloat(0.4)))
	assert.True(t, marked.MarkupCostSavingsPlan.Equal(decimal.NewFromFloat(0.3)))
	assert.True(t, marked.MarkupCostAmortized.Equal(decimal.NewFromFloat(0.5)))
}

func TestCostFieldsAdd(t *testing.T) {
	a := CostFields{UnblendedCost: decimal.NewFromInt(1)}
	b := CostFields{UnblendedCost: decimal.NewFromInt(2), MarkupCost: decimal.NewFromInt(3)}
	sum := a.Add(b)
	assert.True(t, sum.UnblendedCost.Equal(decimal.NewFromInt(3)))
	assert.True(t, sum.MarkupCost.Equal(decimal.NewFromInt(3)))
}

func TestRecordDayTruncation(t *testing.T) {
	r := PodRecord{UsageStart: time.Date(2026, 6, 3, 17, 45, 0, 0, time.UTC)}
	assert.Equal(t, time.Date(2026, 6, 3, 0, 0, 0, 0, time.UTC), r.Day())
}

package db

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ocp-cost-aggregator/core/rollup"
	"ocp-cost-aggregator/core/types"
)

func TestMoneyRoundsHalfToEven(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1.0000000005", "1"},
		{"1.0000000015", "1.000000002"},
		{"1.0000000025", "1.000000002"},
		{"2.123456789123", "2.123456789"},
		{"-1.0000000005", "-1"},
	}
	for _, tc := range cases {
		got := money(decimal.RequireFromString(tc.in))
		assert.True(t, got.Equal(decimal.RequireFromString(tc.want)),
			"%s -> %s, want %s", tc.in, got.String(), tc.want)
	}
}

func TestOCPUsageValuesMatchColumns(t *testing.T) {
	p := Partition{SourceUUID: "uuid-1", Year: "2026", Month: "06"}
	r := types.OCPUsageSummary{
		UUID:       "row-uuid",
		UsageStart: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		ClusterID:  "cluster-1",
		Namespace:  "web",
		DataSource: types.DataSourcePod,
	}

	values := ocpUsageValues(p, r)
	require.Len(t, values, len(ocpUsageColumns))
	assert.Equal(t, "row-uuid", values[0])
	assert.Equal(t, "uuid-1", values[2])
	assert.Equal(t, "2026", values[3])
	assert.Equal(t, "06", values[4])
	assert.Equal(t, "Pod", values[7])
}

func TestRollupValuesMatchColumns(t *testing.T) {
	p := Partition{SourceUUID: "uuid-2", Year: "2026", Month: "06"}
	r := rollup.Row{
		UUID:       "row-uuid",
		UsageStart: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		Costs: types.CostFields{
			UnblendedCost: decimal.RequireFromString("1.23456789055"),
		},
		DataTransferDirection: types.TransferOut,
	}

	values := rollupValues(p, r)
	require.Len(t, values, len(rollupColumns))

	// cost columns are rounded at this boundary only
	unblended, ok := values[24].(decimal.Decimal)
	require.True(t, ok)
	assert.True(t, unblended.Equal(decimal.RequireFromString("1.234567891")))
	assert.Equal(t, "OUT", values[32])
}

func TestEncodeHelpers(t *testing.T) {
	p := Partition{SourceUUID: "uuid-1", Year: "2026", Month: "06"}

	ocpRows := encodeOCP(p, []types.OCPUsageSummary{{UUID: "a"}, {UUID: "b"}})
	require.Len(t, ocpRows, 2)
	assert.Equal(t, "a", ocpRows[0][0])

	rollupRows := encodeRollup(p, []rollup.Row{{UUID: "c"}})
	require.Len(t, rollupRows, 1)
	assert.Equal(t, "c", rollupRows[0][0])
}

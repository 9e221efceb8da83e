package rollup

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ocp-cost-aggregator/core/types"
)

var day = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func summary(namespace, node, productCode, family, instanceType string, cost float64) types.OCPAWSCostSummary {
	return types.OCPAWSCostSummary{
		UsageStart:     day,
		ClusterID:      "cluster-1",
		ClusterAlias:   "prod",
		DataSource:     types.DataSourcePod,
		Namespace:      namespace,
		Node:           node,
		ProductCode:    productCode,
		ProductFamily:  family,
		InstanceType:   instanceType,
		UsageAccountID: "111122223333",
		Region:         "us-east-1",
		Unit:           "Hrs",
		CurrencyCode:   "USD",
		UsageAmount:    decimal.NewFromInt(1),
		Costs: types.CostFields{
			UnblendedCost: decimal.NewFromFloat(cost),
		},
	}
}

func testRows() []types.OCPAWSCostSummary {
	return []types.OCPAWSCostSummary{
		summary("web", "worker-1", "AmazonEC2", "Compute Instance", "m5.large", 10),
		summary("batch", "worker-1", "AmazonEC2", "Compute Instance", "m5.large", 5),
		summary("web", "worker-2", "AmazonRDS", "Database Instance", "", 7),
		summary("web", "", "AmazonVPC", "Cloud Networking", "", 2),
	}
}

func total(rows []Row) decimal.Decimal {
	sum := decimal.Zero
	for _, r := range rows {
		sum = sum.Add(r.Costs.UnblendedCost)
	}
	return sum
}

func TestBuildClusterTotals(t *testing.T) {
	tables := Build(testRows())
	require.Len(t, tables.ClusterTotals, 1)

	r := tables.ClusterTotals[0]
	assert.Equal(t, "cluster-1", r.ClusterID)
	assert.Equal(t, "prod", r.ClusterAlias)
	assert.Equal(t, "USD", r.CurrencyCode)
	assert.True(t, r.Costs.UnblendedCost.Equal(decimal.NewFromInt(24)))
	assert.True(t, r.UsageAmount.Equal(decimal.NewFromInt(4)))
}

func TestBuildDetailedGroupsByNamespaceAndNode(t *testing.T) {
	tables := Build(testRows())
	require.Len(t, tables.Detailed, 4)
	assert.True(t, total(tables.Detailed).Equal(decimal.NewFromInt(24)))

	// deterministic sort: batch sorts before web
	assert.Equal(t, "batch", tables.Detailed[0].Namespace)
}

func TestBuildDetailedFoldsEqualGroups(t *testing.T) {
	rows := []types.OCPAWSCostSummary{
		summary("web", "worker-1", "AmazonEC2", "Compute Instance", "m5.large", 10),
		summary("web", "worker-1", "AmazonEC2", "Compute Instance", "m5.large", 4),
	}
	tables := Build(rows)
	require.Len(t, tables.Detailed, 1)
	assert.True(t, tables.Detailed[0].Costs.UnblendedCost.Equal(decimal.NewFromInt(14)))
}

func TestBuildByService(t *testing.T) {
	tables := Build(testRows())
	require.Len(t, tables.ByService, 3)

	byCode := map[string]Row{}
	for _, r := range tables.ByService {
		byCode[r.ProductCode] = r
	}
	assert.True(t, byCode["AmazonEC2"].Costs.UnblendedCost.Equal(decimal.NewFromInt(15)))
	assert.True(t, byCode["AmazonRDS"].Costs.UnblendedCost.Equal(decimal.NewFromInt(7)))
}

func TestBuildByAccountAndRegion(t *testing.T) {
	tables := Build(testRows())
	require.Len(t, tables.ByAccount, 1)
	assert.Equal(t, "111122223333", tables.ByAccount[0].UsageAccountID)
	assert.True(t, total(tables.ByAccount).Equal(decimal.NewFromInt(24)))

	require.Len(t, tables.ByRegion, 1)
	assert.Equal(t, "us-east-1", tables.ByRegion[0].Region)
}

func TestBuildComputeRequiresInstanceType(t *testing.T) {
	tables := Build(testRows())
	require.Len(t, tables.Compute, 1)
	assert.Equal(t, "m5.large", tables.Compute[0].InstanceType)
	assert.True(t, tables.Compute[0].Costs.UnblendedCost.Equal(decimal.NewFromInt(15)))
}

func TestBuildStorageRequiresFamilyAndUnit(t *testing.T) {
	rows := testRows()
	storage := summary("web", "", "AmazonEC2", "Storage Snapshot", "", 3)
	storage.Unit = "GB-Mo"
	rows = append(rows, storage)

	// storage family with the wrong unit stays out
	wrongUnit := summary("web", "", "AmazonEC2", "Storage Snapshot", "", 9)
	rows = append(rows, wrongUnit)

	tables := Build(rows)
	require.Len(t, tables.Storage, 1)
	assert.Equal(t, "Storage Snapshot", tables.Storage[0].ProductFamily)
	assert.True(t, tables.Storage[0].Costs.UnblendedCost.Equal(decimal.NewFromInt(3)))
}

func TestBuildDatabaseAndNetworkProductCodes(t *testing.T) {
	tables := Build(testRows())

	require.Len(t, tables.Database, 1)
	assert.Equal(t, "AmazonRDS", tables.Database[0].ProductCode)
	assert.True(t, tables.Database[0].Costs.UnblendedCost.Equal(decimal.NewFromInt(7)))

	require.Len(t, tables.Network, 1)
	assert.Equal(t, "AmazonVPC", tables.Network[0].ProductCode)
	assert.True(t, tables.Network[0].Costs.UnblendedCost.Equal(decimal.NewFromInt(2)))
}

func TestBuildNetworkSummaryCarriesTransferGigabytes(t *testing.T) {
	row := summary("web", "worker-1", "AmazonVPC", "Cloud Networking", "", 2)
	row.InfrastructureDataOutGigabytes = decimal.NewFromFloat(7.5)

	tables := Build([]types.OCPAWSCostSummary{row})
	require.Len(t, tables.Network, 1)
	assert.True(t, tables.Network[0].InfrastructureDataOutGigabytes.Equal(decimal.NewFromFloat(7.5)))
}

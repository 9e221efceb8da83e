package attribute

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ocp-cost-aggregator/core/match"
	"ocp-cost-aggregator/core/ocp"
	"ocp-cost-aggregator/core/types"
)

// nodeDayKey identifies a node within a day
type nodeDayKey struct {
	day  time.Time
	node string
}

// podShare is one namespace's usage on a node-day, the denominator basis
// for the compute split.
type podShare struct {
	namespace string
	labels    string

	usageCPUCoreHours       float64
	usageMemGigabyteHours   float64
	nodeCapCPUCoreHours     float64
	nodeCapMemGigabyteHours float64
}

// Attributor splits matched AWS costs across namespaces
type Attributor struct {
	markup       decimal.Decimal
	clusterID    string
	clusterAlias string

	podsByNode map[nodeDayKey][]podShare
	claims     []ocp.Claim
}

// New creates an attributor over the day's OCP summaries. podSummaries are
// the real-namespace pod rows (unallocated rows excluded); claims come from
// the volume aggregator and may span clusters.
func New(markup decimal.Decimal, clusterID, clusterAlias string, podSummaries []types.OCPUsageSummary, claims []ocp.Claim) *Attributor {
	a := &Attributor{
		markup:       markup,
		clusterID:    clusterID,
		clusterAlias: clusterAlias,
		podsByNode:   make(map[nodeDayKey][]podShare),
		claims:       claims,
	}
	for _, s := range podSummaries {
		if s.DataSource != types.DataSourcePod {
			continue
		}
		switch s.Namespace {
		case types.NamespaceWorkerUnallocated, types.NamespacePlatformUnallocated:
			continue
		}
		k := nodeDayKey{day: s.UsageStart, node: s.Node}
		a.podsByNode[k] = append(a.podsByNode[k], podShare{
			namespace:               s.Namespace,
			labels:                  s.PodLabels,
			usageCPUCoreHours:       s.PodUsageCPUCoreHours,
			usageMemGigabyteHours:   s.PodUsageMemoryGigabyteHours,
			nodeCapCPUCoreHours:     s.NodeCapacityCPUCoreHours,
			nodeCapMemGigabyteHours: s.NodeCapacityMemoryGigabyteHours,
		})
	}
	for k := range a.podsByNode {
		shares := a.podsByNode[k]
		sort.Slice(shares, func(i, j int) bool { return shares[i].namespace < shares[j].namespace })
	}
	return a
}

// Attribute routes every carried line item through its attribution rule and
// returns the attributed summary rows.
func (a *Attributor) Attribute(items []LineItem) ([]types.OCPAWSCostSummary, error) {
	capacities, err := a.diskCapacities(items)
	if err != nil {
		return nil, err
	}

	var out []types.OCPAWSCostSummary
	for _, item := range items {
		if !item.Match.Carried() {
			continue
		}
		// The resource-id match kind drives the rule choice: a PV or CSI
		// hit goes through the storage split even when the row's tags also
		// name a node.
		switch {
		case item.Match.Kind == match.KindPV || item.Match.Kind == match.KindCSI:
			rows, err := a.attributeStorage(item, capacities)
			if err != nil {
				return nil, err
			}
			out = append(out, rows...)

		case item.Direction != types.TransferNone && item.Match.Node != "":
			out = append(out, a.attributeNetwork(item))

		case item.Match.Kind == match.KindNode:
			out = append(out, a.attributeCompute(item)...)

		case item.Match.TagNamespace != "":
			out = append(out, a.attributeDirect(item))

		case item.Match.Node != "":
			// openshift_node tag equality: the cost belongs to that node,
			// split across its pods like a resource-id compute match
			out = append(out, a.attributeCompute(item)...)

		default:
			// cluster-level or generic tag match: carried into the detailed
			// output at full cost with no namespace split
			row := a.baseRow(item)
			row.DataSource = types.DataSourcePod
			row.Costs = item.Costs.ApplyMarkup(a.markup)
			out = append(out, row)
		}
	}
	return out, nil
}

// baseRow fills the descriptive columns shared by every attribution rule
func (a *Attributor) baseRow(item LineItem) types.OCPAWSCostSummary {
	return types.OCPAWSCostSummary{
		UUID:         uuid.New().String(),
		UsageStart:   item.Raw.Day(),
		ClusterID:    a.clusterID,
		ClusterAlias: a.clusterAlias,

		ResourceID:       item.Raw.ResourceID,
		ProductCode:      item.ProductCode,
		ProductFamily:    item.Raw.ProductFamily,
		InstanceType:     item.Raw.InstanceType,
		UsageAccountID:   item.Raw.UsageAccountID,
		AvailabilityZone: item.Raw.AvailabilityZone,
		Region:           item.Raw.Region,
		Unit:             item.Raw.PricingUnit,
		CurrencyCode:     item.Raw.CurrencyCode,

		UsageAmount: decimal.NewFromFloat(item.Raw.UsageAmount),

		DataTransferDirection: item.Direction,

		Tags:            serializeTags(item),
		AWSCostCategory: item.Raw.CostCategory,

		ResourceIDMatched: item.Match.ResourceIDMatched,
		MatchedTag:        item.Match.MatchedTag,
	}
}

// clampRatio limits ratio so the running total never exceeds one source
// cost; returns the allowed ratio and the new running total.
func clampRatio(ratio, used decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	remaining := decimal.NewFromInt(1).Sub(used)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	if ratio.GreaterThan(remaining) {
		ratio = remaining
	}
	return ratio, used.Add(ratio)
}

package attribute

import (
	"strings"

	"github.com/shopspring/decimal"

	"ocp-cost-aggregator/core/labels"
	"ocp-cost-aggregator/core/types"
)

// attributeCompute splits a node-matched line item across the pods that ran
// on the node that day. Each pod's ratio is the larger of its cpu and
// memory share of node capacity, which deliberately overcounts rather than
// undercounts; the running-total clamp keeps the attributed sum within the
// source cost.
func (a *Attributor) attributeCompute(item LineItem) []types.OCPAWSCostSummary {
	day := item.Raw.Day()
	shares := a.podsByNode[nodeDayKey{day: day, node: item.Match.Node}]

	var out []types.OCPAWSCostSummary
	used := decimal.Zero
	for _, share := range shares {
		var cpuRatio, memRatio float64
		if share.nodeCapCPUCoreHours > 0 {
			cpuRatio = share.usageCPUCoreHours / share.nodeCapCPUCoreHours
		}
		if share.nodeCapMemGigabyteHours > 0 {
			memRatio = share.usageMemGigabyteHours / share.nodeCapMemGigabyteHours
		}
		ratio := cpuRatio
		if memRatio > ratio {
			ratio = memRatio
		}
		if ratio == 0 {
			continue
		}

		allowed, newUsed := clampRatio(decimal.NewFromFloat(ratio), used)
		used = newUsed
		if allowed.IsZero() {
			continue
		}

		row := a.baseRow(item)
		row.DataSource = types.DataSourcePod
		row.Namespace = share.namespace
		row.Node = item.Match.Node
		row.UsageAmount = row.UsageAmount.Mul(allowed)
		row.Costs = item.Costs.Scale(allowed).ApplyMarkup(a.markup)
		if row.Tags == "{}" && share.labels != "" {
			row.Tags = share.labels
		}
		out = append(out, row)
	}
	return out
}

// attributeDirect assigns the full cost of a tag-only match to the tagged
// namespace with no proportioning.
func (a *Attributor) attributeDirect(item LineItem) types.OCPAWSCostSummary {
	row := a.baseRow(item)
	row.Namespace = item.Match.TagNamespace
	row.Node = item.Match.Node
	row.DataSource = types.DataSourcePod
	if isStorageFamily(item) {
		row.DataSource = types.DataSourceStorage
	}
	row.Costs = item.Costs.ApplyMarkup(a.markup)
	return row
}

func isStorageFamily(item LineItem) bool {
	switch {
	case containsFold(item.Raw.ProductFamily, "storage"):
		return true
	case item.ProductCode == "AmazonS3" || item.ProductCode == "AmazonEFS":
		return true
	default:
		return false
	}
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), sub)
}

func serializeTags(item LineItem) string {
	return labels.Serialize(item.Match.Tags)
}

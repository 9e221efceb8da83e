package attribute

import (
	"time"

	"github.com/shopspring/decimal"

	"ocp-cost-aggregator/core/labels"
	"ocp-cost-aggregator/core/match"
	"ocp-cost-aggregator/core/ocp"
	"ocp-cost-aggregator/core/types"
	"ocp-cost-aggregator/internal/errors"
)

// diskDayKey identifies one billed disk within a day
type diskDayKey struct {
	day        time.Time
	resourceID string
}

// diskCapacities derives per-disk gigabyte capacity from the billing data:
// the disk's daily cost divided by its hourly rate recovers the GB-month
// quantity the bill priced. Computed once per (resource, day) so a volume
// shared across clusters is sized globally.
func (a *Attributor) diskCapacities(items []LineItem) (map[diskDayKey]decimal.Decimal, error) {
	maxCost := make(map[diskDayKey]decimal.Decimal)
	maxRate := make(map[diskDayKey]decimal.Decimal)

	for _, item := range items {
		if item.Match.Kind != match.KindPV && item.Match.Kind != match.KindCSI {
			continue
		}
		k := diskDayKey{day: item.Raw.Day(), resourceID: item.Raw.ResourceID}
		cost := decimal.NewFromFloat(item.Raw.UnblendedCost)
		rate := decimal.NewFromFloat(item.Raw.UnblendedRate)
		if cost.GreaterThan(maxCost[k]) {
			maxCost[k] = cost
		}
		if rate.GreaterThan(maxRate[k]) {
			maxRate[k] = rate
		}
	}

	out := make(map[diskDayKey]decimal.Decimal, len(maxCost))
	for k, cost := range maxCost {
		rate := maxRate[k]
		if rate.IsZero() {
			continue
		}
		hours := decimal.NewFromFloat(types.HoursInMonth(k.day))
		out[k] = cost.Div(rate.Div(hours)).Round(0)
	}
	return out, nil
}

// attributeStorage splits a PV- or CSI-matched line item across the claims
// referencing the disk, proportional to claimed capacity. Capacity the
// claims do not cover lands on "Storage unattributed" for the canonical
// cluster.
func (a *Attributor) attributeStorage(item LineItem, capacities map[diskDayKey]decimal.Decimal) ([]types.OCPAWSCostSummary, error) {
	day := item.Raw.Day()
	claims := a.matchingClaims(item, day)

	diskGB := capacities[diskDayKey{day: day, resourceID: item.Raw.ResourceID}]
	if diskGB.LessThanOrEqual(decimal.Zero) {
		for _, c := range claims {
			if c.CapacityBytes > 0 {
				return nil, errors.Newf(errors.KindAttributionInvariant,
					"disk capacity %s for resource %s is non-positive while pvc %s claims %v bytes",
					diskGB, item.Raw.ResourceID, c.PVC, c.CapacityBytes)
			}
		}
		row := a.unattributedRow(item, a.clusterID, a.clusterAlias, item.Costs)
		return []types.OCPAWSCostSummary{row}, nil
	}

	var out []types.OCPAWSCostSummary
	used := decimal.Zero
	canonicalID, canonicalAlias := a.clusterID, a.clusterAlias

	for i, c := range claims {
		// canonical cluster: lexicographically smallest cluster id among
		// the clusters referencing the disk
		if i == 0 || c.ClusterID < canonicalID {
			canonicalID, canonicalAlias = c.ClusterID, c.ClusterAlias
		}

		claimGB := decimal.NewFromFloat(c.CapacityBytes / (1 << 30))
		if claimGB.IsZero() {
			continue
		}
		ratio := claimGB.Div(diskGB)
		allowed, newUsed := clampRatio(ratio, used)
		used = newUsed
		if allowed.IsZero() {
			continue
		}

		row := a.baseRow(item)
		row.ClusterID = c.ClusterID
		row.ClusterAlias = c.ClusterAlias
		row.DataSource = types.DataSourceStorage
		row.Namespace = c.Namespace
		row.Node = c.Node
		row.PersistentVolumeClaim = c.PVC
		row.PersistentVolume = c.PV
		row.StorageClass = c.StorageClass
		row.UsageAmount = row.UsageAmount.Mul(allowed)
		row.Costs = item.Costs.Scale(allowed).ApplyMarkup(a.markup)
		if row.Tags == "{}" && len(c.Labels) > 0 {
			row.Tags = labels.Serialize(c.Labels)
		}
		out = append(out, row)
	}

	residual := decimal.NewFromInt(1).Sub(used)
	if residual.IsPositive() {
		costs := item.Costs.Scale(residual)
		out = append(out, a.unattributedRow(item, canonicalID, canonicalAlias, costs))
	}
	return out, nil
}

// matchingClaims returns the claims referencing the matched PV or CSI
// handle on the given day, in the aggregator's deterministic order.
func (a *Attributor) matchingClaims(item LineItem, day time.Time) []ocp.Claim {
	var out []ocp.Claim
	for _, c := range a.claims {
		if !c.Day.Equal(day) {
			continue
		}
		if item.Match.CSIHandle != "" && c.CSIHandle == item.Match.CSIHandle {
			out = append(out, c)
			continue
		}
		if item.Match.PV != "" && c.PV == item.Match.PV {
			out = append(out, c)
		}
	}
	return out
}

// unattributedRow builds a "Storage unattributed" row carrying costs
func (a *Attributor) unattributedRow(item LineItem, clusterID, clusterAlias string, costs types.CostFields) types.OCPAWSCostSummary {
	row := a.baseRow(item)
	row.ClusterID = clusterID
	row.ClusterAlias = clusterAlias
	row.DataSource = types.DataSourceStorage
	row.Namespace = types.NamespaceStorageUnattributed
	row.Costs = costs.ApplyMarkup(a.markup)
	return row
}

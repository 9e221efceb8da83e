package attribute

import (
	"github.com/shopspring/decimal"

	"ocp-cost-aggregator/core/types"
)

// attributeNetwork books a data-transfer line item against the matching
// node under "Network unattributed". Per-namespace network attribution is
// not possible from CUR data; the direction split keeps ingress and egress
// visible per node.
func (a *Attributor) attributeNetwork(item LineItem) types.OCPAWSCostSummary {
	row := a.baseRow(item)
	row.DataSource = types.DataSourceNode
	row.Namespace = types.NamespaceNetworkUnattributed
	row.Node = item.Match.Node
	row.Costs = item.Costs.ApplyMarkup(a.markup)

	amount := decimal.NewFromFloat(item.Raw.UsageAmount)
	switch item.Direction {
	case types.TransferIn:
		row.InfrastructureDataInGigabytes = amount
	case types.TransferOut:
		row.InfrastructureDataOutGigabytes = amount
	}
	return row
}

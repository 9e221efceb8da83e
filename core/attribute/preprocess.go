// Package attribute splits matched AWS costs across OpenShift namespaces.
// All cost arithmetic runs in decimal; rounding happens only at the
// warehouse-write boundary.
package attribute

import (
	"strings"

	"github.com/shopspring/decimal"

	"ocp-cost-aggregator/core/match"
	"ocp-cost-aggregator/core/types"
)

// LineItem is a preprocessed, matched AWS line item ready for attribution
type LineItem struct {
	Raw   types.AWSLineItem
	Match match.Result

	// ProductCode is the effective product code after the marketplace rule
	ProductCode string

	// Direction classifies EC2 data-transfer line items
	Direction types.DataTransferDirection

	// Costs carries the preprocessed source cost fields, markup unset
	Costs types.CostFields
}

// Preprocess applies the line-item rules that run before any attribution:
// savings-plan zeroing, amortized-cost derivation, the marketplace product
// code substitution, and data-transfer direction classification.
func Preprocess(item types.AWSLineItem, res match.Result) LineItem {
	unblended := decimal.NewFromFloat(item.UnblendedCost)
	blended := decimal.NewFromFloat(item.BlendedCost)
	spEffective := decimal.NewFromFloat(item.SavingsPlanEffectiveCost)

	if item.LineItemType == types.LineItemTypeSavingsPlan {
		unblended = decimal.Zero
		blended = decimal.Zero
	}

	amortized := spEffective
	if item.LineItemType == types.LineItemTypeTax || item.LineItemType == types.LineItemTypeUsage {
		amortized = unblended
	}

	productCode := item.ProductCode
	if item.BillingEntity == types.BillingEntityMarketplace && item.ProductName != "" {
		productCode = item.ProductName
	}

	return LineItem{
		Raw:         item,
		Match:       res,
		ProductCode: productCode,
		Direction:   transferDirection(item),
		Costs: types.CostFields{
			UnblendedCost:            unblended,
			BlendedCost:              blended,
			SavingsPlanEffectiveCost: spEffective,
			CalculatedAmortizedCost:  amortized,
		},
	}
}

// transferDirection derives the data-transfer direction for EC2 rows in
// the Data Transfer product family.
func transferDirection(item types.AWSLineItem) types.DataTransferDirection {
	if item.ProductCode != "AmazonEC2" || item.ProductFamily != "Data Transfer" {
		return types.TransferNone
	}
	usageType := strings.ToLower(item.UsageType)
	operation := strings.ToLower(item.Operation)

	switch {
	case strings.Contains(usageType, "in-bytes"):
		return types.TransferIn
	case strings.Contains(usageType, "out-bytes"):
		return types.TransferOut
	case strings.Contains(usageType, "regional-bytes") && strings.Contains(operation, "-in"):
		return types.TransferIn
	case strings.Contains(usageType, "regional-bytes") && strings.Contains(operation, "-out"):
		return types.TransferOut
	default:
		return types.TransferNone
	}
}

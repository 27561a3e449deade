package quoting

import "github.com/shopspring/decimal"

// Edge returns the complete-set edge 1 - (bidUp + bidDown).
func Edge(bidUp, bidDown decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(1).Sub(bidUp.Add(bidDown))
}

// EdgeOK reports whether edge clears the minimum.
func EdgeOK(edge, minEdge decimal.Decimal) bool {
	return edge.GreaterThanOrEqual(minEdge)
}

package quoting_test

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/updownmm/internal/domain"
)

var t0 = time.Date(2025, 12, 14, 16, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func book(token, bid, ask string, at time.Time) *domain.TopOfBook {
	return &domain.TopOfBook{
		TokenID:     token,
		BestBid:     dec(bid),
		BestAsk:     dec(ask),
		BestBidSize: dec("100"),
		BestAskSize: dec("100"),
		UpdatedAt:   at,
	}
}

func market(series domain.Series, secondsToEnd int64) domain.MarketInstance {
	return domain.MarketInstance{
		ID:          "m1",
		Slug:        "btc-updown-15m-1765728000",
		Series:      series,
		UpTokenID:   "up",
		DownTokenID: "down",
		EndTime:     t0.Add(time.Duration(secondsToEnd) * time.Second),
	}
}

func resting(o domain.Outcome, token, price, size string, placedAt time.Time) *domain.RestingOrder {
	return &domain.RestingOrder{
		OrderID:  "ord-" + token,
		TokenID:  token,
		Outcome:  o,
		Side:     domain.SideBuy,
		Price:    dec(price),
		Size:     dec(size),
		PlacedAt: placedAt,
		Reason:   domain.PlaceQuote,
	}
}

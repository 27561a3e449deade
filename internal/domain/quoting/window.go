package quoting

import (
	"fmt"
	"time"

	"github.com/alejandrodnm/updownmm/internal/domain"
)

// Window is the trade-eligible range of secondsToEnd, both ends inclusive.
type Window struct {
	Lo     int64
	Hi     int64
	HardHi int64
}

// Contains reports whether secondsToEnd is inside the window.
func (w Window) Contains(secondsToEnd int64) bool {
	return secondsToEnd >= w.Lo && secondsToEnd <= w.Hi
}

// TradeWindow clamps the configured range to the series' hard lifetime.
func TradeWindow(series domain.Series, minSecondsToEnd, maxSecondsToEnd int64) Window {
	hard := int64(series.HardLifetime() / time.Second)
	lo := max(0, minSecondsToEnd)
	hi := min(hard, max(lo, maxSecondsToEnd))
	return Window{Lo: lo, Hi: hi, HardHi: hard}
}

// WindowCheck is the outcome of the scope gate.
type WindowCheck struct {
	SecondsToEnd int64
	Window       Window
	InScope      bool
	Reason       domain.CancelReason
	Detail       string
}

// CheckWindow decides whether the market is in scope at now.
func CheckWindow(m domain.MarketInstance, now time.Time, p Params) WindowCheck {
	secs := m.SecondsToEnd(now)
	w := TradeWindow(m.Series, p.MinSecondsToEnd, p.MaxSecondsToEnd)
	c := WindowCheck{SecondsToEnd: secs, Window: w}

	switch {
	case secs < 0 || secs > w.HardHi:
		c.Reason = domain.CancelOutsideLifetime
		c.Detail = fmt.Sprintf("secondsToEnd=%d outside lifetime [0,%d]", secs, w.HardHi)
	case !w.Contains(secs):
		c.Reason = domain.CancelOutsideTimeWindow
		c.Detail = fmt.Sprintf("secondsToEnd=%d outside window [%d,%d]", secs, w.Lo, w.Hi)
	default:
		c.InScope = true
		c.Detail = fmt.Sprintf("secondsToEnd=%d in [%d,%d]", secs, w.Lo, w.Hi)
	}
	return c
}

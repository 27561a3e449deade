package quoting

import (
	"fmt"
	"time"

	"github.com/alejandrodnm/updownmm/internal/domain"
)

// BookCheck is the outcome of the top-of-book gate for both legs.
type BookCheck struct {
	Up     domain.TopOfBook
	Down   domain.TopOfBook
	OK     bool
	Detail string
}

// Book returns the reading of one leg. Only meaningful when OK.
func (c BookCheck) Book(o domain.Outcome) domain.TopOfBook {
	if o == domain.OutcomeDown {
		return c.Down
	}
	return c.Up
}

// CheckBooks applies the missing/stale policy to both legs. A leg is usable
// only when present, two-sided and no older than staleAfter.
func CheckBooks(up, down *domain.TopOfBook, now time.Time, staleAfter time.Duration) BookCheck {
	if ok, why := usable(up, now, staleAfter); !ok {
		return BookCheck{Detail: "up " + why}
	}
	if ok, why := usable(down, now, staleAfter); !ok {
		return BookCheck{Detail: "down " + why}
	}
	return BookCheck{
		Up:     *up,
		Down:   *down,
		OK:     true,
		Detail: fmt.Sprintf("ages up=%dms down=%dms", up.Age(now).Milliseconds(), down.Age(now).Milliseconds()),
	}
}

func usable(b *domain.TopOfBook, now time.Time, staleAfter time.Duration) (bool, string) {
	if b == nil {
		return false, "missing"
	}
	if !b.Complete() {
		return false, "one-sided"
	}
	if age := b.Age(now); age > staleAfter {
		return false, fmt.Sprintf("stale %dms", age.Milliseconds())
	}
	return true, ""
}

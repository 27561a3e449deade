package quoting_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alejandrodnm/updownmm/internal/domain"
	"github.com/alejandrodnm/updownmm/internal/domain/quoting"
)

func TestReconcileLeg_PlaceWhenEmpty(t *testing.T) {
	d, reason := quoting.ReconcileLeg(nil, dec("0.45"), dec("10"), t0, 5*time.Second)
	assert.Equal(t, quoting.LegPlace, d)
	assert.Empty(t, reason)
}

func TestReconcileLeg_Throttle(t *testing.T) {
	placed := t0
	existing := resting(domain.OutcomeUp, "up", "0.45", "10", placed)

	d, _ := quoting.ReconcileLeg(existing, dec("0.46"), dec("10"), placed.Add(3000*time.Millisecond), 5*time.Second)
	assert.Equal(t, quoting.LegHold, d)

	d, reason := quoting.ReconcileLeg(existing, dec("0.46"), dec("10"), placed.Add(5001*time.Millisecond), 5*time.Second)
	assert.Equal(t, quoting.LegReplace, d)
	assert.Equal(t, domain.CancelReplacePrice, reason)
}

func TestReconcileLeg_Reasons(t *testing.T) {
	existing := resting(domain.OutcomeUp, "up", "0.45", "10", t0)
	later := t0.Add(time.Minute)

	d, _ := quoting.ReconcileLeg(existing, dec("0.450"), dec("10.00"), later, 5*time.Second)
	assert.Equal(t, quoting.LegHold, d)

	_, reason := quoting.ReconcileLeg(existing, dec("0.45"), dec("12"), later, 5*time.Second)
	assert.Equal(t, domain.CancelReplaceSize, reason)

	_, reason = quoting.ReconcileLeg(existing, dec("0.44"), dec("12"), later, 5*time.Second)
	assert.Equal(t, domain.CancelReplacePriceAndSize, reason)
}

package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/updownmm/internal/domain"
)

// Console implementa ports.StatusNotifier.
type Console struct {
	out io.Writer
	now func() time.Time
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout, now: time.Now}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w, now: time.Now}
}

// NotifyStatus imprime una fila por mercado seguido.
func (c *Console) NotifyStatus(_ context.Context, markets []domain.MarketStatus) error {
	ts := c.now().Format("15:04:05")
	if len(markets) == 0 {
		fmt.Fprintf(c.out, "[%s] no markets tracked\n", ts)
		return nil
	}

	rows := make([]domain.MarketStatus, len(markets))
	copy(rows, markets)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].SecondsToEnd < rows[j].SecondsToEnd })

	quoting := 0
	for _, m := range rows {
		if m.Phase == domain.PhaseQuoting || m.Phase == domain.PhaseTopUpPending {
			quoting++
		}
	}
	fmt.Fprintf(c.out, "[%s] %d markets, %d quoting\n", ts, len(rows), quoting)

	table := tablewriter.NewWriter(c.out)
	table.Header("Market", "Series", "T-end", "Phase", "Edge", "Up", "Down", "Imb", "Up order", "Down order", "Last")
	for _, m := range rows {
		imb := m.UpShares.Sub(m.DownShares)
		table.Append(
			compactName(m.Slug, 32),
			string(m.Series),
			formatCountdown(m.SecondsToEnd),
			shortPhase(m.Phase),
			m.Edge.StringFixed(3),
			m.UpShares.StringFixed(2),
			m.DownShares.StringFixed(2),
			imb.StringFixed(2),
			formatOrder(m.UpOrder),
			formatOrder(m.DownOrder),
			compactName(m.LastReason, 24),
		)
	}
	table.Render()
	return nil
}

// PrintSummary imprime el resumen de un run al terminar.
func (c *Console) PrintSummary(s domain.RunSummary) {
	fmt.Fprintf(c.out, "\n=== RUN %s ===\n", s.RunID)
	fmt.Fprintf(c.out, "  Decisions: %d  Placed: %d  Failed: %d  Canceled: %d\n",
		s.Decisions, s.Placed, s.PlaceFailed, s.Canceled)
	fmt.Fprintf(c.out, "  Fills: %d  Up: %s  Down: %s  Cost: $%s\n",
		s.Fills,
		s.FilledShares[domain.OutcomeUp].StringFixed(2),
		s.FilledShares[domain.OutcomeDown].StringFixed(2),
		s.FilledNotional.StringFixed(2),
	)
	if len(s.CancelReasons) == 0 {
		return
	}

	reasons := make([]string, 0, len(s.CancelReasons))
	for r := range s.CancelReasons {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)

	table := tablewriter.NewWriter(c.out)
	table.Header("Cancel reason", "Count")
	for _, r := range reasons {
		table.Append(r, fmt.Sprintf("%d", s.CancelReasons[r]))
	}
	table.Render()
}

func formatOrder(o *domain.RestingOrder) string {
	if o == nil {
		return "-"
	}
	return fmt.Sprintf("%s x %s", o.Price.StringFixed(2), o.Remaining().StringFixed(2))
}

func formatCountdown(sec int64) string {
	if sec < 0 {
		return "ended"
	}
	return fmt.Sprintf("%dm%02ds", sec/60, sec%60)
}

func shortPhase(p domain.Phase) string {
	switch p {
	case domain.PhaseQuoting:
		return "QUOTING"
	case domain.PhaseNoEdge:
		return "NO_EDGE"
	case domain.PhaseTopUpPending:
		return "TOP_UP"
	case domain.PhaseOutOfScope:
		return "OUT"
	}
	return string(p)
}

// compactName recorta s a n runas.
func compactName(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

package notify

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/polyedge/internal/application/engine"
	"github.com/alejandrodnm/polyedge/internal/domain"
)

const questionWidth = 40

// Console implementa ports.Reporter.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un reporter que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un reporter para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// PrintCycle imprime el resumen del ciclo y, en modo tabla, cada acción.
func (c *Console) PrintCycle(r domain.CycleReport) {
	capital := r.Capital
	fmt.Fprintf(c.out, "[%s][PAPER] %d signals | +%d enter | +%d add-on | %d exit | %d skip | %d dup | avail $%.2f | alloc $%.2f | pnl $%+.2f | %d open\n",
		r.FinishedAt.Format("15:04:05"), r.SignalsReceived,
		len(r.Entries), len(r.AddOns), len(r.Exits), len(r.Skips), r.Duplicates,
		capital.Available, capital.Allocated, capital.RealizedPnL, capital.OpenPositions)

	if c.table {
		actions := make([]domain.TradeRecord, 0, len(r.Entries)+len(r.AddOns)+len(r.Exits)+len(r.Skips))
		actions = append(actions, r.Exits...)
		actions = append(actions, r.AddOns...)
		actions = append(actions, r.Entries...)
		actions = append(actions, r.Skips...)
		if len(actions) > 0 {
			c.printActions(actions)
		}
	}

	for i, w := range r.Warnings {
		if i >= 3 {
			fmt.Fprintf(c.out, "  !! ... %d more warnings\n", len(r.Warnings)-i)
			break
		}
		fmt.Fprintf(c.out, "  !! %s\n", w)
	}
}

func (c *Console) printActions(actions []domain.TradeRecord) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Action", "Market", "Side", "Price", "Contracts", "Amount", "PnL", "Detail")

	for _, a := range actions {
		detail := a.Reason
		if a.Action == domain.ActionExit {
			detail = string(a.ExitReason)
		}
		if a.Action == domain.ActionEnter || a.Action == domain.ActionAddOn {
			detail = fmt.Sprintf("edge %.3f %s", a.Edge, a.Confidence)
		}
		pnl := ""
		if a.Action == domain.ActionExit {
			pnl = fmt.Sprintf("$%+.2f", a.RealizedPnL)
		}
		table.Append(
			string(a.Action),
			label(a.Question, a.MarketID),
			string(a.Side),
			priceLabel(a.Price, a.Action),
			fmt.Sprintf("%.0f", a.Contracts),
			fmt.Sprintf("$%.2f", a.Amount),
			pnl,
			engine.TruncateStr(detail, 48),
		)
	}
	table.Render()
}

// PrintStatus imprime el estado del engine y las posiciones abiertas.
func (c *Console) PrintStatus(s domain.EngineStatus, open []domain.Position) {
	last := "never"
	if !s.LastCycle.IsZero() {
		last = s.LastCycle.UTC().Format(time.RFC3339)
	}
	fmt.Fprintf(c.out, "\nPAPER STATUS: %d open | avail $%.2f | alloc $%.2f | realized $%+.2f | drawdown %.1f%% | last cycle %s\n",
		s.OpenPositions, s.Available, s.Allocated, s.RealizedPnL, s.Drawdown*100, last)

	if len(open) == 0 {
		fmt.Fprintln(c.out, "  no open positions")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("ID", "Market", "Side", "Entry", "Avg", "Mark", "Unreal%", "Cost", "Add-ons", "Age")
	for _, p := range open {
		mark, unreal := "-", "-"
		if p.LastMark > 0 {
			mark = fmt.Sprintf("%.3f", p.LastMark)
			unreal = fmt.Sprintf("%+.1f%%", p.UnrealizedPct*100)
		}
		table.Append(
			p.ID,
			label(p.Question, p.MarketID),
			string(p.Side),
			fmt.Sprintf("%.3f", p.EntryPrice),
			fmt.Sprintf("%.3f", p.AvgPrice()),
			mark,
			unreal,
			fmt.Sprintf("$%.2f", p.CostBasis),
			fmt.Sprintf("%d", p.AddOns),
			age(p.EntryTime, s.LastCycle),
		)
	}
	table.Render()
}

// PrintReport imprime el resumen del periodo con PnL por motivo de salida.
func (c *Console) PrintReport(r domain.RunReport) {
	fmt.Fprintf(c.out, "\nPAPER REPORT %s → %s\n", r.From.Format("2006-01-02 15:04"), r.To.Format("2006-01-02 15:04"))
	fmt.Fprintf(c.out, "  cycles %d | entries %d | add-ons %d | exits %d | skips %d\n",
		r.Cycles, r.Entries, r.AddOns, r.Exits, r.Skips)
	fmt.Fprintf(c.out, "  closed %d | win rate %.1f%% | realized $%+.2f\n",
		r.Wins+r.Losses, r.WinRate()*100, r.RealizedPnL)

	if len(r.ByReason) > 0 {
		reasons := make([]string, 0, len(r.ByReason))
		for reason := range r.ByReason {
			reasons = append(reasons, string(reason))
		}
		sort.Strings(reasons)

		table := tablewriter.NewWriter(c.out)
		table.Header("Exit reason", "Count", "PnL", "Avg PnL")
		for _, reason := range reasons {
			st := r.ByReason[domain.ExitReason(reason)]
			avg := 0.0
			if st.Count > 0 {
				avg = st.PnL / float64(st.Count)
			}
			table.Append(reason, fmt.Sprintf("%d", st.Count), fmt.Sprintf("$%+.2f", st.PnL), fmt.Sprintf("$%+.2f", avg))
		}
		table.Render()
	}

	if lc := r.LastCapital; lc != nil {
		fmt.Fprintf(c.out, "  capital: initial $%.2f | equity $%.2f | peak $%.2f | written off $%.2f | drawdown %.1f%%\n",
			lc.Initial, lc.Equity(), lc.PeakEquity, lc.WrittenOff, lc.Drawdown()*100)
	}
}

// label usa la pregunta truncada o el market id si no hay pregunta.
func label(question, marketID string) string {
	q := strings.TrimSpace(question)
	if q == "" {
		return marketID
	}
	return engine.TruncateStr(q, questionWidth)
}

func priceLabel(p float64, action domain.TradeAction) string {
	if action == domain.ActionSkip {
		return "-"
	}
	return fmt.Sprintf("%.4f", p)
}

func age(since, now time.Time) string {
	if since.IsZero() || now.IsZero() || now.Before(since) {
		return "-"
	}
	d := now.Sub(since)
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}

package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alejandrodnm/polyedge/internal/domain"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

const (
	defaultTop      = 10
	titleWidth      = 42
	maxFailureLines = 10
)

// Console implementa ports.Notifier.
type Console struct {
	out   io.Writer
	table bool
	top   int
}

// NewConsole crea un notificador que escribe a stdout.
// table=false imprime una línea compacta por run; top limita las filas de cada ranking.
func NewConsole(table bool, top int) *Console {
	return NewConsoleWriter(os.Stdout, table, top)
}

// NewConsoleWriter crea un notificador sobre w (tests).
func NewConsoleWriter(w io.Writer, table bool, top int) *Console {
	if top <= 0 {
		top = defaultTop
	}
	return &Console{out: w, table: table, top: top}
}

// Notify imprime el resultado del run en el modo configurado.
func (c *Console) Notify(_ context.Context, run domain.Run) error {
	if c.table {
		c.printFull(run)
	} else {
		c.printCompact(run)
	}
	return nil
}

// printCompact imprime el resumen y los 3 mejores por EV en una línea.
func (c *Console) printCompact(run domain.Run) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %d mkts → fc:%d edges:%d fail:%d",
		run.FinishedAt.Local().Format("15:04:05"),
		run.MarketsScanned, run.Forecasts, len(run.ByEV), len(run.Failures))

	for i, r := range run.ByEV {
		if i >= 3 {
			break
		}
		fmt.Fprintf(&sb, " | %s %s edge%+.3f ev%.2f",
			domain.TruncateQuestion(r.Title, r.ConditionID, 25), r.Outcome, r.Edge, r.AdjustedEV)
	}
	fmt.Fprintln(c.out, sb.String())
}

// printFull imprime las dos tablas de ranking y los mercados omitidos.
func (c *Console) printFull(run domain.Run) {
	fmt.Fprintf(c.out, "\n[%s] run %s: %d markets, %d forecasts, %d priced tokens, %d failures (%s)\n",
		run.FinishedAt.Local().Format("15:04:05"), shortID(run.ID),
		run.MarketsScanned, run.Forecasts, len(run.Edges), len(run.Failures),
		run.Duration().Round(time.Second))

	if len(run.ByEV) == 0 {
		fmt.Fprintln(c.out, "  no positive edge found")
	} else {
		fmt.Fprintf(c.out, "\n=== BY EDGE (top %d of %d) ===\n", min(c.top, len(run.ByEdge)), len(run.ByEdge))
		c.printTable(run.ByEdge)
		fmt.Fprintf(c.out, "\n=== BY EXPECTED VALUE (top %d of %d) ===\n", min(c.top, len(run.ByEV)), len(run.ByEV))
		c.printTable(run.ByEV)
		fmt.Fprintln(c.out, "  P(yes) = forecast | Edge = P(outcome) - best ask | EV = edge × ask size")
	}

	c.printFailures(run.Failures)
	fmt.Fprintln(c.out)
}

// printTable imprime hasta c.top registros.
func (c *Console) printTable(records []domain.EdgeRecord) {
	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Market", "Outcome", "P(yes)", "Range", "Conf", "Ask", "Size", "Edge", "EV")

	for i, r := range records {
		if i >= c.top {
			break
		}
		table.Append(
			fmt.Sprintf("%d", i+1),
			domain.TruncateQuestion(r.Title, r.ConditionID, titleWidth),
			r.Outcome,
			fmt.Sprintf("%.2f", r.Probability),
			fmt.Sprintf("%.2f-%.2f", r.Uncertainty.LowerBound, r.Uncertainty.UpperBound),
			fmt.Sprintf("%.2f", r.ModelConfidence),
			fmt.Sprintf("%.3f", r.BestAskPrice),
			fmt.Sprintf("%.0f", r.BestAskSize),
			fmt.Sprintf("%+.3f", r.Edge),
			fmt.Sprintf("%.2f", r.AdjustedEV),
		)
	}
	table.Render()
}

func (c *Console) printFailures(failures []domain.MarketFailure) {
	if len(failures) == 0 {
		return
	}
	fmt.Fprintf(c.out, "\n  skipped %d markets:\n", len(failures))
	for i, f := range failures {
		if i >= maxFailureLines {
			fmt.Fprintf(c.out, "    ... and %d more\n", len(failures)-maxFailureLines)
			break
		}
		fmt.Fprintf(c.out, "    %s [%s] %s\n", shortID(f.ConditionID), f.Stage, f.Reason)
	}
}

// PrintRecords imprime cada registro en detalle, en color si la terminal lo soporta.
func (c *Console) PrintRecords(records []domain.EdgeRecord) {
	if len(records) == 0 {
		fmt.Fprintln(c.out, "  no records")
		return
	}

	title := color.New(color.FgCyan, color.Bold)
	outcome := color.New(color.FgYellow, color.Bold)
	good := color.New(color.FgGreen)
	bad := color.New(color.FgRed)
	unc := color.New(color.FgMagenta)

	for i, r := range records {
		if i > 0 {
			fmt.Fprintln(c.out, "\n"+strings.Repeat("=", 80)+"\n")
		}
		title.Fprintf(c.out, "MARKET: %s\n", r.Title)
		fmt.Fprintf(c.out, "Condition ID: %s\n\n", r.ConditionID)

		outcome.Fprintf(c.out, "Outcome: %s\n", r.Outcome)
		fmt.Fprintf(c.out, "  Probability: %.2f (Model Confidence: %.2f)\n", r.Probability, r.ModelConfidence)

		edgeColor, evColor := bad, bad
		if r.Edge > 0 {
			edgeColor = good
		}
		if r.AdjustedEV > 0 {
			evColor = good
		}
		edgeColor.Fprintf(c.out, "  Edge: %.3f\n", r.Edge)
		evColor.Fprintf(c.out, "  Adjusted EV: %.3f\n", r.AdjustedEV)
		fmt.Fprintf(c.out, "  Best Ask: %g (Size: %g)\n", r.BestAskPrice, r.BestAskSize)
		unc.Fprintf(c.out, "  Uncertainty Range: [%.2f-%.2f] (CL: %.2f)\n",
			r.Uncertainty.LowerBound, r.Uncertainty.UpperBound, r.Uncertainty.ConfidenceLevel)
	}
	fmt.Fprintln(c.out)
}

// PrintForecast imprime un forecast suelto (subcomando forecast).
func (c *Console) PrintForecast(description string, f domain.Forecast) {
	fmt.Fprintf(c.out, "\nMarket: %s\n\n", domain.TruncateQuestion(description, "", 200))
	fmt.Fprintf(c.out, "  Probability (YES):  %.3f\n", f.Probability)
	fmt.Fprintf(c.out, "  Uncertainty:        [%.3f, %.3f] at %.0f%%\n",
		f.Uncertainty.LowerBound, f.Uncertainty.UpperBound, f.Uncertainty.ConfidenceLevel*100)
	fmt.Fprintf(c.out, "  Model confidence:   %.2f\n", f.ModelConfidence)
	for _, w := range f.Warnings() {
		fmt.Fprintf(c.out, "  ! %s\n", w)
	}
	if f.Reasoning != "" {
		fmt.Fprintf(c.out, "\n  Reasoning:\n    %s\n", strings.ReplaceAll(f.Reasoning, "\n", "\n    "))
	}
	fmt.Fprintln(c.out)
}

func shortID(id string) string {
	if len(id) > 10 {
		return id[:8] + "…"
	}
	return id
}

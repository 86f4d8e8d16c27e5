package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/sentibot/internal/domain"
	"github.com/alejandrodnm/sentibot/internal/ports"
)

var (
	_ ports.HistoryReporter = (*Console)(nil)
	_ ports.FeedbackPoster  = (*Console)(nil)
)

// Console implementa ports.HistoryReporter y ports.FeedbackPoster sobre stdout.
type Console struct {
	out  io.Writer
	mode string
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(mode string) *Console {
	return &Console{out: os.Stdout, mode: mode}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, mode string) *Console {
	return &Console{out: w, mode: mode}
}

// CycleLine es el resumen de un ciclo en una línea.
type CycleLine struct {
	Sentiment   float64
	SampleCount int
	AgeMinutes  float64
	Action      domain.Action
	Amount      float64
	Confidence  float64
	Success     bool
	Kind        domain.ErrorKind
	TxRef       string
	Ledger      domain.LedgerReceipt
	Placeholder bool
}

// PrintCycle imprime lo esencial del ciclo en una línea.
func (c *Console) PrintCycle(l CycleLine) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s][%s] sent %+.2f n=%d age %.0fm → %s",
		time.Now().Format("15:04:05"), strings.ToUpper(c.mode),
		l.Sentiment, l.SampleCount, l.AgeMinutes, l.Action)

	if l.Action != domain.ActionHold {
		fmt.Fprintf(&sb, " %.0f @ %.0f%%", l.Amount, l.Confidence*100)
	}

	switch {
	case !l.Success:
		fmt.Fprintf(&sb, " | FAIL %s", l.Kind)
	case l.Placeholder:
		sb.WriteString(" | simulated")
	case l.TxRef != "":
		fmt.Fprintf(&sb, " | tx %s", compactRef(l.TxRef, 14))
	default:
		sb.WriteString(" | ok")
	}

	fmt.Fprintf(&sb, " | ledger %s", compactRef(l.Ledger.String(), 40))
	fmt.Fprintln(c.out, sb.String())
}

// PostFeedback imprime el mensaje de feedback cuando no hay poster remoto.
func (c *Console) PostFeedback(_ context.Context, message string) error {
	_, err := fmt.Fprintf(c.out, "[%s] feedback: %s\n", time.Now().Format("15:04:05"), message)
	return err
}

// ReportTrades imprime el histórico de trades del ledger.
func (c *Console) ReportTrades(_ context.Context, trades []domain.TradeRecord) error {
	fmt.Fprintf(c.out, "\n── TRADES (%d) ──\n", len(trades))
	if len(trades) == 0 {
		fmt.Fprintln(c.out, "  No trades recorded")
		return nil
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Time (UTC)", "Action", "Amount", "Conf", "Tx")
	for _, t := range trades {
		if err := table.Append(
			fmt.Sprintf("%d", t.ID),
			t.Timestamp.UTC().Format("2006-01-02 15:04"),
			string(t.Action),
			fmt.Sprintf("%.4f", t.Amount),
			fmt.Sprintf("%.0f%%", t.Confidence*100),
			compactRef(t.TxRef, 18),
		); err != nil {
			return fmt.Errorf("notify.ReportTrades: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("notify.ReportTrades: %w", err)
	}

	entries, exits := 0, 0
	for _, t := range trades {
		switch {
		case t.Action.IsEntry():
			entries++
		case t.Action.IsExit():
			exits++
		}
	}
	fmt.Fprintf(c.out, "  Entries: %d | Exits: %d | Open: %v\n", entries, exits, entries > exits)
	return nil
}

// ReportSentiment imprime el histórico de sentimiento (valores desescalados).
func (c *Console) ReportSentiment(_ context.Context, records []domain.SentimentRecord) error {
	fmt.Fprintf(c.out, "\n── SENTIMENT (%d) ──\n", len(records))
	if len(records) == 0 {
		fmt.Fprintln(c.out, "  No sentiment recorded")
		return nil
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Time (UTC)", "Score", "Conf", "Samples")
	var sum float64
	for _, r := range records {
		score := domain.FromScaled(r.Score)
		sum += score
		if err := table.Append(
			fmt.Sprintf("%d", r.ID),
			r.Timestamp.UTC().Format("2006-01-02 15:04"),
			fmt.Sprintf("%+.4f", score),
			fmt.Sprintf("%.0f%%", domain.FromScaled(r.Confidence)*100),
			fmt.Sprintf("%d", r.SampleCount),
		); err != nil {
			return fmt.Errorf("notify.ReportSentiment: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("notify.ReportSentiment: %w", err)
	}
	fmt.Fprintf(c.out, "  Avg score: %+.4f\n", sum/float64(len(records)))
	return nil
}

// compactRef acorta hashes largos: 0x1234...abcd.
func compactRef(s string, maxLen int) string {
	if len(s) <= maxLen || maxLen < 9 {
		return s
	}
	keep := (maxLen - 3) / 2
	return s[:keep] + "..." + s[len(s)-keep:]
}

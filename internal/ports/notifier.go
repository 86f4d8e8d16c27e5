package ports

import (
	"context"

	"github.com/alejandrodnm/sentibot/internal/domain"
)

// FeedbackPoster publica un mensaje corto tras cada ciclo.
// Es fire-and-forget: un error aquí nunca falla el ciclo.
type FeedbackPoster interface {
	PostFeedback(ctx context.Context, message string) error
}

// HistoryReporter presenta el histórico del ledger al usuario.
// En la implementación de consola, imprime tablas formateadas.
type HistoryReporter interface {
	ReportTrades(ctx context.Context, trades []domain.TradeRecord) error
	ReportSentiment(ctx context.Context, records []domain.SentimentRecord) error
}

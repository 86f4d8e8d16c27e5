package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/sentibot/config"
	"github.com/alejandrodnm/sentibot/internal/adapters/feed"
	"github.com/alejandrodnm/sentibot/internal/adapters/notify"
	"github.com/alejandrodnm/sentibot/internal/adapters/onchain"
	"github.com/alejandrodnm/sentibot/internal/adapters/paper"
	"github.com/alejandrodnm/sentibot/internal/adapters/price"
	"github.com/alejandrodnm/sentibot/internal/adapters/storage"
	"github.com/alejandrodnm/sentibot/internal/ports"
)

// app agrupa los adapters elegidos según el modo.
type app struct {
	local    *storage.SQLiteLedger
	ledger   ports.Ledger
	holdings ports.HoldingsProvider
	prices   ports.PriceOracle
	swaps    ports.SwapExecutor
	source   ports.SentimentSource
}

func (a *app) Close() {
	if err := a.local.Close(); err != nil {
		slog.Warn("storage close failed", "err", err)
	}
}

// wire construye los adapters. En mock todo es local; en live el ledger on-chain
// es la fuente de verdad y SQLite actúa como espejo.
func wire(ctx context.Context, cfg *config.Config) (*app, error) {
	local, err := storage.NewSQLiteLedger(cfg.Storage.DSN)
	if err != nil {
		return nil, fmt.Errorf("wire: open storage: %w", err)
	}
	a := &app{local: local, source: newSource(cfg)}

	if cfg.IsLive() {
		err = wireLive(ctx, cfg, a)
	} else {
		err = wireMock(cfg, a)
	}
	if err != nil {
		local.Close()
		return nil, err
	}
	return a, nil
}

func wireMock(cfg *config.Config, a *app) error {
	w := paper.NewWallet(cfg.Execution.BaseAsset, cfg.Execution.QuoteAsset,
		cfg.Paper.BaseBalance, cfg.Paper.QuoteBalance)
	a.holdings = w
	a.swaps = w
	a.ledger = a.local

	if cfg.Paper.Price > 0 {
		a.prices = paper.NewFixedPrice(cfg.Paper.Price)
		slog.Info("mock mode: fixed reference price", "price", fmt.Sprintf("$%.2f", cfg.Paper.Price))
		return nil
	}
	oracle, err := newOracle(cfg)
	if err != nil {
		return err
	}
	a.prices = oracle
	return nil
}

func wireLive(ctx context.Context, cfg *config.Config, a *app) error {
	chain, err := onchain.Dial(ctx, cfg.Chain.RPCURL, cfg.Chain.PrivateKey, cfg.Chain.ChainID)
	if err != nil {
		return fmt.Errorf("wire: %w", err)
	}
	pair := onchain.Pair{
		Base: onchain.Token{
			Symbol:   cfg.Execution.BaseAsset,
			Address:  common.HexToAddress(cfg.Chain.BaseToken),
			Decimals: cfg.Chain.BaseDecimals,
		},
		Quote: onchain.Token{
			Symbol:   cfg.Execution.QuoteAsset,
			Address:  common.HexToAddress(cfg.Chain.QuoteToken),
			Decimals: cfg.Chain.QuoteDecimals,
		},
	}

	ledger, err := onchain.NewLedgerClient(chain, cfg.Chain.LedgerAddress)
	if err != nil {
		return fmt.Errorf("wire: %w", err)
	}
	if !ledger.Configured() {
		slog.Warn("live mode without chain.ledger_address: sentiment writes skipped, trades kept locally")
	}

	oracle, err := newOracle(cfg)
	if err != nil {
		return err
	}

	a.ledger = storage.NewMirror(ledger, a.local)
	a.holdings = onchain.NewWallet(chain, pair)
	a.swaps = onchain.NewRouter(chain, common.HexToAddress(cfg.Chain.RouterAddress), pair)
	a.prices = oracle

	slog.Info("live mode wired",
		"wallet", chain.Address().Hex(),
		"router", cfg.Chain.RouterAddress,
		"ledger", cfg.Chain.LedgerAddress,
	)
	return nil
}

func newOracle(cfg *config.Config) (*price.Oracle, error) {
	oracle, err := price.New(price.Config{
		BaseURL:    cfg.Price.BaseURL,
		CoinID:     cfg.Price.CoinID,
		VsCurrency: cfg.Price.VsCurrency,
		CacheTTL:   cfg.PriceCacheTTL(),
		APIKey:     cfg.Price.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("wire: %w", err)
	}
	return oracle, nil
}

func newSource(cfg *config.Config) ports.SentimentSource {
	if cfg.Feed.URL != "" {
		return feed.NewHTTPSource(cfg.Feed.URL)
	}
	return feed.NewFileSource(cfg.Feed.File)
}

// feedbackPoster usa los destinos remotos configurados; sin ninguno, la consola.
func feedbackPoster(cfg *config.Config, console *notify.Console) ports.FeedbackPoster {
	var fan notify.Fanout
	if cfg.Feedback.WebhookURL != "" {
		fan = append(fan, notify.NewWebhook(cfg.Feedback.WebhookURL))
	}
	if cfg.Feedback.TelegramToken != "" && cfg.Feedback.TelegramChatID != "" {
		tg, err := notify.NewTelegram(cfg.Feedback.TelegramToken, cfg.Feedback.TelegramChatID, "")
		if err != nil {
			slog.Warn("telegram feedback disabled", "err", err)
		} else {
			fan = append(fan, tg)
		}
	}
	if len(fan) == 0 {
		return console
	}
	return fan
}

package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"polymarket-pro/internal/alerting"
	"polymarket-pro/internal/config"
	"polymarket-pro/internal/fetcher"
	"polymarket-pro/internal/metrics"
	"polymarket-pro/internal/service"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newResolver() fetcher.MarketResolver {
	return fetcher.NewGamma(fetcher.GammaOptions{
		BaseURL: a.Config.Gamma.BaseURL,
		Timeout: a.Config.Gamma.RequestTimeout,
	}, a.Logger)
}

func (a *App) newHistory() *fetcher.History {
	return fetcher.NewHistory(fetcher.HistoryOptions{
		BaseURL: a.Config.Clob.BaseURL,
		Timeout: a.Config.Clob.RequestTimeout,
	}, a.Logger)
}

func (a *App) newSpot() fetcher.SpotPriceFetcher {
	if !a.Config.Spot.Enabled {
		return nil
	}
	switch a.Config.Spot.Provider {
	case "chainlink":
		return fetcher.NewChainlinkSpot(fetcher.ChainlinkSpotOptions{
			RPCURL:            a.Config.Spot.Chainlink.RPCURL,
			AggregatorAddress: a.Config.Spot.Chainlink.AggregatorAddress,
			Decimals:          a.Config.Spot.Chainlink.Decimals,
			Timeout:           a.Config.Spot.Chainlink.RequestTimeout,
		}, a.Logger)
	default:
		return fetcher.NewBinanceSpot(fetcher.BinanceSpotOptions{
			BaseURL: a.Config.Spot.Binance.BaseURL,
			Symbol:  a.Config.Spot.Binance.Symbol,
			Timeout: a.Config.Spot.Binance.RequestTimeout,
		}, a.Logger)
	}
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Alerting.Enabled {
		return nil
	}
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return alerting.NewLogNotifier(a.Logger)
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if !a.Config.WatchKeys() {
		return errors.New("no markets configured; set markets.slugs or markets.token_ids")
	}

	if a.Config.Metrics.Enabled {
		srv := metrics.Serve(a.Config.Metrics.ListenAddr)
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		a.Logger.Info().Str("addr", a.Config.Metrics.ListenAddr).Msg("metrics endpoint listening")
	}

	monitor := service.New(a.Config, a.newResolver(), a.newHistory(), a.newSpot(), a.newNotifier(), a.Logger)

	for _, rc := range a.Config.Alerting.Rules {
		rule, err := monitor.AddAlert(alerting.Direction(rc.Direction), rc.Threshold, rc.Label)
		if err != nil {
			return fmt.Errorf("register alert rule %q: %w", rc.Label, err)
		}
		a.Logger.Info().Str("rule_id", rule.ID).Str("direction", string(rule.Direction)).
			Float64("threshold", rule.Threshold).Str("label", rule.Label).Msg("alert rule registered")
	}

	if err := monitor.Watch(ctx); err != nil {
		return err
	}

	a.Logger.Info().Strs("instruments", monitor.Keys()).Msg("starting price monitor")
	err := monitor.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("monitor terminated with error")
		return err
	}

	a.Logger.Info().Msg("price monitor stopped")
	return nil
}

// ExportOptions hold parameters for exporting a market's price history.
type ExportOptions struct {
	Slug      string
	TokenID   string
	Interval  string
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Slug    string
	TokenID string
	Limit   int
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"phase-trade-bot-go/internal/config"
	"phase-trade-bot-go/internal/database"
	"phase-trade-bot-go/internal/journal"
	"phase-trade-bot-go/internal/logger"
	"phase-trade-bot-go/internal/notify"
	"phase-trade-bot-go/internal/phase"
	"phase-trade-bot-go/internal/trace"
	"phase-trade-bot-go/internal/trader"
	"phase-trade-bot-go/internal/venue"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

var (
	configDir string
	envFile   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the bot and its HTTP command server",
	Long: `Start the bot. Configuration is read from <config-dir>/config.yml and
can be overridden with environment variables (venue.login -> VENUE_LOGIN).
A .env file is loaded first if present.

Example:
  trader run --config ./configs`,
	RunE: runTrader,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&configDir, "config", "c", "./configs", "directory containing config.yml")
	runCmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")
}

func runTrader(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("could not load %s: %w", envFile, err)
	}

	// Load application configuration
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		return fmt.Errorf("could not create logger: %w", err)
	}
	defer log.Sync()
	log.Info("Configuration loaded", zap.String("symbol", cfg.Venue.Symbol), zap.Bool("dry_run", cfg.Venue.DryRun))

	if err := trace.Init(cfg.Tracing.Enabled); err != nil {
		return fmt.Errorf("could not init tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = trace.Shutdown(ctx)
	}()

	// Initialize the session journal
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		return err
	}
	tradeJournal := journal.New(db, cfg.Venue.Symbol, cfg.Venue.DryRun, log)
	log.Info("Database connection successful and schema migrated.")

	// Venue bridge, with the account side simulated on dry runs
	var api venue.API = venue.NewRestClient(&cfg.Venue, log)
	if cfg.Venue.DryRun {
		paper := venue.NewPaperAPI(api, cfg.Venue.PaperBalance, cfg.Venue.ContractSize, log)
		log.Warn("Dry run enabled. No real orders will be sent.", zap.Stringer("account", paper))
		api = paper
	}
	gateway := venue.NewGateway(api, &cfg.Venue, log)

	dispatcher, hub := newDispatcher(cfg.Notify, log)

	controller := phase.NewController(gateway, dispatcher, tradeJournal, phase.Settings{
		Symbol:              cfg.Venue.Symbol,
		BaseLot:             cfg.Trading.BaseLot,
		StrongLot:           cfg.Trading.StrongLot,
		StrongMoveThreshold: cfg.Trading.StrongMoveThreshold,
		BarCount:            cfg.Venue.BarCount,
	}, log)
	engine := trader.NewEngine(log, &cfg.Trading, controller, gateway, dispatcher)

	var wsHandler http.Handler
	if hub != nil {
		wsHandler = hub
	}
	apiServer := trader.NewAPIServer(cfg.Server.Port, engine, tradeJournal, wsHandler, log)
	apiServer.Start()

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigchan:
			log.Info("Shutdown signal received, gracefully shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	if cfg.Trading.AutoStart {
		if err := autoStart(ctx, engine, cfg.Trading); err != nil {
			shutdown(log, engine, apiServer, dispatcher, hub)
			return err
		}
	} else {
		log.Info("Waiting for commands", zap.Int("port", cfg.Server.Port))
	}

	<-ctx.Done()
	shutdown(log, engine, apiServer, dispatcher, hub)
	log.Info("Bot has been shut down.")
	return nil
}

func newDispatcher(cfg config.Notify, log *zap.Logger) (*notify.Dispatcher, *notify.Hub) {
	dispatcher := notify.NewDispatcher(log, notify.NewLogChannel(log))
	if cfg.DiscordWebhook != "" {
		dispatcher.Add(notify.NewDiscordChannel(cfg.DiscordWebhook))
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		dispatcher.Add(notify.NewTelegramChannel(cfg.TelegramToken, cfg.TelegramChatID))
	}

	var hub *notify.Hub
	if cfg.WebSocket {
		hub = notify.NewHub(log)
		dispatcher.Add(hub)
	}
	return dispatcher, hub
}

// autoStart applies the phase targets from the config file and starts
// trading. A connect failure here is fatal.
func autoStart(ctx context.Context, engine *trader.Engine, cfg config.Trading) error {
	err := engine.Configure(phase.Config{
		MaxTradesPerPhase:    cfg.MaxTrades,
		ProfitTargetPerPhase: cfg.ProfitTarget,
		MaxPhases:            cfg.MaxPhases,
	})
	if err != nil {
		return fmt.Errorf("invalid trading targets in config: %w", err)
	}
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("could not start trading: %w", err)
	}
	return nil
}

func shutdown(log *zap.Logger, engine *trader.Engine, apiServer *trader.APIServer, dispatcher *notify.Dispatcher, hub *notify.Hub) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := engine.Stop(ctx); err != nil {
		log.Error("Trading loop did not stop cleanly", zap.Error(err))
	}
	if err := apiServer.Stop(ctx); err != nil {
		log.Error("API server shutdown failed", zap.Error(err))
	}

	flushed := make(chan struct{})
	go func() {
		dispatcher.Wait()
		close(flushed)
	}()
	select {
	case <-flushed:
	case <-ctx.Done():
		log.Warn("Timed out waiting for notifications")
	}
	if hub != nil {
		hub.Close()
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"strategy-builder-go/internal/analytics"
	"strategy-builder-go/internal/blocks"
	"strategy-builder-go/internal/canvas"
	"strategy-builder-go/internal/coordinator"
	"strategy-builder-go/internal/database"
	"strategy-builder-go/internal/httpapi"
	"strategy-builder-go/internal/models"
)

var bootstrapStrategy string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the canvas HTTP service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.log.Sync()
		return serve(e)
	},
}

func init() {
	serveCmd.Flags().StringVar(&bootstrapStrategy, "strategy", "", "Strategy id to load on startup")
}

func serve(e *env) error {
	log := e.log
	cfg := &e.cfg

	db, err := database.NewDatabase(&cfg.Database)
	if err != nil {
		return err
	}
	repo := database.NewRepository(db)
	log.Info("Database connection successful and schema migrated.")

	tokens := e.tokens()
	store := canvas.NewStore()
	coord := coordinator.New(store, e.versionsClient(tokens), log, coordinator.Options{
		Debounce:       cfg.Autosave.Debounce,
		NoticeDuration: cfg.Autosave.NoticeDuration,
		StaleTime:      cfg.Autosave.VersionsStaleTime,
		OnVersionSwitch: func(v models.StrategyVersionSummary) {
			log.Info("Active version switched", zap.String("version_id", v.ID), zap.String("label", v.Label))
		},
	})

	// Restoring after the coordinator subscribes resumes autosave of
	// copies that were dirty at shutdown.
	snap, err := repo.LoadSnapshot()
	if err != nil {
		return err
	}
	store.Restore(snap)
	log.Info("Restored working copies", zap.Int("copies", len(snap.Copies)))

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	var queue *analytics.Queue
	var recorder httpapi.StepRecorder
	if cfg.Analytics.Enabled {
		queue = analytics.NewQueue(analytics.NewClient(cfg.API.BaseURL, cfg.API.Timeout), tokens, log)
		pending, err := repo.TakePendingEvents()
		if err != nil {
			return err
		}
		queue.Requeue(pending)
		recorder = queue
		go queue.Run(ctx, cfg.Analytics.FlushInterval)
	}

	if bootstrapStrategy != "" {
		v, err := coord.Bootstrap(ctx, bootstrapStrategy)
		if err != nil {
			log.Warn("Failed to load strategy canvas", zap.String("strategy_id", bootstrapStrategy), zap.Error(err))
		} else {
			log.Info("Loaded strategy canvas", zap.String("version_id", v.ID), zap.String("label", v.Label))
		}
	}

	handler := httpapi.NewAPIHandler(log, store, coord, blocks.Default(), recorder)
	server := httpapi.NewServer(cfg.Server.Port, handler, log)
	server.Start()

	persistLoop(ctx, store, repo, cfg.Autosave.Debounce, log)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop API server", zap.Error(err))
	}
	coord.Close()

	if queue != nil {
		if err := queue.Flush(shutdownCtx); err != nil {
			log.Warn("Failed to send onboarding analytics", zap.Error(err))
		}
		if err := repo.SavePendingEvents(queue.Drain()); err != nil {
			log.Error("Failed to keep onboarding analytics", zap.Error(err))
		}
	}
	if err := repo.SaveSnapshot(store.Snapshot()); err != nil {
		return fmt.Errorf("failed to save working copies: %w", err)
	}

	log.Info("Designer has been shut down.")
	return nil
}

// persistLoop writes the store to the database every interval while it has
// changed, until ctx is cancelled.
func persistLoop(ctx context.Context, store *canvas.Store, repo *database.Repository, interval time.Duration, log *zap.Logger) {
	changed := make(chan struct{}, 1)
	unsubscribe := store.Subscribe(func(canvas.Change) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case <-changed:
				if err := repo.SaveSnapshot(store.Snapshot()); err != nil {
					log.Error("Failed to save working copies", zap.Error(err))
				}
			default:
			}
		}
	}
}

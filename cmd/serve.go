package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	apihttp "backoffice/internal/api/http"
	"backoffice/internal/audit"
	"backoffice/internal/auth"
	cashapp "backoffice/internal/cash/application"
	cashrepo "backoffice/internal/cash/infrastructure/postgres"
	cashhttp "backoffice/internal/cash/interfaces/http"
	"backoffice/internal/config"
	documentsapp "backoffice/internal/documents/application"
	documentsrepo "backoffice/internal/documents/infrastructure/postgres"
	documentshttp "backoffice/internal/documents/interfaces/http"
	"backoffice/internal/eventbus"
	"backoffice/internal/eventing"
	eventingrepo "backoffice/internal/eventing/infrastructure/postgres"
	"backoffice/internal/logger"
	"backoffice/internal/observability/metrics"
	"backoffice/internal/platform/database"
	refapp "backoffice/internal/references/application"
	refrepo "backoffice/internal/references/infrastructure/postgres"
	"backoffice/migrations"
)

const shutdownTimeout = 15 * time.Second

var (
	serveAddr    string
	serveMigrate bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.HTTPAddr = serveAddr
		}
		return serve(cmd.Context(), cfg)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides HTTP_ADDR)")
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "apply pending migrations before serving")
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg *config.Config) error {
	if _, err := logger.Setup(cfg.GetLoggerConfig()); err != nil {
		return fmt.Errorf("logger setup: %w", err)
	}
	log := logger.WithComponent("serve")

	location, err := cfg.Location()
	if err != nil {
		return err
	}
	clock := refapp.SystemClock{Location: location}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db open: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	if serveMigrate {
		applied, err := database.Migrate(ctx, db, migrations.FS)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info().Strs("applied", applied).Msg("migrations checked")
	}

	metrics.Init(db, logger.WithComponent("metrics"))
	auditRepo := audit.NewRepository(db)
	txRunner := database.NewTxRunner(db)

	baseBus := eventbus.NewInMemoryBus()
	registry := eventing.NewRegistry(
		documentsapp.DocumentIssued{},
		cashapp.RegisterOpened{},
		cashapp.RegisterClosed{},
		cashapp.TransactionRecorded{},
	)
	outboxStore := eventingrepo.NewOutboxStore(db)
	processedStore := eventingrepo.NewProcessedStore(db)
	dlqStore := eventingrepo.NewDLQStore(db)
	dispatcher := eventing.NewDispatcher(baseBus, outboxStore, registry, dlqStore, logger.WithComponent("outbox"))
	publisher := eventing.NewPublisher(outboxStore, baseBus)
	subscribeActivityLog(publisher, processedStore, logger.WithComponent("activity"))

	sequencer, err := refapp.NewSequencer(
		refrepo.NewCounterStore(db),
		txRunner,
		refapp.WithClock(clock),
		refapp.WithLogger(logger.WithComponent("references")),
		refapp.WithRetry(cfg.Sequence.MaxAttempts, cfg.Sequence.BackoffInitial, cfg.Sequence.BackoffMax),
	)
	if err != nil {
		return fmt.Errorf("sequencer: %w", err)
	}

	coordinator, err := documentsapp.NewCoordinator(
		documentsrepo.NewRepository(db),
		sequencer,
		documentsapp.WithPublisher(publisher),
		documentsapp.WithClock(clock),
		documentsapp.WithDefaultCurrency(cfg.Currency),
		documentsapp.WithLogger(logger.WithComponent("documents")),
	)
	if err != nil {
		return fmt.Errorf("documents coordinator: %w", err)
	}
	documentsHandler, err := documentshttp.NewHandler(coordinator, auditRepo)
	if err != nil {
		return fmt.Errorf("documents handler: %w", err)
	}

	cashService, err := cashapp.NewService(
		cashrepo.NewRegisterStore(db),
		cashrepo.NewLedger(db),
		txRunner,
		cashapp.WithPublisher(publisher),
		cashapp.WithClock(clock),
		cashapp.WithLogger(logger.WithComponent("cash")),
	)
	if err != nil {
		return fmt.Errorf("cash service: %w", err)
	}
	cashHandler, err := cashhttp.NewHandler(cashService, auditRepo, cfg.Currency)
	if err != nil {
		return fmt.Errorf("cash handler: %w", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/documents/", documentsHandler)
	mux.Handle("/api/v1/cash/", cashHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", apihttp.NewHealthHandler(db))

	dispatchCtx, stopDispatch := context.WithCancel(ctx)
	defer stopDispatch()
	go dispatcher.Run(dispatchCtx, cfg.Outbox.DispatchInterval, cfg.Outbox.BatchSize)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(authMiddleware.Wrap(mux), logger.WithComponent("http")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	stopDispatch()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// subscribeActivityLog records every committed business event in the log.
func subscribeActivityLog(bus eventbus.EventBus, processed eventing.ProcessedStore, log zerolog.Logger) {
	eventing.Subscribe(bus, processed,
		eventing.Consume("activity.documents", func(ctx context.Context, evt documentsapp.DocumentIssued) error {
			log.Info().
				Str("reference", evt.Reference).
				Str("kind", evt.Kind).
				Int64("document_id", evt.DocumentID).
				Str("actor_id", evt.ActorID).
				Msg("document issued")
			return nil
		}),
		eventing.Consume("activity.cash", func(ctx context.Context, evt cashapp.RegisterOpened) error {
			log.Info().
				Int64("register_id", evt.RegisterID).
				Str("business_date", evt.BusinessDate).
				Str("opening_balance", evt.OpeningBalance.StringFixed(2)).
				Msg("cash register opened")
			return nil
		}),
		eventing.Consume("activity.cash", func(ctx context.Context, evt cashapp.RegisterClosed) error {
			entry := log.Info()
			if evt.Forced {
				entry = log.Warn()
			}
			entry.
				Int64("register_id", evt.RegisterID).
				Str("closing_balance", evt.ClosingBalance.StringFixed(2)).
				Bool("forced", evt.Forced).
				Msg("cash register closed")
			return nil
		}),
	)
}

func loggingMiddleware(next http.Handler, log zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := eventing.WithCorrelationID(r.Context(), requestID)

		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r.WithContext(ctx))
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", resp.status).
			Dur("duration", time.Since(start)).
			Str("request_id", requestID).
			Msg("http request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

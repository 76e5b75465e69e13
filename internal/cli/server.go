package cli

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"skillforge/internal/app"
	"skillforge/internal/config"
	"skillforge/internal/domain"
	"skillforge/internal/infra/memory"
	pginfra "skillforge/internal/infra/postgres"
	redisinfra "skillforge/internal/infra/redis"
	transport "skillforge/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the progression server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg.Debug)
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var store app.ProgressStore
	var contentLoader memory.ContentLoader
	if cfg.Postgres.URL != "" {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		db := bun.NewDB(sqldb, pgdialect.New())
		defer db.Close()
		store = pginfra.NewStore(db)

		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		contentLoader = pginfra.NewContentLoader(pool)
	} else {
		memStore := memory.NewStore()
		seedDemoProfiles(memStore)
		store = memStore
		contentLoader = memory.NewStaticContentLoader(sampleLabs(), sampleQuizzes())
	}

	contentTTL := config.TTLDuration(cfg.Content.TTL, 10*time.Minute)
	var content app.ContentRepository
	if redisClient != nil {
		content = redisinfra.NewContentCache(redisClient, contentLoader, contentTTL)
	} else {
		content = memory.NewContentCache(contentLoader, contentTTL)
	}

	sessionTTL := config.TTLDuration(cfg.Redis.SessionTTL, 30*time.Minute)
	var sessions app.QuizSessionStore
	if redisClient != nil {
		sessions = redisinfra.NewSessionStore(redisClient, sessionTTL)
	} else {
		sessions = memory.NewSessionStore()
	}

	ledger := app.NewLedgerService(store)
	labs := app.NewLabService(content, store)
	quizzes := app.NewQuizService(content, store, sessions)
	rankings := app.NewRankingService(store)

	leaderboardSize := cfg.Ranking.LeaderboardSize
	if leaderboardSize <= 0 {
		leaderboardSize = 20
	}
	feed := app.NewLeaderboardFeed(rankings, leaderboardSize, log)
	ledger.SetNotifier(feed)
	labs.SetNotifier(feed)
	quizzes.SetNotifier(feed)

	feedCtx, stopFeed := context.WithCancel(ctx)
	defer stopFeed()
	go feed.Run(feedCtx)

	var boards transport.LeaderboardReader = rankings
	if redisClient != nil {
		rankingTTL := config.TTLDuration(cfg.Ranking.CacheTTL, 5*time.Second)
		boards = redisinfra.NewRankingCache(redisClient, rankings, rankingTTL)
	}

	handler := transport.NewHandler(ledger, labs, quizzes, rankings, boards, cfg.Admin.Token, log)
	handler.SetRankingDefaults(leaderboardSize, cfg.Ranking.WindowDays)
	wsHandler := transport.NewWSHandler(feed, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	handler.Register(mux)
	mux.HandleFunc("GET /ws/leaderboard", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting skillforge", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}
	stopFeed()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// seedDemoProfiles and the sample content below keep the no-database mode
// usable for local poking; production wires Postgres.
func seedDemoProfiles(store *memory.Store) {
	store.CreateProfile(domain.Profile{UserID: "demo-1", DisplayName: "Demo One", Handle: "demo1"})
	store.CreateProfile(domain.Profile{UserID: "demo-2", DisplayName: "Demo Two", Handle: "demo2"})
}

func sampleLabs() map[string]domain.Lab {
	return map[string]domain.Lab{
		"lab-deploy": {
			ID:               "lab-deploy",
			Title:            "Deploy to production",
			AcceptedCommands: []string{"kubectl apply -f deploy.yaml", "kubectl apply -f ./deploy.yaml"},
			Hint:             "Apply the manifest with kubectl.",
			XPReward:         50,
		},
	}
}

func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"lesson-1": {
			LessonID: "lesson-1",
			Questions: []domain.Question{
				{
					ID:     "q1",
					Prompt: "Which command lists pods?",
					Options: []domain.Option{
						{Text: "kubectl get pods", Correct: true},
						{Text: "kubectl list pods", Correct: false},
					},
					XPReward:    10,
					Explanation: "kubectl get pods lists pods in the current namespace.",
				},
			},
		},
	}
}

package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io/fs"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"

	otphttp "github.com/otpbuy/otpbuy/adapters/http"
	"github.com/otpbuy/otpbuy/core"
	pgmigrations "github.com/otpbuy/otpbuy/migrations/postgres"
	"github.com/otpbuy/otpbuy/payments"
	"github.com/otpbuy/otpbuy/provider"
	"github.com/otpbuy/otpbuy/riverjobs"
)

type config struct {
	ListenAddr     string
	Issuer         string
	TokenSecret    string
	DBURL          string
	RedisURL       string
	MigrateOnStart bool

	PaytmMID     string
	PaytmKey     string
	CryptomusID  string
	CryptomusKey string
}

func main() {
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		fatal(err)
	}

	cmd := "serve"
	if len(os.Args) > 1 && strings.TrimSpace(os.Args[1]) != "" {
		cmd = strings.TrimSpace(os.Args[1])
	}

	switch cmd {
	case "serve":
		if err := runServe(cfg); err != nil {
			fatal(err)
		}
	case "migrate":
		if err := runMigrations(context.Background(), cfg.DBURL); err != nil {
			fatal(err)
		}
	default:
		fatal(fmt.Errorf("unknown command %q (supported: serve, migrate)", cmd))
	}
}

func loadConfig() (*config, error) {
	c := &config{
		ListenAddr:     envOr("OTPBUY_LISTEN_ADDR", ":8080"),
		Issuer:         strings.TrimRight(strings.TrimSpace(os.Getenv("OTPBUY_ISSUER")), "/"),
		TokenSecret:    strings.TrimSpace(os.Getenv("OTPBUY_TOKEN_SECRET")),
		DBURL:          firstEnv("DB_URL", "DATABASE_URL"),
		RedisURL:       strings.TrimSpace(os.Getenv("REDIS_URL")),
		MigrateOnStart: envBool("OTPBUY_MIGRATE_ON_START", true),
		PaytmMID:       os.Getenv("PAYTM_MID"),
		PaytmKey:       os.Getenv("PAYTM_MERCHANT_KEY"),
		CryptomusID:    os.Getenv("CRYPTOMUS_MERCHANT_ID"),
		CryptomusKey:   os.Getenv("CRYPTOMUS_API_KEY"),
	}
	if c.Issuer == "" {
		return nil, fmt.Errorf("OTPBUY_ISSUER is required (e.g. https://otpbuy.example)")
	}
	if c.TokenSecret == "" {
		return nil, fmt.Errorf("OTPBUY_TOKEN_SECRET is required")
	}
	if c.DBURL == "" {
		return nil, fmt.Errorf("DB_URL (or DATABASE_URL) is required")
	}
	return c, nil
}

func runServe(cfg *config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MigrateOnStart {
		if err := runMigrations(ctx, cfg.DBURL); err != nil {
			return err
		}
	}

	pg, err := pgxpool.New(ctx, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()

	svc, err := otphttp.NewService(core.Config{
		Issuer:          cfg.Issuer,
		IssuedAudiences: parseCSVEnv("OTPBUY_AUDIENCES", []string{"otpbuy"}),
		TokenSecret:     cfg.TokenSecret,
	})
	if err != nil {
		return err
	}
	svc.WithPostgres(pg).WithProviders(provider.NewRegistry(nil))
	defer svc.Shutdown()

	if cfg.RedisURL != "" {
		ropts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		svc.WithRedis(redis.NewClient(ropts))
	}
	if cfg.PaytmMID != "" && cfg.PaytmKey != "" {
		svc.WithPaytm(payments.PaytmConfig{
			MID:         cfg.PaytmMID,
			MerchantKey: cfg.PaytmKey,
			Website:     envOr("PAYTM_WEBSITE", "DEFAULT"),
			CallbackURL: os.Getenv("PAYTM_CALLBACK_URL"),
		}, nil)
	}
	if cfg.CryptomusID != "" && cfg.CryptomusKey != "" {
		svc.WithCryptomus(payments.CryptomusConfig{
			MerchantID: cfg.CryptomusID,
			APIKey:     cfg.CryptomusKey,
			ReturnURL:  os.Getenv("CRYPTOMUS_RETURN_URL"),
		}, nil)
	}

	// Background sweeps: expire stale activations and payment orders.
	workers := river.NewWorkers()
	riverjobs.RegisterWorkers(workers, svc.Core())
	riverClient, err := river.NewClient(riverpgxv5.New(pg), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
	})
	if err != nil {
		return fmt.Errorf("river client: %w", err)
	}
	if err := riverjobs.AddExpireActivationsPeriodicJob(riverClient, "* * * * *", riverjobs.ExpireActivationsArgs{}, true); err != nil {
		return err
	}
	if err := riverjobs.AddExpireOrdersPeriodicJob(riverClient, "* * * * *", riverjobs.ExpireOrdersArgs{}, true); err != nil {
		return err
	}
	if err := riverClient.Start(ctx); err != nil {
		return fmt.Errorf("river start: %w", err)
	}
	defer func() { _ = riverClient.Stop(context.Background()) }()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	mux.Handle("/api/", svc.APIHandler())

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	stdlog.Printf("[otpbuy] listening on %s", cfg.ListenAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func runMigrations(ctx context.Context, dbURL string) error {
	sqlDB, err := sql.Open("pgx", dbURL)
	if err != nil {
		return fmt.Errorf("open sql db: %w", err)
	}
	defer sqlDB.Close()

	// gen_random_uuid / gen_random_bytes come from pgcrypto.
	if _, err := sqlDB.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS pgcrypto`); err != nil {
		return fmt.Errorf("enable pgcrypto: %w", err)
	}

	files, err := fs.Glob(pgmigrations.FS, "*.up.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no postgres migrations found")
	}
	sort.Strings(files)

	for _, name := range files {
		sqlBytes, err := pgmigrations.FS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if strings.TrimSpace(string(sqlBytes)) == "" {
			continue
		}
		if _, err := sqlDB.ExecContext(ctx, string(sqlBytes)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func parseCSVEnv(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "otpbuy-server:", err)
	os.Exit(1)
}

// Command estateauth-server serves the auth endpoints of the property
// marketplace backed by Redis and a SQL user store.
//
//	estateauth-server -config estateauth.yaml
//	estateauth-server -create-user agent@example.com -role agent
//
// -create-user reads the password from ESTATEAUTH_NEW_USER_PASSWORD.
package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrEthical07/estateauth"
	"github.com/MrEthical07/estateauth/internal/logging"
	"github.com/MrEthical07/estateauth/internal/serverconfig"
	"github.com/MrEthical07/estateauth/permission"
	"github.com/MrEthical07/estateauth/userstore"
	"github.com/redis/go-redis/v9"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	createUser := flag.String("create-user", "", "create a verified account with this identifier and exit")
	role := flag.String("role", "buyer", "role for -create-user")
	flag.Parse()

	cfg, err := serverconfig.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "estateauth-server:", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Logging, version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *createUser != "" {
		err = runCreateUser(ctx, cfg, *createUser, *role, os.Getenv("ESTATEAUTH_NEW_USER_PASSWORD"))
	} else {
		err = run(ctx, cfg, logger)
	}
	if err != nil {
		logger.Error("estateauth-server stopped", "error", err)
		os.Exit(1)
	}
}

func openStore(ctx context.Context, cfg serverconfig.Config) (*sql.DB, *userstore.Store, error) {
	dialect, err := cfg.Database.Dialect()
	if err != nil {
		return nil, nil, err
	}
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := userstore.Migrate(ctx, db, dialect); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
	}
	store, err := userstore.New(db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, store, nil
}

// signingSecret returns the configured secret. Outside production an
// empty secret is replaced by a random one, so tokens do not survive a
// restart.
func signingSecret(cfg serverconfig.Config, logger *slog.Logger) ([]byte, error) {
	if cfg.Auth.JWTSecret != "" {
		return []byte(cfg.Auth.JWTSecret), nil
	}
	if cfg.Production() {
		return nil, serverconfig.ErrMissingSecret
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	logger.Warn("no signing secret configured, using an ephemeral one")
	return secret, nil
}

func buildEngine(cfg serverconfig.Config, rdb redis.UniversalClient, users estateauth.UserProvider, logger *slog.Logger) (*estateauth.Engine, error) {
	secret, err := signingSecret(cfg, logger)
	if err != nil {
		return nil, err
	}
	engineCfg := cfg.EngineConfig(secret)
	for _, w := range engineCfg.Lint() {
		logger.Warn("auth config", "code", w.Code, "message", w.Message)
	}

	b := estateauth.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithUserProvider(users).
		WithLogger(logger)
	if engineCfg.Audit.Enabled {
		b = b.WithAuditSink(estateauth.NewJSONWriterSink(os.Stdout))
	}
	return b.Build()
}

func run(ctx context.Context, cfg serverconfig.Config, logger *slog.Logger) error {
	db, store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	store.WithLogger(logger)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	engine, err := buildEngine(cfg, rdb, store, logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	if cfg.Metrics.OTel.Enabled {
		tel, err := startTelemetry(engine, cfg.Metrics.OTel, os.Stderr)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
			defer cancel()
			if err := tel.Shutdown(shutdownCtx); err != nil {
				logger.Warn("otel shutdown", "error", err)
			}
		}()
	}

	if err := engine.Ping(ctx); err != nil {
		logger.Warn("redis not reachable at startup", "addr", cfg.Redis.Addr, "error", err)
	}

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      newRouter(engine, cfg, logger),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTP.Addr, "environment", cfg.Environment)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func runCreateUser(ctx context.Context, cfg serverconfig.Config, identifier, roleName, plaintext string) error {
	if plaintext == "" {
		return errors.New("ESTATEAUTH_NEW_USER_PASSWORD is empty")
	}
	role, err := permission.ParseRole(roleName)
	if err != nil {
		return err
	}

	db, store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	eng := estateauth.DefaultConfig()
	verifier, err := newHasher(eng.Password)
	if err != nil {
		return err
	}
	hash, err := verifier.Hash(plaintext)
	if err != nil {
		return err
	}

	u, err := store.CreateUser(ctx, userstore.NewUser{
		Identifier:   identifier,
		PasswordHash: hash,
		Role:         role,
		Verified:     true,
	})
	if err != nil {
		return err
	}
	fmt.Println(u.ID)
	return nil
}

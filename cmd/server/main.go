package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fabienheureux/graphene-async/internal/handlers"
	"github.com/fabienheureux/graphene-async/internal/storage"
)

func main() {
	var (
		addr     = flag.String("addr", ":8080", "listen address")
		dbPath   = flag.String("db", "./books.db", "path to the SQLite database")
		pretty   = flag.Bool("pretty", false, "pretty-print JSON responses")
		graphiql = flag.Bool("graphiql", true, "serve GraphiQL on content-negotiated GET requests")
		debug    = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	logger := newLogger(*debug)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(*dbPath)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}
	if err := store.Seed(ctx); err != nil {
		logger.Fatal("seed sample data", zap.Error(err))
	}

	gql, err := handlers.NewGraphQL(store, logger, handlers.Config{
		Pretty:   *pretty,
		GraphiQL: *graphiql,
	})
	if err != nil {
		logger.Fatal("build schema", zap.Error(err))
	}

	mux := http.NewServeMux()
	mux.Handle("/graphql", gql)

	srv := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", *addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(debug bool) *zap.Logger {
	build := zap.NewProduction
	if debug {
		build = zap.NewDevelopment
	}
	logger, err := build()
	if err != nil {
		panic(err)
	}
	return logger
}

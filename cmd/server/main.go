package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"olafchat/internal/config"
	"olafchat/internal/crypto"
	"olafchat/internal/fileserver"
	"olafchat/internal/homeserver"
	"olafchat/internal/logging"
	"olafchat/internal/neighbourhood"
	"olafchat/internal/store"
)

func main() {
	var configPath string
	var debug bool

	root := &cobra.Command{
		Use:   "olaf-server",
		Short: "Run one OLAF/Neighbourhood home server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logging.SetDebug(debug)
			return run(configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to a TOML server config (optional)")
	root.Flags().BoolVar(&debug, "debug", false, "enable verbose development logging")

	if err := root.Execute(); err != nil {
		logging.Fatal("server exited", zap.Error(err))
	}
}

func run(configPath string) error {
	cfg, err := config.LoadServerConfig(configPath)
	if err != nil {
		return err
	}

	mongoClient, err := initMongo(cfg.MongoURI)
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	db := mongoClient.Database("olafchat")
	uploadLedger := store.NewUploadLedger(db)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	redisStore := store.NewRedis(rdb)
	offlineQueue := store.NewOfflineQueue(redisStore)
	bytesServed := store.NewBytesServedCounter(redisStore)

	signingKey, err := crypto.GenerateClientKey()
	if err != nil {
		return fmt.Errorf("generate server signing key: %w", err)
	}

	srv := homeserver.New(cfg, offlineQueue)
	mgr := neighbourhood.New(cfg.Address(), signingKey, srv)

	fs, err := fileserver.New(cfg.UploadDir, uploadLedger, bytesServed)
	if err != nil {
		return err
	}

	router := srv.Router()
	fs.Register(router)
	if cfg.MetricsEnabled {
		router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	httpServer := &http.Server{
		Addr:    cfg.Address(),
		Handler: router,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Start(ctx, cfg.PeerServers)

	go func() {
		logging.Info("home server listening", zap.String("address", cfg.Address()))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("http server failed", zap.Error(err))
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)
	<-done

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logging.Warn("http server shutdown error", zap.Error(err))
	}
	_ = logging.Sync()
	return nil
}

func initMongo(uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	return client, client.Ping(ctx, nil)
}

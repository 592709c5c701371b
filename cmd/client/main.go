package main

import (
	"context"
	"crypto/rsa"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"olafchat/internal/client"
	"olafchat/internal/clientui"
	"olafchat/internal/config"
	"olafchat/internal/crypto"
	"olafchat/internal/logging"
	"olafchat/internal/store"
)

func main() {
	var configPath string
	var identity string
	var debug bool

	root := &cobra.Command{
		Use:   "olaf-client",
		Short: "Connect to an OLAF/Neighbourhood home server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logging.SetDebug(debug)
			return run(configPath, identity)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to a TOML client config (optional)")
	root.Flags().StringVar(&identity, "identity", "", "display name used to load/persist a key pair (overrides config)")
	root.Flags().BoolVar(&debug, "debug", false, "enable verbose development logging")

	if err := root.Execute(); err != nil {
		logging.Fatal("client exited", zap.Error(err))
	}
}

func run(configPath, identityOverride string) error {
	cfg, err := config.LoadClientConfig(configPath)
	if err != nil {
		return err
	}
	name := cfg.Identity
	if identityOverride != "" {
		name = identityOverride
	}
	if name == "" {
		return fmt.Errorf("no identity given: pass --identity or set identity in the config")
	}

	var identityStore *store.IdentityStore
	var counterStore *store.CounterStore

	if cfg.MongoURI != "" {
		mongoClient, err := initMongo(cfg.MongoURI)
		if err != nil {
			logging.Warn("mongo unavailable, identity will not persist across runs", zap.Error(err))
		} else {
			identityStore = store.NewIdentityStore(mongoClient.Database("olafchat"))
		}
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		counterStore = store.NewCounterStore(store.NewRedis(rdb))
	}

	ctx := context.Background()
	priv, err := loadOrCreateIdentity(ctx, identityStore, name)
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}

	fp, err := crypto.Fingerprint(&priv.PublicKey)
	if err != nil {
		return err
	}
	startCounter, err := loadStartCounter(ctx, counterStore, fp)
	if err != nil {
		return fmt.Errorf("load counter: %w", err)
	}

	ui := clientui.New()

	c, err := client.Dial(ctx, cfg.HomeServer, priv, startCounter, ui)
	if err != nil {
		return fmt.Errorf("dial home server: %w", err)
	}
	ui.Attach(c)

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-done
		persistCounter(ctx, counterStore, c)
		_ = c.Close()
		os.Exit(0)
	}()

	if err := ui.Run(); err != nil {
		return err
	}
	persistCounter(ctx, counterStore, c)
	return c.Close()
}

func loadOrCreateIdentity(ctx context.Context, s *store.IdentityStore, name string) (*rsa.PrivateKey, error) {
	if s != nil {
		priv, ok, err := s.Load(ctx, name)
		if err != nil {
			return nil, err
		}
		if ok {
			return priv, nil
		}
	}

	priv, err := crypto.GenerateClientKey()
	if err != nil {
		return nil, err
	}
	if s != nil {
		if err := s.Save(ctx, name, priv); err != nil {
			logging.Warn("failed to persist new identity", zap.Error(err))
		}
	}
	return priv, nil
}

func loadStartCounter(ctx context.Context, cs *store.CounterStore, fingerprint string) (uint64, error) {
	if cs == nil {
		return 1, nil
	}
	last, err := cs.Load(ctx, fingerprint)
	if err != nil {
		return 0, err
	}
	return last + 1, nil
}

func persistCounter(ctx context.Context, cs *store.CounterStore, c *client.Client) {
	if cs == nil {
		return
	}
	if err := cs.Save(ctx, c.Fingerprint(), c.LastCounter()); err != nil {
		logging.Warn("failed to persist counter", zap.Error(err))
	}
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

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/redis/go-redis/v9"
	"github.com/venaticlol/venatic/internal/config"
	"github.com/venaticlol/venatic/internal/database"
	"github.com/venaticlol/venatic/internal/handlers"
	"github.com/venaticlol/venatic/internal/hub"
	"github.com/venaticlol/venatic/internal/keyValue"
	"github.com/venaticlol/venatic/internal/keyauth"
	"github.com/venaticlol/venatic/internal/models"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Options struct {
	ConfigPath    string `short:"c" long:"config" description:"Path of the JSON config file" default:"config.json"`
	SelfContained bool   `long:"self-contained" description:"Use sqlite and in process key-value and pub/sub instead of mysql and redis"`
}

func setupLogger(cfg *models.ConfigFile) (*zap.SugaredLogger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.OutputPaths = []string{"stdout"}
	if cfg.LogToFile {
		zapConfig.OutputPaths = append(zapConfig.OutputPaths, "app.log")
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	return logger.Sugar(), nil
}

func setupRedis(ctx context.Context, cfg *models.ConfigFile) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	err := rdb.Ping(ctx).Err()
	if err != nil {
		return nil, err
	}

	return rdb, nil
}

func run(ctx context.Context, cfg *models.ConfigFile, sugar *zap.SugaredLogger) error {
	if cfg.ConvertImages {
		sugar.Info("Looking for ffmpeg...")
		_, err := exec.LookPath("ffmpeg")
		if err != nil {
			return fmt.Errorf("ConvertImages needs ffmpeg: %w", err)
		}
	}

	db, err := database.Setup(cfg, sugar)
	if err != nil {
		return err
	}
	defer db.Close()

	var redisClient *redis.Client
	var broker hub.Broker

	if cfg.SelfContained {
		broker = hub.NewLocalPubSub(sugar)
	} else {
		sugar.Info("Connecting to redis...")
		redisClient, err = setupRedis(ctx, cfg)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		broker = hub.NewRedisPubSub(sugar, redisClient)
	}

	kv := keyValue.New(sugar, redisClient, cfg.SelfContained)
	defer kv.Close()

	license := keyauth.New(keyauth.Options{
		Name:    cfg.KeyAuthName,
		OwnerID: cfg.KeyAuthOwnerID,
		Version: cfg.KeyAuthVersion,
		URL:     cfg.KeyAuthURL,
	}, sugar)

	// the portal keeps working without the vendor, license checks retry init
	err = license.Init(ctx)
	if err != nil {
		sugar.Warnf("KeyAuth init failed: %v", err)
	}

	h, err := handlers.New(cfg, sugar, db, kv, hub.New(sugar, broker), license)
	if err != nil {
		return err
	}

	isHttps := cfg.TlsCert != "" && cfg.TlsKey != ""

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Address, cfg.Port),
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		var err error
		if isHttps {
			sugar.Infof("Server is running on https://%s", server.Addr)
			err = server.ListenAndServeTLS(cfg.TlsCert, cfg.TlsKey)
		} else {
			sugar.Infof("Server is running on http://%s", server.Addr)
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		sugar.Info("Shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}

func main() {
	var opts Options
	_, err := flags.Parse(&opts)
	if err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(1)
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if opts.SelfContained {
		cfg.SelfContained = true
	}

	sugar, err := setupLogger(cfg)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer sugar.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = run(ctx, cfg, sugar)
	if err != nil {
		sugar.Fatal(err)
	}
}

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bricks-cloud/dkpii/internal/config"
	"github.com/bricks-cloud/dkpii/internal/logger/zap"
	"github.com/bricks-cloud/dkpii/internal/pii"
	"github.com/bricks-cloud/dkpii/internal/pii/amazon"
	"github.com/bricks-cloud/dkpii/internal/pii/danish"
	"github.com/bricks-cloud/dkpii/internal/pii/recognizer"
	"github.com/bricks-cloud/dkpii/internal/pii/registry"
	"github.com/bricks-cloud/dkpii/internal/server/web"
	redisStorage "github.com/bricks-cloud/dkpii/internal/storage/redis"
	"github.com/bricks-cloud/dkpii/internal/telemetry"
	"github.com/dlclark/regexp2"
	"github.com/gin-gonic/gin"
)

func recognizerOptions(cfg *config.Config) []recognizer.Option {
	opts := []recognizer.Option{
		recognizer.WithEnhancer(&recognizer.ContextEnhancer{
			SimilarityFactor:    cfg.ContextBoost,
			MinScoreWithContext: cfg.ContextMinScore,
			PrefixCount:         cfg.ContextPrefixCount,
			SuffixCount:         cfg.ContextSuffixCount,
		}),
		recognizer.WithMatchTimeout(cfg.MatchTimeout),
	}

	if cfg.IgnoreCase {
		opts = append(opts, recognizer.WithRegexOptions(recognizer.DefaultRegexOptions|regexp2.IgnoreCase))
	}

	return opts
}

func newDefaults(cfg *config.Config) ([]recognizer.EntityRecognizer, error) {
	rs, err := danish.Defaults(danish.Options{
		CprChecksum: cfg.CprChecksum,
		LegacyPhone: cfg.LegacyPhone,
		Recognizer:  recognizerOptions(cfg),
	})
	if err != nil {
		return nil, err
	}

	defaults := make([]recognizer.EntityRecognizer, 0, len(rs))
	for _, r := range rs {
		defaults = append(defaults, r)
	}

	return defaults, nil
}

func newRegistry(cfg *config.Config, defaults []recognizer.EntityRecognizer) (*registry.Registry, error) {
	reg := registry.New()
	reg.Add(defaults...)

	if len(cfg.RecognizersFile) != 0 {
		if err := reg.LoadFile(cfg.RecognizersFile, recognizerOptions(cfg)...); err != nil {
			return nil, err
		}
	}

	return reg, nil
}

func main() {
	modePtr := flag.String("m", "dev", "select the mode that dkpii runs in")
	envPtr := flag.String("e", ".env", "path of an optional .env file")
	flag.Parse()

	lg := zap.NewLogger(*modePtr)
	defer lg.Sync()

	gin.SetMode(gin.ReleaseMode)

	if err := config.LoadDotEnv(*envPtr); err != nil {
		lg.Sugar().Fatalf("cannot load .env file: %v", err)
	}

	cfg, err := config.ParseEnvVariables()
	if err != nil {
		lg.Sugar().Fatalf("cannot parse environment variables: %v", err)
	}

	if err := telemetry.Init(cfg); err != nil {
		lg.Sugar().Fatalf("cannot initialize telemetry: %v", err)
	}

	otelShutdown, err := telemetry.SetupOTelSDK(context.Background(), cfg)
	if err != nil {
		lg.Sugar().Fatalf("cannot set up open telemetry: %v", err)
	}

	defaults, err := newDefaults(cfg)
	if err != nil {
		lg.Sugar().Fatalf("cannot build default recognizers: %v", err)
	}

	reg, err := newRegistry(cfg, defaults)
	if err != nil {
		lg.Sugar().Fatalf("cannot build recognizer registry: %v", err)
	}

	lg.Sugar().Infof("recognizer registry holds %d recognizers for languages %v", reg.Len(), reg.Languages())

	var reloader *registry.Reloader
	if len(cfg.RecognizersFile) != 0 && cfg.RecognizersReload > 0 {
		reloader, err = registry.NewReloader(reg, cfg.RecognizersFile, cfg.RecognizersReload, defaults, lg, recognizerOptions(cfg)...)
		if err != nil {
			lg.Sugar().Fatalf("cannot watch recognizers file: %v", err)
		}

		reloader.Listen()
	}

	remote := []pii.Detector{}
	if cfg.AmazonEnabled {
		c, err := amazon.NewClient(amazon.Config{
			Region:          cfg.AmazonRegion,
			LanguageCode:    cfg.AmazonLanguageCode,
			AccessKeyId:     cfg.AmazonAccessKeyId,
			SecretAccessKey: cfg.AmazonSecretAccessKey,
			RequestTimeout:  cfg.AmazonRequestTimeout,
			ConnectTimeout:  cfg.AmazonConnectTimeout,
			MaxElapsedTime:  cfg.AmazonMaxElapsedTime,
		}, lg)
		if err != nil {
			lg.Sugar().Fatalf("cannot create amazon comprehend client: %v", err)
		}

		remote = append(remote, c)
	}

	var cache web.AnalysisCache
	if cfg.RedisEnabled {
		rc, err := redisStorage.NewClient(redisStorage.Options{
			Hosts:        cfg.RedisHosts,
			Port:         cfg.RedisPort,
			Username:     cfg.RedisUsername,
			Password:     cfg.RedisPassword,
			Db:           cfg.RedisDb,
			ReadTimeout:  cfg.RedisReadTimeout,
			WriteTimeout: cfg.RedisWriteTimeout,
		})
		if err != nil {
			lg.Sugar().Fatalf("cannot connect to redis: %v", err)
		}
		defer rc.Close()

		cache = redisStorage.NewAnalysisCache(rc, cfg.RedisWriteTimeout, cfg.RedisReadTimeout, cfg.AnalysisCacheTtl)
	}

	s := web.NewServer(web.Config{
		Port:           cfg.Port,
		Mode:           *modePtr,
		Language:       cfg.Language,
		ScoreThreshold: cfg.ScoreThreshold,
		OtelEnabled:    cfg.OpenTelemetryEnabled,
		OtelService:    cfg.OpenTelemetryService,
	}, lg, reg, cache, remote...)

	s.Run()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	lg.Info("shutting down server...")

	if reloader != nil {
		reloader.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		lg.Sugar().Debugf("pii server shutdown: %v", err)
	}

	if err := otelShutdown(ctx); err != nil {
		lg.Sugar().Debugf("open telemetry shutdown: %v", err)
	}

	if err := telemetry.Close(); err != nil {
		lg.Sugar().Debugf("telemetry shutdown: %v", err)
	}

	lg.Info("server exited")
}

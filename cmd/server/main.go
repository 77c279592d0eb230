package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/food-api/internal/config"
	"github.com/Brownie44l1/food-api/internal/handlers"
	"github.com/Brownie44l1/food-api/internal/imaging"
	"github.com/Brownie44l1/food-api/internal/logging"
	"github.com/Brownie44l1/food-api/internal/model"
	"github.com/Brownie44l1/food-api/internal/nutrition"
	"github.com/Brownie44l1/food-api/internal/prediction"
	"github.com/Brownie44l1/food-api/internal/weights"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("Could not read .env file")
	}
	cfg := config.Load()

	logger, logCloser, err := logging.New(logging.Options{
		Directory: cfg.LogDirectory,
		Level:     cfg.LogLevel,
	})
	if err != nil {
		logrus.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logCloser.Close()

	if err := run(cfg, logger); err != nil {
		logger.Fatalf("Server failed: %v", err)
	}
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	for _, dir := range []string{cfg.UploadDir, cfg.DetectionDir, cfg.WeightsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create %s", dir)
		}
	}

	db, err := nutrition.Open(cfg.NutritionDB)
	if err != nil {
		return errors.Wrap(err, "open nutrition database")
	}
	defer db.Close()
	logger.Infof("Nutrition database: %s", cfg.NutritionDB)

	if err := model.InitRuntime(cfg.OnnxLibPath); err != nil {
		return err
	}
	defer model.DestroyRuntime()

	predictor, err := prediction.NewPredictor(prediction.Options{
		Weights:   weights.NewCache(cfg.WeightsDir, cfg.WeightsURL, weights.GetterFetcher{}, logger.WithField("component", "weights")),
		Load:      prediction.ONNXLoader,
		Decoder:   imaging.Decoder{},
		Annotator: imaging.Annotator{},
		Nutrition: db,
		Logger:    logger.WithField("component", "prediction"),
	})
	if err != nil {
		return err
	}
	defer predictor.Close()

	handler := handlers.NewHandler(predictor, cfg, logger)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handlers.NewRouter(handler, logger),
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSec) * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on port %d", cfg.Port)
		logger.Infof("Model: %s (min_conf=%.2f, min_iou=%.2f), weights in %s", cfg.ModelName, cfg.MinConf, cfg.MinIoU, cfg.WeightsDir)
		logger.Info("Endpoints:")
		logger.Info("  GET  /         - API description")
		logger.Info("  GET  /health   - Health check")
		logger.Info("  POST /analyze  - Detect food and nutrition in an image upload")
		logger.Infof("Upload test: curl -X POST -F \"file=@lunch.jpg\" http://localhost:%d/analyze", cfg.Port)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

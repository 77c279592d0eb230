package handlers

import (
	"context"
	"net/http"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/food-api/internal/config"
	"github.com/Brownie44l1/food-api/internal/model"
	"github.com/Brownie44l1/food-api/internal/prediction"
	"github.com/Brownie44l1/food-api/internal/upload"
)

type Predictor interface {
	Predict(ctx context.Context, args model.Arguments) (*prediction.Prediction, error)
}

type Handler struct {
	predictor Predictor
	cfg       *config.Config
	logger    logrus.FieldLogger
}

func NewHandler(predictor Predictor, cfg *config.Config, logger logrus.FieldLogger) *Handler {
	return &Handler{
		predictor: predictor,
		cfg:       cfg,
		logger:    logger,
	}
}

func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, IndexResponse{
		Message:    "Food Recognition API - YOLOv8",
		Endpoint:   "/analyze",
		Method:     http.MethodPost,
		Parameters: upload.FormField + " (multipart/form-data)",
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Analyze stores the uploaded image, runs detection on it and returns labels, scores, boxes
// and nutrition facts.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes())

	file, err := upload.Process(r, h.cfg.UploadDir)
	if err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			respondError(w, http.StatusRequestEntityTooLarge, "File too large")
		case errors.Is(err, upload.ErrNoFile):
			respondError(w, http.StatusBadRequest, "No file provided")
		default:
			h.logger.WithError(err).Error("Failed to store upload")
			respondError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	log := h.logger.WithField("file", file.Filename)
	if file.Filetype != upload.Image {
		log.Infof("Rejected %s upload", file.Filetype)
		respondError(w, http.StatusBadRequest, "Only image files are supported")
		return
	}

	args := model.Arguments{
		ModelName:  h.cfg.ModelName,
		InputPath:  file.Filepath,
		OutputPath: filepath.Join(h.cfg.DetectionDir, file.Filename),
		MinConf:    h.cfg.MinConf,
		MinIoU:     h.cfg.MinIoU,
	}
	pred, err := h.predictor.Predict(r.Context(), args)
	if err != nil {
		h.respondPredictError(w, log, err)
		return
	}

	log.Infof("Detected %d items", len(pred.Result.Labels))
	respondJSON(w, http.StatusOK, newAnalyzeResponse(pred.Result))
}

func (h *Handler) respondPredictError(w http.ResponseWriter, log logrus.FieldLogger, err error) {
	var (
		inputErr    *prediction.InputError
		decodeErr   *prediction.DecodeError
		resourceErr *prediction.ResourceError
	)
	switch {
	case errors.As(err, &inputErr):
		respondError(w, http.StatusBadRequest, inputErr.Message)
	case errors.As(err, &decodeErr):
		log.WithError(err).Warn("Upload is not a decodable image")
		respondError(w, http.StatusUnprocessableEntity, "Could not decode image")
	case errors.As(err, &resourceErr):
		log.WithError(err).Error("Model unavailable")
		respondError(w, http.StatusServiceUnavailable, "Model unavailable")
	default:
		log.WithError(err).Error("Prediction failed")
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

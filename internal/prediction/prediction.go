// Package prediction runs an uploaded image through a detection model and joins the detected
// labels against the nutrition database.
package prediction

import (
	"context"
	"fmt"
	"image"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/food-api/internal/model"
	"github.com/Brownie44l1/food-api/internal/nutrition"
	"github.com/Brownie44l1/food-api/internal/weights"
)

const KindDetection = "detection"

type WeightStore interface {
	Ensure(ctx context.Context, modelName string) (weights.Files, error)
}

type Pipeline interface {
	ClassNames() []string
	Inference(ctx context.Context, img image.Image, args model.Arguments) (*model.Batch, error)
	Close() error
}

type Loader func(files weights.Files) (Pipeline, error)

type ImageDecoder interface {
	Decode(path string) (image.Image, error)
}

type Annotator interface {
	Annotate(inputPath, outputPath string, boxes []model.Box, captions []string) error
}

type NutritionLookup interface {
	Lookup(ctx context.Context, names []string) (*nutrition.Facts, error)
}

func ONNXLoader(files weights.Files) (Pipeline, error) {
	return model.NewPipeline(files.Weights, files.Metadata)
}

// Result is the serializable outcome of one detection run. All slices share one length;
// Nutrition is nil only when the nutrition backend failed.
type Result struct {
	Boxes     []model.Box      `json:"boxes"`
	Labels    []int            `json:"labels"`
	Scores    []float32        `json:"scores"`
	Names     []string         `json:"names"`
	Nutrition *nutrition.Facts `json:"nutrition"`
}

type Prediction struct {
	OutputPath string
	Kind       string
	Result     Result
}

type Options struct {
	Weights   WeightStore
	Load      Loader
	Decoder   ImageDecoder
	Nutrition NutritionLookup
	// Annotator is optional; without it no output image is written.
	Annotator Annotator
	Logger    logrus.FieldLogger
}

type Predictor struct {
	weights   WeightStore
	load      Loader
	decoder   ImageDecoder
	nutrition NutritionLookup
	annotator Annotator
	logger    logrus.FieldLogger

	mu        sync.Mutex
	pipelines map[string]Pipeline
}

func NewPredictor(opts Options) (*Predictor, error) {
	if opts.Weights == nil || opts.Load == nil || opts.Decoder == nil || opts.Nutrition == nil {
		return nil, errors.New("predictor requires weights, loader, decoder and nutrition")
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Predictor{
		weights:   opts.Weights,
		load:      opts.Load,
		decoder:   opts.Decoder,
		nutrition: opts.Nutrition,
		annotator: opts.Annotator,
		logger:    opts.Logger,
		pipelines: make(map[string]Pipeline),
	}, nil
}

// Predict detects food items in the image at args.InputPath. Only ModelName, the paths and
// the thresholds of args are read; the rest is rebuilt with the resolved weight path.
func (p *Predictor) Predict(ctx context.Context, args model.Arguments) (*Prediction, error) {
	if err := validateThreshold("min_conf", args.MinConf); err != nil {
		return nil, err
	}
	if err := validateThreshold("min_iou", args.MinIoU); err != nil {
		return nil, err
	}

	img, err := p.decoder.Decode(args.InputPath)
	if err != nil {
		return nil, &DecodeError{Path: args.InputPath, Err: err}
	}

	files, err := p.weights.Ensure(ctx, args.ModelName)
	if err != nil {
		return nil, &ResourceError{Model: args.ModelName, Err: err}
	}
	pipeline, err := p.pipeline(args.ModelName, files)
	if err != nil {
		return nil, &ResourceError{Model: args.ModelName, Err: err}
	}

	args = model.NewArguments(args.ModelName, args.InputPath, args.OutputPath, files.Weights, args.MinConf, args.MinIoU)
	batch, err := pipeline.Inference(ctx, img, args)
	if err != nil {
		return nil, errors.Wrapf(err, "run %s on %s", args.ModelName, args.InputPath)
	}

	result := Result{
		Boxes:  []model.Box{},
		Labels: []int{},
		Scores: []float32{},
		Names:  []string{},
	}
	if len(batch.Boxes) > 0 {
		result.Boxes = batch.Boxes[0]
		result.Labels = batch.Labels[0]
		result.Scores = batch.Scores[0]
	}
	result.Names = labelNames(pipeline.ClassNames(), result.Labels)

	facts, err := p.nutrition.Lookup(ctx, result.Names)
	if err != nil {
		p.logger.WithError(err).Warn("Nutrition lookup failed, returning detections without nutrition")
	} else {
		result.Nutrition = facts
	}

	p.annotate(args, result)

	return &Prediction{
		OutputPath: args.OutputPath,
		Kind:       KindDetection,
		Result:     result,
	}, nil
}

func (p *Predictor) annotate(args model.Arguments, result Result) {
	if p.annotator == nil || args.OutputPath == "" {
		return
	}
	captions := make([]string, len(result.Names))
	for i, name := range result.Names {
		captions[i] = fmt.Sprintf("%s %.2f", name, result.Scores[i])
	}
	if err := p.annotator.Annotate(args.InputPath, args.OutputPath, result.Boxes, captions); err != nil {
		p.logger.WithError(err).Warnf("Could not render detections to %s", args.OutputPath)
	}
}

// pipeline returns the cached pipeline for modelName, loading it on first use.
func (p *Predictor) pipeline(modelName string, files weights.Files) (Pipeline, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pipeline, ok := p.pipelines[modelName]; ok {
		return pipeline, nil
	}
	pipeline, err := p.load(files)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", files.Weights)
	}
	p.logger.Infof("Loaded model %s with %d classes", modelName, len(pipeline.ClassNames()))
	p.pipelines[modelName] = pipeline
	return pipeline, nil
}

func (p *Predictor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for name, pipeline := range p.pipelines {
		if err := pipeline.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "close model %s", name)
		}
		delete(p.pipelines, name)
	}
	return firstErr
}

// labelNames maps class indices to display names. Indices outside the table fall back to
// their decimal form.
func labelNames(classes []string, labels []int) []string {
	names := make([]string, len(labels))
	for i, label := range labels {
		if label >= 0 && label < len(classes) {
			names[i] = strings.ReplaceAll(classes[label], "-", " ")
		} else {
			names[i] = strconv.Itoa(label)
		}
	}
	return names
}

func validateThreshold(name string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return &InputError{Message: fmt.Sprintf("%s must be between 0 and 1", name)}
	}
	return nil
}

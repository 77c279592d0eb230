package model

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

const (
	DefaultInputName  = "images"
	DefaultOutputName = "output0"
	DefaultImageSize  = 640

	// Fixed test-time augmentation settings carried on every argument bundle.
	DefaultTTAEnsembleMode  = "wbf"
	DefaultTTAConfThreshold = 0.01
	DefaultTTAIoUThreshold  = 0.9
)

type Metadata struct {
	InputName  string   `json:"input_name"`
	OutputName string   `json:"output_name"`
	ImageSize  int      `json:"image_size"`
	Classes    []string `json:"classes"`
	// OutputShape is optional; when absent it is derived from ImageSize and the class count.
	OutputShape []int64 `json:"output_shape,omitempty"`
}

func LoadMetadata(path string) (Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, errors.Wrap(err, "read metadata")
	}

	var metadata Metadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return Metadata{}, errors.Wrap(err, "parse metadata")
	}
	if len(metadata.Classes) == 0 {
		return Metadata{}, errors.Errorf("metadata %s lists no classes", path)
	}
	if metadata.InputName == "" {
		metadata.InputName = DefaultInputName
	}
	if metadata.OutputName == "" {
		metadata.OutputName = DefaultOutputName
	}
	if metadata.ImageSize == 0 {
		metadata.ImageSize = DefaultImageSize
	}
	if metadata.ImageSize%32 != 0 || metadata.ImageSize < 0 {
		return Metadata{}, errors.Errorf("image size %d is not a positive multiple of 32", metadata.ImageSize)
	}
	if len(metadata.OutputShape) == 0 {
		metadata.OutputShape = []int64{1, int64(4 + len(metadata.Classes)), int64(numAnchors(metadata.ImageSize))}
	}
	if len(metadata.OutputShape) != 3 || metadata.OutputShape[1] != int64(4+len(metadata.Classes)) {
		return Metadata{}, errors.Errorf("output shape %v does not match %d classes", metadata.OutputShape, len(metadata.Classes))
	}
	return metadata, nil
}

// numAnchors counts the candidate boxes a YOLOv8 head emits over strides 8, 16 and 32.
func numAnchors(size int) int {
	total := 0
	for _, stride := range []int{8, 16, 32} {
		side := size / stride
		total += side * side
	}
	return total
}

type Arguments struct {
	ModelName  string
	InputPath  string
	OutputPath string
	MinConf    float64
	MinIoU     float64
	Weight     string

	TTA              bool
	TTAEnsembleMode  string
	TTAConfThreshold float64
	TTAIoUThreshold  float64
}

func NewArguments(modelName, inputPath, outputPath, weight string, minConf, minIoU float64) Arguments {
	return Arguments{
		ModelName:        modelName,
		InputPath:        inputPath,
		OutputPath:       outputPath,
		MinConf:          minConf,
		MinIoU:           minIoU,
		Weight:           weight,
		TTA:              false,
		TTAEnsembleMode:  DefaultTTAEnsembleMode,
		TTAConfThreshold: DefaultTTAConfThreshold,
		TTAIoUThreshold:  DefaultTTAIoUThreshold,
	}
}

// Box is [x1, y1, x2, y2] in pixels of the original image.
type Box [4]float32

type Detection struct {
	Box   Box
	Label int
	Score float32
}

// Batch holds detections per input image. The pipeline runs one image per call, so every
// slice has exactly one entry.
type Batch struct {
	Boxes  [][]Box
	Labels [][]int
	Scores [][]float32
}

func newBatch(detections []Detection) *Batch {
	boxes := make([]Box, len(detections))
	labels := make([]int, len(detections))
	scores := make([]float32, len(detections))
	for i, d := range detections {
		boxes[i] = d.Box
		labels[i] = d.Label
		scores[i] = d.Score
	}
	return &Batch{
		Boxes:  [][]Box{boxes},
		Labels: [][]int{labels},
		Scores: [][]float32{scores},
	}
}

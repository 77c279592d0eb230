package model

import (
	"context"
	"image"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

const maxDetections = 300

var ErrTTAUnsupported = errors.New("test-time augmentation is not supported")

// Pipeline is a loaded YOLOv8 ONNX session. The session owns fixed input and output tensors,
// so calls to Inference are serialized.
type Pipeline struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	metadata     Metadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// NewPipeline loads weights and their metadata sidecar. InitRuntime must have succeeded first.
func NewPipeline(weightPath, metadataPath string) (*Pipeline, error) {
	if !ort.IsInitialized() {
		return nil, errors.New("onnxruntime environment is not initialized")
	}

	metadata, err := LoadMetadata(metadataPath)
	if err != nil {
		return nil, err
	}

	size := int64(metadata.ImageSize)
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		return nil, errors.Wrap(err, "create input tensor")
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, errors.Wrap(err, "create output tensor")
	}

	session, err := ort.NewAdvancedSession(weightPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, errors.Wrapf(err, "create onnx session for %s", weightPath)
	}

	return &Pipeline{
		session:      session,
		metadata:     metadata,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

func (p *Pipeline) ClassNames() []string {
	return p.metadata.Classes
}

// Inference detects objects in img and returns them as a single-image batch.
func (p *Pipeline) Inference(ctx context.Context, img image.Image, args Arguments) (*Batch, error) {
	if args.TTA {
		return nil, ErrTTAUnsupported
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	size := p.metadata.ImageSize
	input, lb := letterbox(img, size)

	p.mu.Lock()
	copy(p.inputTensor.GetData(), input)
	if err := p.session.Run(); err != nil {
		p.mu.Unlock()
		return nil, errors.Wrap(err, "inference failed")
	}
	output := make([]float32, len(p.outputTensor.GetData()))
	copy(output, p.outputTensor.GetData())
	p.mu.Unlock()

	candidates := int(p.metadata.OutputShape[2])
	detections := decode(output, len(p.metadata.Classes), candidates, float32(args.MinConf))
	for i := range detections {
		detections[i].Box = lb.restore(detections[i].Box, bounds.Dx(), bounds.Dy())
	}
	detections = nonMaxSuppression(detections, float32(args.MinIoU), maxDetections)

	return newBatch(detections), nil
}

func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inputTensor != nil {
		p.inputTensor.Destroy()
		p.inputTensor = nil
	}
	if p.outputTensor != nil {
		p.outputTensor.Destroy()
		p.outputTensor = nil
	}
	if p.session != nil {
		err := p.session.Destroy()
		p.session = nil
		return err
	}
	return nil
}

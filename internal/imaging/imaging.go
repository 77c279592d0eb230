// Package imaging reads uploaded images with OpenCV and renders detection overlays.
package imaging

import (
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/Brownie44l1/food-api/internal/model"
)

var ErrUndecodable = errors.New("image could not be decoded")

var (
	boxColor  = color.RGBA{0, 255, 0, 0}
	textColor = color.RGBA{0, 255, 0, 0}
)

type Decoder struct{}

// Decode loads the file at path as RGB pixels. OpenCV stores pixels in BGR order; ToImage
// swaps the channels while copying into an image.RGBA.
func (Decoder) Decode(path string) (image.Image, error) {
	mat := gocv.IMRead(path, gocv.IMReadColor)
	defer mat.Close()
	if mat.Empty() {
		return nil, errors.Wrap(ErrUndecodable, path)
	}

	img, err := mat.ToImage()
	if err != nil {
		return nil, errors.Wrapf(err, "convert %s", path)
	}
	return img, nil
}

type Annotator struct{}

// Annotate draws boxes with their captions onto the image at inputPath and writes the result
// to outputPath.
func (Annotator) Annotate(inputPath, outputPath string, boxes []model.Box, captions []string) error {
	if len(boxes) != len(captions) {
		return errors.Errorf("%d boxes but %d captions", len(boxes), len(captions))
	}

	img := gocv.IMRead(inputPath, gocv.IMReadColor)
	defer img.Close()
	if img.Empty() {
		return errors.Wrap(ErrUndecodable, inputPath)
	}

	for i, box := range boxes {
		rect := image.Rect(int(box[0]), int(box[1]), int(box[2]), int(box[3]))
		gocv.Rectangle(&img, rect, boxColor, 2)

		origin := image.Pt(rect.Min.X, rect.Min.Y-4)
		if origin.Y < 12 {
			origin.Y = rect.Min.Y + 14
		}
		gocv.PutText(&img, captions[i], origin, gocv.FontHersheyPlain, 1.0, textColor, 2)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return errors.Wrap(err, "create detections directory")
	}
	if !gocv.IMWrite(outputPath, img) {
		return errors.Errorf("write annotated image %s", outputPath)
	}
	return nil
}

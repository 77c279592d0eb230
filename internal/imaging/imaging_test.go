package imaging

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/food-api/internal/model"
)

func writePNG(t *testing.T, dir string, c color.Color) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, c)
		}
	}
	path := filepath.Join(dir, "food.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func TestDecodeReturnsRGB(t *testing.T) {
	path := writePNG(t, t.TempDir(), color.RGBA{R: 200, G: 10, B: 30, A: 255})

	img, err := Decoder{}.Decode(path)
	require.NoError(t, err)

	assert.Equal(t, 40, img.Bounds().Dx())
	assert.Equal(t, 30, img.Bounds().Dy())
	r, g, b, _ := img.At(5, 5).RGBA()
	assert.Equal(t, uint32(200), r>>8)
	assert.Equal(t, uint32(10), g>>8)
	assert.Equal(t, uint32(30), b>>8)
}

func TestDecodeErrors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "broken.jpg")
	require.NoError(t, os.WriteFile(garbage, []byte("definitely not a jpeg"), 0o644))

	tests := []struct {
		name string
		path string
	}{
		{name: "garbage bytes", path: garbage},
		{name: "missing file", path: filepath.Join(dir, "missing.png")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decoder{}.Decode(tt.path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUndecodable))
		})
	}
}

func TestAnnotateWritesOutput(t *testing.T) {
	dir := t.TempDir()
	input := writePNG(t, dir, color.White)
	output := filepath.Join(dir, "detections", "food.png")

	err := Annotator{}.Annotate(input, output,
		[]model.Box{{2, 2, 20, 20}, {10, 5, 38, 28}},
		[]string{"apple 0.91", "hot dog 0.40"})
	require.NoError(t, err)
	assert.FileExists(t, output)

	annotated, err := Decoder{}.Decode(output)
	require.NoError(t, err)
	r, g, b, _ := annotated.At(2, 10).RGBA()
	assert.Equal(t, []uint32{0, 255, 0}, []uint32{r >> 8, g >> 8, b >> 8})
}

func TestAnnotateMismatchedCaptions(t *testing.T) {
	dir := t.TempDir()
	input := writePNG(t, dir, color.White)

	err := Annotator{}.Annotate(input, filepath.Join(dir, "out.png"), []model.Box{{0, 0, 1, 1}}, nil)
	assert.Error(t, err)
}

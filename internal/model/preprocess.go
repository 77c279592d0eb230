package model

import (
	"image"

	"github.com/chewxy/math32"
	"github.com/nfnt/resize"
)

// padValue is the gray YOLOv8 was trained with for letterbox borders.
const padValue = 114.0 / 255.0

type letterboxInfo struct {
	scale float32
	padX  float32
	padY  float32
}

// letterbox scales img to fit a size x size square keeping its aspect ratio, centers it on a
// gray canvas and returns the canvas as a normalized CHW float32 tensor.
func letterbox(img image.Image, size int) ([]float32, letterboxInfo) {
	bounds := img.Bounds()
	w, h := float32(bounds.Dx()), float32(bounds.Dy())

	scale := math32.Min(float32(size)/w, float32(size)/h)
	newW := int(math32.Max(1, math32.Floor(w*scale+0.5)))
	newH := int(math32.Max(1, math32.Floor(h*scale+0.5)))
	padX := (size - newW) / 2
	padY := (size - newH) / 2

	resized := resize.Resize(uint(newW), uint(newH), img, resize.Bilinear)
	rb := resized.Bounds()

	channelSize := size * size
	data := make([]float32, 3*channelSize)
	for i := range data {
		data[i] = padValue
	}
	red := data[0:channelSize]
	green := data[channelSize : 2*channelSize]
	blue := data[2*channelSize:]

	for y := 0; y < newH; y++ {
		for x := 0; x < newW; x++ {
			r, g, b, _ := resized.At(rb.Min.X+x, rb.Min.Y+y).RGBA()
			i := (y+padY)*size + x + padX
			red[i] = float32(r>>8) / 255.0
			green[i] = float32(g>>8) / 255.0
			blue[i] = float32(b>>8) / 255.0
		}
	}

	return data, letterboxInfo{scale: scale, padX: float32(padX), padY: float32(padY)}
}

// restore maps a box from letterboxed model space back onto the original image, clipped to
// its bounds.
func (lb letterboxInfo) restore(box Box, width, height int) Box {
	clip := func(v, max float32) float32 {
		return math32.Min(math32.Max(v, 0), max)
	}
	w, h := float32(width), float32(height)
	return Box{
		clip((box[0]-lb.padX)/lb.scale, w),
		clip((box[1]-lb.padY)/lb.scale, h),
		clip((box[2]-lb.padX)/lb.scale, w),
		clip((box[3]-lb.padY)/lb.scale, h),
	}
}

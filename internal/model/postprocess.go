package model

import (
	"sort"

	"github.com/chewxy/math32"
)

// decode reads a [1, 4+numClasses, candidates] YOLOv8 output. Each candidate keeps its best
// class if that score reaches minConf; boxes come back as corners in model space.
func decode(output []float32, numClasses, candidates int, minConf float32) []Detection {
	detections := make([]Detection, 0, 64)
	for idx := 0; idx < candidates; idx++ {
		label := -1
		best := float32(-1)
		for c := 0; c < numClasses; c++ {
			score := output[(4+c)*candidates+idx]
			if score > best {
				best = score
				label = c
			}
		}
		if label < 0 || best < minConf {
			continue
		}

		xc, yc := output[idx], output[candidates+idx]
		w, h := output[2*candidates+idx], output[3*candidates+idx]
		detections = append(detections, Detection{
			Box:   Box{xc - w/2, yc - h/2, xc + w/2, yc + h/2},
			Label: label,
			Score: best,
		})
	}
	return detections
}

// nonMaxSuppression keeps the highest scoring box of each overlapping same-class group.
// Output is sorted by descending score and capped at limit.
func nonMaxSuppression(detections []Detection, iouThreshold float32, limit int) []Detection {
	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Score > detections[j].Score
	})

	kept := make([]Detection, 0, len(detections))
	for _, candidate := range detections {
		if len(kept) == limit {
			break
		}
		suppressed := false
		for _, k := range kept {
			if k.Label == candidate.Label && iou(k.Box, candidate.Box) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, candidate)
		}
	}
	return kept
}

func iou(a, b Box) float32 {
	x1 := math32.Max(a[0], b[0])
	y1 := math32.Max(a[1], b[1])
	x2 := math32.Min(a[2], b[2])
	y2 := math32.Min(a[3], b[3])

	intersection := math32.Max(0, x2-x1) * math32.Max(0, y2-y1)
	union := area(a) + area(b) - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

func area(b Box) float32 {
	return math32.Max(0, b[2]-b[0]) * math32.Max(0, b[3]-b[1])
}

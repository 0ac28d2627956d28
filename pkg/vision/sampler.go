package vision

import (
	"gocv.io/x/gocv"

	"github.com/teslashibe/go-biotracker/pkg/face"
	"github.com/teslashibe/go-biotracker/pkg/rppg"
)

// Sampler averages the skin color of weighted regions inside a face box.
type Sampler struct {
	Regions []rppg.Region
}

// NewSampler returns a sampler over rppg.DefaultRegions.
func NewSampler() *Sampler {
	return &Sampler{Regions: rppg.DefaultRegions}
}

// Sample decodes jpeg and returns the blended color of the regions.
func (s *Sampler) Sample(jpeg []byte, box face.BoundingBox) (rppg.Color, error) {
	img, err := decode(jpeg)
	if err != nil {
		return rppg.Color{}, err
	}
	defer img.Close()
	return s.SampleMat(img, box)
}

// SampleMat samples a decoded BGR image. Regions that fall outside the
// frame get no weight.
func (s *Sampler) SampleMat(img gocv.Mat, box face.BoundingBox) (rppg.Color, error) {
	colors := make([]rppg.Color, len(s.Regions))
	weights := make([]float64, len(s.Regions))

	for i, r := range s.Regions {
		rect := r.Rect(box, img.Cols(), img.Rows())
		if rect.Empty() {
			continue
		}
		roi := img.Region(rect)
		mean := roi.Mean()
		roi.Close()

		colors[i] = rppg.Color{R: mean.Val3, G: mean.Val2, B: mean.Val1}
		weights[i] = r.Weight
	}

	c, ok := rppg.Blend(colors, weights)
	if !ok {
		return rppg.Color{}, ErrNoSkin
	}
	return c, nil
}

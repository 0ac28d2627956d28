package vision

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-biotracker/pkg/face"
)

// Detection is one face box in pixels.
type Detection struct {
	Box        face.BoundingBox
	Confidence float64
}

// BoxDetector finds face boxes in a JPEG frame.
type BoxDetector interface {
	Detect(jpeg []byte) ([]Detection, error)
	Close() error
}

// YuNetConfig holds detector configuration.
type YuNetConfig struct {
	ModelPath        string  // Path to ONNX model
	ConfidenceThresh float64 // Minimum confidence (default 0.6)
	NMSThresh        float64
	TopK             int
	InputWidth       int // Model input width
	InputHeight      int // Model input height
}

// DefaultYuNetConfig returns production defaults for YuNet.
func DefaultYuNetConfig() YuNetConfig {
	return YuNetConfig{
		ModelPath:        "models/face_detection_yunet.onnx",
		ConfidenceThresh: 0.6,
		NMSThresh:        0.3,
		TopK:             5000,
		InputWidth:       320,
		InputHeight:      320,
	}
}

// YuNet uses OpenCV's FaceDetectorYN.
type YuNet struct {
	detector gocv.FaceDetectorYN
	config   YuNetConfig
	mu       sync.Mutex // Protects inference
}

// NewYuNet loads the model in cfg.
func NewYuNet(cfg YuNetConfig) (*YuNet, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("vision: model file: %w", err)
	}

	// Input size is updated per image
	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"",
		image.Pt(cfg.InputWidth, cfg.InputHeight),
		float32(cfg.ConfidenceThresh),
		float32(cfg.NMSThresh),
		cfg.TopK,
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &YuNet{detector: detector, config: cfg}, nil
}

// Detect finds faces in the JPEG image.
func (d *YuNet) Detect(jpeg []byte) ([]Detection, error) {
	img, err := decode(jpeg)
	if err != nil {
		return nil, err
	}
	defer img.Close()
	return d.DetectMat(img), nil
}

// DetectMat finds faces in a decoded BGR image.
func (d *YuNet) DetectMat(img gocv.Mat) []Detection {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()
	d.detector.Detect(img, &faces)

	// Rows are x, y, w, h, five landmark pairs, then the score.
	dets := make([]Detection, 0, faces.Rows())
	for r := 0; r < faces.Rows(); r++ {
		dets = append(dets, Detection{
			Box: face.BoundingBox{
				X:      float64(faces.GetFloatAt(r, 0)),
				Y:      float64(faces.GetFloatAt(r, 1)),
				Width:  float64(faces.GetFloatAt(r, 2)),
				Height: float64(faces.GetFloatAt(r, 3)),
			},
			Confidence: float64(faces.GetFloatAt(r, 14)),
		})
	}
	return dets
}

// Close releases the detector resources.
func (d *YuNet) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	return nil
}

// SelectBest picks the face with the highest 0.7*confidence plus
// 0.3*area relative to the largest face.
func SelectBest(dets []Detection) (Detection, bool) {
	if len(dets) == 0 {
		return Detection{}, false
	}

	maxArea := 0.0
	for _, d := range dets {
		maxArea = max(maxArea, d.Box.Area())
	}

	best, bestScore := 0, -1.0
	for i, d := range dets {
		score := d.Confidence * 0.7
		if maxArea > 0 {
			score += d.Box.Area() / maxArea * 0.3
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return dets[best], true
}

func decode(jpeg []byte) (gocv.Mat, error) {
	if len(jpeg) == 0 {
		return gocv.Mat{}, ErrEmptyImage
	}
	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("vision: decode image: %w", err)
	}
	if img.Empty() {
		img.Close()
		return gocv.Mat{}, ErrEmptyImage
	}
	return img, nil
}

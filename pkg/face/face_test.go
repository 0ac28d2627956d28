package face

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-biotracker/pkg/emotions"
)

var testBox = BoundingBox{X: 100, Y: 80, Width: 200, Height: 200}

func TestNewLandmarkSet(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		wantErr bool
	}{
		{"six points", 6, false},
		{"too few", 5, true},
		{"too many", 7, true},
		{"empty", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLandmarkSet(make([]Point, tt.n))
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewLandmarkSet() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrLandmarkCount) {
				t.Errorf("error = %v, want ErrLandmarkCount", err)
			}
		})
	}
}

func TestFromLandmarks68(t *testing.T) {
	now := time.Now()
	obs, err := FromLandmarks68(testBox, 0.9, Synthetic(testBox, 0.3), now)
	if err != nil {
		t.Fatalf("FromLandmarks68() error = %v", err)
	}

	if len(obs.Jaw) != 17 || len(obs.Nose) != 9 || len(obs.BrowLeft) != 5 || len(obs.BrowRight) != 5 {
		t.Errorf("feature sizes = %d/%d/%d/%d, want 17/9/5/5",
			len(obs.Jaw), len(obs.Nose), len(obs.BrowLeft), len(obs.BrowRight))
	}
	if obs.LeftEye.Center().X >= obs.RightEye.Center().X {
		t.Error("left eye should sit at smaller x than right eye in the synthetic layout")
	}
	if !obs.CapturedAt.Equal(now) {
		t.Errorf("CapturedAt = %v, want %v", obs.CapturedAt, now)
	}
}

func TestFromLandmarks68WrongCount(t *testing.T) {
	_, err := FromLandmarks68(testBox, 0.9, make([]Point, 67), time.Now())
	if !errors.Is(err, ErrLandmarkCount) {
		t.Errorf("error = %v, want ErrLandmarkCount", err)
	}
}

func TestValidate(t *testing.T) {
	obs := SyntheticObservation(testBox, 0.3, time.Now())
	if err := obs.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	short := *obs
	short.BrowLeft = short.BrowLeft[:2]
	if err := short.Validate(); !errors.Is(err, ErrFeatureTooShort) {
		t.Errorf("Validate() error = %v, want ErrFeatureTooShort", err)
	}

	empty := *obs
	empty.Box = BoundingBox{}
	if err := empty.Validate(); !errors.Is(err, ErrEmptyBox) {
		t.Errorf("Validate() error = %v, want ErrEmptyBox", err)
	}
}

func TestSyntheticEyeOpening(t *testing.T) {
	eye := SyntheticEye(Point{X: 50, Y: 50}, 30, 0.3)
	if got := eye.Opening() / eye.Width(); got < 0.299 || got > 0.301 {
		t.Errorf("opening/width = %v, want 0.3", got)
	}
}

func TestStatic(t *testing.T) {
	s := NewStatic(nil)
	obs, err := s.Detect(context.Background(), nil)
	if err != nil || obs != nil {
		t.Fatalf("Detect() = %v, %v; want nil, nil", obs, err)
	}

	s.Set(SyntheticObservation(testBox, 0.3, time.Now()))
	obs, err = s.Detect(context.Background(), nil)
	if err != nil || obs == nil {
		t.Fatalf("Detect() = %v, %v; want observation", obs, err)
	}
	if s.Calls() != 2 {
		t.Errorf("Calls() = %d, want 2", s.Calls())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Detect(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Detect() on canceled ctx error = %v", err)
	}
}

func landmarkJSON(points []Point) [][2]float64 {
	out := make([][2]float64, len(points))
	for i, p := range points {
		out[i] = [2]float64{p.X, p.Y}
	}
	return out
}

func TestHTTPDetector(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "image/jpeg" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(serviceResponse{Faces: []serviceFace{
			{Box: testBox, Score: 0.6, Landmarks: landmarkJSON(Synthetic(testBox, 0.2))},
			{Box: testBox, Score: 0.95, Landmarks: landmarkJSON(Synthetic(testBox, 0.3)), Expressions: &emotions.Scores{Happy: 0.8}},
			{Box: testBox, Score: 0.1, Landmarks: landmarkJSON(Synthetic(testBox, 0.1))},
		}})
	}))
	defer srv.Close()

	d, err := NewHTTPDetector(srv.URL, WithRetry(2, time.Millisecond))
	if err != nil {
		t.Fatalf("NewHTTPDetector() error = %v", err)
	}
	defer d.Close()

	obs, err := d.Detect(context.Background(), []byte{0xff, 0xd8})
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if obs == nil {
		t.Fatal("Detect() returned no face")
	}
	if obs.Confidence != 0.95 {
		t.Errorf("Confidence = %v, want 0.95", obs.Confidence)
	}
	if obs.Expressions == nil || obs.Expressions.Happy != 0.8 {
		t.Errorf("Expressions = %+v, want happy 0.8", obs.Expressions)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", calls.Load())
	}
}

func TestHTTPDetectorNoFace(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"faces":[]}`))
	}))
	defer srv.Close()

	d, _ := NewHTTPDetector(srv.URL)
	obs, err := d.Detect(context.Background(), nil)
	if err != nil || obs != nil {
		t.Errorf("Detect() = %v, %v; want nil, nil", obs, err)
	}
}

func TestHTTPDetectorClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"not a jpeg"}`))
	}))
	defer srv.Close()

	d, _ := NewHTTPDetector(srv.URL, WithRetry(3, time.Millisecond))
	_, err := d.Detect(context.Background(), nil)

	var se *ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *ServiceError", err)
	}
	if se.StatusCode != 400 || se.Message != "not a jpeg" {
		t.Errorf("ServiceError = %+v", se)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 4xx)", calls.Load())
	}
}

func TestNewHTTPDetectorRequiresURL(t *testing.T) {
	if _, err := NewHTTPDetector(""); !errors.Is(err, ErrNoEndpoint) {
		t.Errorf("error = %v, want ErrNoEndpoint", err)
	}
}

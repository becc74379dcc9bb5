package overlay

import (
	"bytes"
	"errors"
	"image"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-narrator/pkg/capture"
	"github.com/teslashibe/go-narrator/pkg/detection"
	"github.com/teslashibe/go-narrator/pkg/presence"
)

func observation(label string, x1, x2 int, conf float64) presence.Observation {
	d := detection.Detection{X1: x1, Y1: 20, X2: x2, Y2: 200, Label: label, Confidence: conf}
	return presence.Observation{Detection: d, Key: presence.KeyOf(d, 640)}
}

func TestCaption(t *testing.T) {
	tests := []struct {
		obs  presence.Observation
		want string
	}{
		{observation("person", 280, 360, 0.874), "person center 87%"},
		{observation("cup", 10, 60, 0.5), "cup left 50%"},
		{observation("dog", 500, 620, 0.999), "dog right 100%"},
	}
	for _, tc := range tests {
		t.Run(tc.want, func(t *testing.T) {
			if got := Caption(tc.obs); got != tc.want {
				t.Errorf("Caption = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestGuides(t *testing.T) {
	left, right := Guides(640)
	if left != 213 || right != 426 {
		t.Errorf("Guides(640) = %d, %d", left, right)
	}
}

func newFrame(t *testing.T) *capture.Frame {
	t.Helper()
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 480, 640, gocv.MatTypeCV8UC3)
	f := capture.NewFrame(mat, time.Now())
	t.Cleanup(func() { f.Close() })
	return f
}

func TestDrawMarksFrame(t *testing.T) {
	f := newFrame(t)
	img := f.Mat().Clone()
	defer img.Close()

	Draw(&img, []presence.Observation{observation("person", 280, 360, 0.9)})

	// Box edge and guide line pixels are no longer black.
	if v := img.GetVecbAt(100, 280); v[1] == 0 {
		t.Error("expected box edge at x=280")
	}
	if v := img.GetVecbAt(400, 213); v[0] == 0 {
		t.Error("expected guide line at x=213")
	}
	if v := img.GetVecbAt(300, 100); v[0] != 0 || v[1] != 0 || v[2] != 0 {
		t.Error("unexpected paint away from annotations")
	}
}

func TestEncoder(t *testing.T) {
	f := newFrame(t)

	var got [][]byte
	enc, err := NewEncoder(80, 2, func(b []byte) { got = append(got, b) })
	if err != nil {
		t.Fatal(err)
	}

	obs := []presence.Observation{observation("cup", 10, 60, 0.6)}
	for i := 0; i < 3; i++ {
		if err := enc.Render(f, obs); err != nil {
			t.Fatalf("Render: %v", err)
		}
	}

	if len(got) != 2 {
		t.Fatalf("expected every other frame encoded, got %d", len(got))
	}
	if !bytes.HasPrefix(got[0], []byte{0xFF, 0xD8}) {
		t.Error("expected JPEG SOI marker")
	}

	img, err := gocv.IMDecode(got[0], gocv.IMReadColor)
	if err != nil {
		t.Fatal(err)
	}
	defer img.Close()
	if img.Cols() != 640 || img.Rows() != 480 {
		t.Errorf("decoded %v", image.Pt(img.Cols(), img.Rows()))
	}

	// The source frame is not modified.
	if v := f.Mat().GetVecbAt(100, 10); v[1] != 0 {
		t.Error("encoder drew on the source frame")
	}
}

func TestEncoderRejects(t *testing.T) {
	if _, err := NewEncoder(0, 1, nil); !errors.Is(err, ErrInvalidQuality) {
		t.Errorf("expected ErrInvalidQuality, got %v", err)
	}

	enc, _ := NewEncoder(80, 1, func([]byte) {})
	err := enc.Render(detection.BlankFrame{W: 640, H: 480}, nil)
	if !errors.Is(err, detection.ErrUnsupportedFrame) {
		t.Errorf("expected ErrUnsupportedFrame, got %v", err)
	}
}

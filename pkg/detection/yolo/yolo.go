// Package yolo provides object detection with YOLOv8/YOLO11 ONNX models
// through the OpenCV DNN module.
package yolo

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-narrator/pkg/capture"
	"github.com/teslashibe/go-narrator/pkg/detection"
)

// ErrModelNotFound is returned when no model file exists at the given path.
var ErrModelNotFound = errors.New("yolo: model file not found")

// Detector uses a YOLO model for general object detection.
type Detector struct {
	net       gocv.Net
	config    Config
	mu        sync.Mutex
	inputSize image.Point
	logger    *slog.Logger
}

// Config holds YOLO detector configuration.
type Config struct {
	ModelPath         string
	FallbackModelPath string // Tried when ModelPath is missing or unreadable
	ConfidenceThresh  float32
	NMSThresh         float32
	InputWidth        int
	InputHeight       int
	Logger            *slog.Logger
}

// DefaultConfig returns production defaults for YOLO11n with a YOLOv8n
// fallback.
func DefaultConfig() Config {
	return Config{
		ModelPath:         "models/yolo11n.onnx",
		FallbackModelPath: "models/yolov8n.onnx",
		ConfidenceThresh:  0.5,
		NMSThresh:         0.45,
		InputWidth:        640,
		InputHeight:       640,
	}
}

// New creates a YOLO detector. If the primary model cannot be loaded and a
// fallback path is configured, the fallback is loaded instead.
func New(cfg Config) (*Detector, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "yolo")

	net, path, err := loadNet(cfg.ModelPath)
	if err != nil && cfg.FallbackModelPath != "" {
		logger.Warn("primary model unavailable, falling back",
			"model", cfg.ModelPath,
			"fallback", cfg.FallbackModelPath,
			"error", err,
		)
		net, path, err = loadNet(cfg.FallbackModelPath)
	}
	if err != nil {
		return nil, err
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	logger.Info("model loaded", "model", path)

	return &Detector{
		net:       net,
		config:    cfg,
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
		logger:    logger,
	}, nil
}

func loadNet(path string) (gocv.Net, string, error) {
	if _, err := os.Stat(path); err != nil {
		return gocv.Net{}, path, fmt.Errorf("%w: %s", ErrModelNotFound, path)
	}
	net := gocv.ReadNetFromONNX(path)
	if net.Empty() {
		return gocv.Net{}, path, fmt.Errorf("yolo: failed to load model from %s", path)
	}
	return net, path, nil
}

// Detect finds objects in the frame. The frame must carry an OpenCV matrix.
func (d *Detector) Detect(frame detection.Frame) ([]detection.Detection, error) {
	mf, ok := frame.(capture.MatFrame)
	if !ok {
		return nil, detection.ErrUnsupportedFrame
	}
	return d.DetectMat(mf.Mat())
}

// DetectMat finds objects in a BGR image.
func (d *Detector) DetectMat(img gocv.Mat) ([]detection.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if img.Empty() {
		return nil, fmt.Errorf("yolo: empty image")
	}

	imgW := float32(img.Cols())
	imgH := float32(img.Rows())

	blob := gocv.BlobFromImage(img, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")

	output := d.net.Forward("")
	defer output.Close()

	dets := d.parseOutput(output, imgW, imgH)
	if len(dets) > 0 {
		d.logger.Debug("objects detected", "count", len(dets))
	}
	return dets, nil
}

// parseOutput decodes a [1, 4+classes, anchors] tensor, the layout shared
// by YOLOv8 and YOLO11.
func (d *Detector) parseOutput(output gocv.Mat, imgW, imgH float32) []detection.Detection {
	sizes := output.Size()
	if len(sizes) != 3 || sizes[1] <= 4 {
		d.logger.Warn("unexpected output shape", "shape", sizes)
		return nil
	}
	attrs := sizes[1]   // 4 bbox + classes
	anchors := sizes[2] // candidate boxes

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil
	}

	var boxes []image.Rectangle
	var confidences []float32
	var classIDs []int

	for i := 0; i < anchors; i++ {
		maxScore := float32(0)
		maxClassID := 0
		for c := 4; c < attrs; c++ {
			if score := data[c*anchors+i]; score > maxScore {
				maxScore = score
				maxClassID = c - 4
			}
		}
		if maxScore < d.config.ConfidenceThresh {
			continue
		}

		cx := data[0*anchors+i]
		cy := data[1*anchors+i]
		w := data[2*anchors+i]
		h := data[3*anchors+i]

		sx := imgW / float32(d.config.InputWidth)
		sy := imgH / float32(d.config.InputHeight)
		boxes = append(boxes, image.Rect(
			int((cx-w/2)*sx), int((cy-h/2)*sy),
			int((cx+w/2)*sx), int((cy+h/2)*sy),
		))
		confidences = append(confidences, maxScore)
		classIDs = append(classIDs, maxClassID)
	}

	if len(boxes) == 0 {
		return nil
	}

	indices := gocv.NMSBoxes(boxes, confidences, d.config.ConfidenceThresh, d.config.NMSThresh)

	out := make([]detection.Detection, 0, len(indices))
	for _, idx := range indices {
		box := clampRect(boxes[idx], int(imgW), int(imgH))
		if box.Empty() {
			continue
		}
		out = append(out, detection.Detection{
			X1:         box.Min.X,
			Y1:         box.Min.Y,
			X2:         box.Max.X,
			Y2:         box.Max.Y,
			Label:      ClassName(classIDs[idx]),
			Confidence: float64(confidences[idx]),
		})
	}
	return out
}

func clampRect(r image.Rectangle, w, h int) image.Rectangle {
	return r.Intersect(image.Rect(0, 0, w, h))
}

// Close releases the detector resources
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

// ClassName returns the COCO class name for id, or "object" when out of range.
func ClassName(id int) string {
	if id < 0 || id >= len(COCOClasses) {
		return "object"
	}
	return COCOClasses[id]
}

// COCOClasses contains the 80 COCO class names
var COCOClasses = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator",
	"book", "clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}

// Verify Detector implements detection.Detector at compile time.
var _ detection.Detector = (*Detector)(nil)

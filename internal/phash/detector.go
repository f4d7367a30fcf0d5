package phash

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/Krystofire88/DualModeReplayBuffer/internal/frame"
	"github.com/Krystofire88/DualModeReplayBuffer/internal/pathname"
)

// JPEGQuality is the fixed snapshot encoding quality.
const JPEGQuality = 85

// Snapshot is the catalog-bound record emitted on acceptance.
type Snapshot struct {
	Path      string
	Timestamp time.Time
	Compact   uint64
	TraceID   string
}

// Detector implements the Context-mode change decision, throttle, and
// snapshot write. It is not safe for concurrent use by multiple
// goroutines — exactly one Change Detector worker owns it.
type Detector struct {
	contextDir      string
	changeThreshold int

	hasLast        bool
	lastHash       Hash
	lastAcceptedAt time.Time
}

// NewDetector creates a Detector writing snapshots under contextDir.
func NewDetector(contextDir string, changeThreshold int) *Detector {
	return &Detector{
		contextDir:      contextDir,
		changeThreshold: changeThreshold,
	}
}

// Throttle window: the detector never accepts two frames less than this
// far apart, which also caps acceptance at 1 FPS even if the capture
// worker delivers faster.
const throttleWindow = 1 * time.Second

// Consider applies the throttle, hash, and change-decision in order and,
// on acceptance, writes the JPEG and returns the resulting Snapshot. The
// second return value is false when the frame was throttled or judged
// unchanged.
func (d *Detector) Consider(f frame.Raw, now time.Time) (Snapshot, bool, error) {
	if d.hasLast && now.Sub(d.lastAcceptedAt) < throttleWindow {
		return Snapshot{}, false, nil
	}

	h := Compute(f.Data, f.Width, f.Height)

	accepted := !d.hasLast || Distance(h, d.lastHash) > d.changeThreshold
	if !accepted {
		return Snapshot{}, false, nil
	}

	path, err := d.writeJPEG(f, now)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("phash: write snapshot: %w", err)
	}

	d.hasLast = true
	d.lastHash = h
	d.lastAcceptedAt = now

	snap := Snapshot{
		Path:      path,
		Timestamp: now.UTC(),
		Compact:   h.Compact(),
		TraceID:   uuid.New().String(),
	}

	slog.Info("phash: snapshot accepted",
		"path", path,
		"trace_id", snap.TraceID,
	)

	return snap, true, nil
}

func (d *Detector) writeJPEG(f frame.Raw, now time.Time) (string, error) {
	if err := os.MkdirAll(d.contextDir, 0o755); err != nil {
		return "", err
	}

	name := pathname.Timestamp(now) + ".jpg"
	path := filepath.Join(d.contextDir, name)

	img := bgraToImage(f.Data, f.Width, f.Height)

	out, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if err := jpeg.Encode(out, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return "", err
	}

	return path, nil
}

func bgraToImage(data []byte, width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			off := (y*width + x) * 4
			b, g, r, a := data[off], data[off+1], data[off+2], data[off+3]
			img.Set(x, y, color.RGBA{R: r, G: g, B: b, A: a})
		}
	}
	return img
}

package phash

import (
	"os"
	"testing"
	"time"

	"github.com/Krystofire88/DualModeReplayBuffer/internal/frame"
)

func makeFrame(w, h int, b, g, r byte) frame.Raw {
	return frame.Raw{Data: solidFrame(w, h, b, g, r), Width: w, Height: h}
}

func TestDetector_DedupIdenticalFrames(t *testing.T) {
	dir := t.TempDir()
	d := NewDetector(dir, 5)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := makeFrame(32, 32, 10, 10, 10)

	accepted := 0
	for i := 0; i < 10; i++ {
		_, ok, err := d.Consider(f, base.Add(time.Duration(i)*33*time.Millisecond))
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			accepted++
		}
	}
	if accepted != 1 {
		t.Fatalf("accepted = %d, want 1", accepted)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("jpeg files = %d, want 1", len(entries))
	}
}

func TestDetector_ThrottleSuppressesDistinctFrames(t *testing.T) {
	dir := t.TempDir()
	d := NewDetector(dir, 5)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	accepted := 0
	for i := 0; i < 30; i++ {
		f := makeFrame(32, 32, byte(i*8), byte(255-i*8), byte(i*4))
		_, ok, err := d.Consider(f, base.Add(time.Duration(i)*16*time.Millisecond))
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			accepted++
		}
	}
	if accepted != 1 {
		t.Fatalf("accepted = %d, want 1 (throttle should suppress the rest)", accepted)
	}
}

func TestDetector_AcceptsDistinctFramesPastThrottle(t *testing.T) {
	dir := t.TempDir()
	d := NewDetector(dir, 5)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	colors := [][3]byte{{10, 10, 10}, {10, 10, 10}, {250, 10, 10}, {10, 250, 10}, {10, 10, 250}, {250, 250, 10}}

	accepted := 0
	now := base
	for i, c := range colors {
		f := makeFrame(32, 32, c[0], c[1], c[2])
		_, ok, err := d.Consider(f, now)
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			accepted++
		}
		_ = i
		now = now.Add(1200 * time.Millisecond)
	}
	if accepted < 2 {
		t.Fatalf("accepted = %d, want at least 2 distinct frames past the throttle window", accepted)
	}
}

func TestDetector_CatalogTimestampsMonotonePerRun(t *testing.T) {
	dir := t.TempDir()
	d := NewDetector(dir, 0)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var last time.Time
	for i := 0; i < 5; i++ {
		f := makeFrame(32, 32, byte(i*40), byte(i*20), byte(i*10))
		snap, ok, err := d.Consider(f, base.Add(time.Duration(i)*1500*time.Millisecond))
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			continue
		}
		if snap.Timestamp.Before(last) {
			t.Fatalf("catalog timestamp went backwards: %v before %v", snap.Timestamp, last)
		}
		last = snap.Timestamp
	}
}

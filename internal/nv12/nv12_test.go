package nv12

import (
	"bytes"
	"math/rand"
	"testing"
)

func randomBGRA(w, h int, seed int64) []byte {
	r := rand.New(rand.NewSource(seed))
	data := make([]byte, w*h*4)
	r.Read(data)
	return data
}

func TestConvert_OutputSizeAndDeterminism(t *testing.T) {
	w, h := 64, 48
	src := randomBGRA(w, h, 1)

	want := w*h*3/2
	if got := Size(w, h); got != want {
		t.Fatalf("Size() = %d, want %d", got, want)
	}

	dst1 := make([]byte, Size(w, h))
	dst2 := make([]byte, Size(w, h))
	Convert(dst1, src, w, h)
	Convert(dst2, src, w, h)

	if len(dst1) != want {
		t.Fatalf("len(dst) = %d, want %d", len(dst1), want)
	}
	if !bytes.Equal(dst1, dst2) {
		t.Fatalf("Convert() not byte-identical across repeated calls on the same input")
	}
}

func TestConvert_KnownColorMapsToExpectedLuma(t *testing.T) {
	w, h := 2, 2
	src := make([]byte, w*h*4)
	// Pure black BGRA.
	for i := 0; i < w*h; i++ {
		src[i*4+3] = 255
	}
	dst := make([]byte, Size(w, h))
	Convert(dst, src, w, h)

	// Y for black should clamp to 16 (limited range floor).
	for i := 0; i < w*h; i++ {
		if dst[i] != 16 {
			t.Fatalf("Y[%d] = %d, want 16 for black input", i, dst[i])
		}
	}
}

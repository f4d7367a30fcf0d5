// Package phash computes perceptual hashes of BGRA frames and the Hamming
// distance between them.
package phash

import "math/bits"

// Hash is a 256-bit perceptual hash stored as four 64-bit words. Bit i of
// the logical hash lives in word i/64 at offset i%64.
type Hash [4]uint64

// Compact XORs the four words into a single 64-bit value, used for catalog
// storage and coarse comparison.
func (h Hash) Compact() uint64 {
	return h[0] ^ h[1] ^ h[2] ^ h[3]
}

// Distance returns the Hamming distance (popcount of XOR) between two hashes.
func Distance(a, b Hash) int {
	d := 0
	for i := 0; i < 4; i++ {
		d += bits.OnesCount64(a[i] ^ b[i])
	}
	return d
}

const gridSize = 16

// Compute downscales a BGRA frame to a 16x16 grayscale grid by nearest-
// neighbor sampling, thresholds each sample against the grid mean, and
// packs the 256 resulting bits into a Hash.
//
// width/height are the frame's real dimensions; data must have length at
// least width*height*4.
func Compute(data []byte, width, height int) Hash {
	var gray [gridSize * gridSize]float64

	for gy := 0; gy < gridSize; gy++ {
		// Nearest-neighbor sample position within the source frame.
		sy := gy * height / gridSize
		for gx := 0; gx < gridSize; gx++ {
			sx := gx * width / gridSize
			off := (sy*width + sx) * 4
			b := float64(data[off+0])
			g := float64(data[off+1])
			r := float64(data[off+2])
			// BT.709 luma.
			gray[gy*gridSize+gx] = 0.2126*r + 0.7152*g + 0.0722*b
		}
	}

	var mean float64
	for _, v := range gray {
		mean += v
	}
	mean /= float64(len(gray))

	var h Hash
	for i, v := range gray {
		if v > mean {
			word := i / 64
			offset := uint(i % 64)
			h[word] |= 1 << offset
		}
	}
	return h
}

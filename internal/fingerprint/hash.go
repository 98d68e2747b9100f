package fingerprint

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"math/bits"
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	werrors "github.com/wardenbot/warden/internal/errors"
)

// Digest is the set of 64-bit perceptual hashes computed for one image.
// The three algorithms fail differently (dHash survives crops, pHash
// survives re-encodes, aHash is a cheap tiebreaker), so matching weighs
// all of them.
type Digest struct {
	DHash uint64
	PHash uint64
	AHash uint64
}

func (d Digest) PHashHex() string { return fmt.Sprintf("%016x", d.PHash) }
func (d Digest) DHashHex() string { return fmt.Sprintf("%016x", d.DHash) }
func (d Digest) AHashHex() string { return fmt.Sprintf("%016x", d.AHash) }

// Decode parses raw image bytes with the registered decoders. Failures wrap
// ErrDecode so callers can skip the fingerprint check instead of failing
// the message.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(werrors.ErrDecode, err.Error())
	}
	return img, nil
}

// Hash computes all three perceptual hashes. It is deterministic: the same
// pixels always produce the same bits.
func Hash(img image.Image) Digest {
	return Digest{
		DHash: differenceHash(img),
		PHash: perceptualHash(img),
		AHash: averageHash(img),
	}
}

// HammingDistance counts differing bits between two 64-bit hashes.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Distance is the weighted Hamming distance across the three hash types.
// The perceptual hash is the most edit-resistant, so it counts double.
func (d Digest) Distance(other Digest) int {
	dp := HammingDistance(d.PHash, other.PHash)
	dd := HammingDistance(d.DHash, other.DHash)
	da := HammingDistance(d.AHash, other.AHash)
	return (2*dp + dd + da) / 4
}

// grayscale downscales into a w x h luminance grid.
func grayscale(img image.Image, w, h int) []float64 {
	gray := image.NewGray(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(gray, gray.Bounds(), img, img.Bounds(), draw.Src, nil)

	pixels := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pixels[y*w+x] = float64(gray.GrayAt(x, y).Y)
		}
	}
	return pixels
}

// averageHash thresholds an 8x8 grid against its mean.
func averageHash(img image.Image) uint64 {
	pixels := grayscale(img, 8, 8)

	sum := 0.0
	for _, p := range pixels {
		sum += p
	}
	mean := sum / float64(len(pixels))

	var hash uint64
	for i, p := range pixels {
		if p > mean {
			hash |= 1 << uint(63-i)
		}
	}
	return hash
}

// differenceHash compares horizontal neighbor brightness on a 9x8 grid.
func differenceHash(img image.Image) uint64 {
	pixels := grayscale(img, 9, 8)

	var hash uint64
	bit := 0
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			if pixels[y*9+x] < pixels[y*9+x+1] {
				hash |= 1 << uint(63-bit)
			}
			bit++
		}
	}
	return hash
}

// perceptualHash runs a 2D DCT over a 32x32 grid and thresholds the 64
// lowest-frequency coefficients against their median.
func perceptualHash(img image.Image) uint64 {
	const size = 32
	pixels := grayscale(img, size, size)

	rows := make([][]float64, size)
	for y := 0; y < size; y++ {
		rows[y] = dct1d(pixels[y*size : (y+1)*size])
	}

	column := make([]float64, size)
	coeffs := make([][]float64, size)
	for x := 0; x < size; x++ {
		for y := 0; y < size; y++ {
			column[y] = rows[y][x]
		}
		transformed := dct1d(column)
		for y := 0; y < size; y++ {
			if coeffs[y] == nil {
				coeffs[y] = make([]float64, size)
			}
			coeffs[y][x] = transformed[y]
		}
	}

	low := make([]float64, 0, 64)
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			low = append(low, coeffs[y][x])
		}
	}

	// Median over the low frequencies, DC excluded so a flat image does
	// not bias every bit the same way.
	sorted := append([]float64(nil), low[1:]...)
	sort.Float64s(sorted)
	median := sorted[len(sorted)/2]

	var hash uint64
	for i, c := range low {
		if c > median {
			hash |= 1 << uint(63-i)
		}
	}
	return hash
}

// dct1d is a direct DCT-II; input sizes are tiny so no FFT is needed.
func dct1d(input []float64) []float64 {
	n := len(input)
	output := make([]float64, n)
	for k := 0; k < n; k++ {
		sum := 0.0
		for i := 0; i < n; i++ {
			sum += input[i] * math.Cos(math.Pi*float64(k)*(2*float64(i)+1)/(2*float64(n)))
		}
		output[k] = sum
	}
	return output
}

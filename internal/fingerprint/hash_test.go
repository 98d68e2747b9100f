package fingerprint

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"

	werrors "github.com/wardenbot/warden/internal/errors"
)

// gradientImage produces a deterministic smooth test image whose shape is
// independent of its pixel dimensions.
func gradientImage(w, h int, seed uint8) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8((x*255/(w-1)+y*255/(h-1))/2 + int(seed))
			img.Set(x, y, color.RGBA{R: v, G: v / 2, B: 255 - v, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestHashIsDeterministic(t *testing.T) {
	t.Parallel()
	img := gradientImage(64, 64, 0)

	first := Hash(img)
	second := Hash(img)
	if first != second {
		t.Errorf("same image hashed differently: %+v vs %+v", first, second)
	}
	if first.Distance(second) != 0 {
		t.Errorf("self-distance = %d, want 0", first.Distance(second))
	}
}

func TestHashSurvivesResize(t *testing.T) {
	t.Parallel()
	source := gradientImage(256, 256, 0)

	smaller := image.NewRGBA(image.Rect(0, 0, 128, 128))
	draw.ApproxBiLinear.Scale(smaller, smaller.Bounds(), source, source.Bounds(), draw.Src, nil)

	if d := Hash(source).Distance(Hash(smaller)); d > 10 {
		t.Errorf("resize distance = %d, want within match threshold", d)
	}
}

func TestDifferentImagesAreDistant(t *testing.T) {
	t.Parallel()
	a := Hash(gradientImage(64, 64, 0))

	inverted := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			v := uint8(255 - x*255/63)
			inverted.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	b := Hash(inverted)

	if d := a.Distance(b); d <= 10 {
		t.Errorf("unrelated images distance = %d, want above match threshold", d)
	}
}

func TestHammingDistance(t *testing.T) {
	t.Parallel()
	for _, tt := range []struct {
		a, b uint64
		want int
	}{
		{0, 0, 0},
		{0, 1, 1},
		{0xFFFFFFFFFFFFFFFF, 0, 64},
		{0b1010, 0b0101, 4},
	} {
		if got := HammingDistance(tt.a, tt.b); got != tt.want {
			t.Errorf("HammingDistance(%x, %x) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestWeightedDistance(t *testing.T) {
	t.Parallel()
	base := Digest{DHash: 0, PHash: 0, AHash: 0}

	// Four flipped pHash bits count double.
	if got := base.Distance(Digest{PHash: 0b1111}); got != 2 {
		t.Errorf("pHash-only distance = %d, want 2", got)
	}
	// dHash and aHash bits count single.
	if got := base.Distance(Digest{DHash: 0b1111, AHash: 0b1111}); got != 2 {
		t.Errorf("dHash+aHash distance = %d, want 2", got)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	t.Parallel()
	_, err := Decode([]byte("definitely not an image"))
	if !errors.Is(err, werrors.ErrDecode) {
		t.Errorf("err = %v, want ErrDecode", err)
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	t.Parallel()
	data := encodePNG(t, gradientImage(32, 32, 7))

	img, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 32 || img.Bounds().Dy() != 32 {
		t.Errorf("decoded bounds = %v", img.Bounds())
	}

	if Hash(img) != Hash(img) {
		t.Error("decoded image hashes non-deterministically")
	}
}

func TestHexRendering(t *testing.T) {
	t.Parallel()
	d := Digest{DHash: 0x1, PHash: 0xABCDEF, AHash: 0}

	if got := d.DHashHex(); got != "0000000000000001" {
		t.Errorf("DHashHex = %q", got)
	}
	if got := d.PHashHex(); got != "0000000000abcdef" {
		t.Errorf("PHashHex = %q", got)
	}
	if got := d.AHashHex(); len(got) != 16 {
		t.Errorf("AHashHex length = %d, want 16", len(got))
	}
}

package loaders

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/bmp"
)

func TestValidateSPIRV(t *testing.T) {
	good := []byte{0x03, 0x02, 0x23, 0x07, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	tests := []struct {
		name string
		code []byte
		ok   bool
	}{
		{"valid", good, true},
		{"short", good[:16], false},
		{"unaligned", append(append([]byte{}, good...), 0), false},
		{"big endian magic", append([]byte{0x07, 0x23, 0x02, 0x03}, good[4:]...), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSPIRV(tt.code)
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidSPIRV) {
				t.Fatalf("expected ErrInvalidSPIRV, got %v", err)
			}
		})
	}
}

func TestBytecodeWords(t *testing.T) {
	words := BytecodeWords([]byte{0x03, 0x02, 0x23, 0x07, 0xff, 0x00, 0x00, 0x01})
	if len(words) != 2 || words[0] != SPIRVMagic || words[1] != 0x010000ff {
		t.Fatalf("BytecodeWords = %#x", words)
	}
}

func TestTextureLoaderBMP(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 1))
	img.Set(2, 0, color.RGBA{G: 200, A: 255})
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "strip.bmp")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := (&TextureLoader{}).Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if res.Type != ResourceTypeTexture || res.DataSize != 12 {
		t.Fatalf("unexpected resource %+v", res)
	}
	tex := res.Data.(*TextureData)
	if got := tex.Pixels[8:12]; got[1] != 200 || got[3] != 255 {
		t.Errorf("third texel = %v", got)
	}
}

func TestToRGBASubImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 9, A: 255})
	sub := img.SubImage(image.Rect(1, 1, 3, 3))

	tex := ToRGBA(sub, false)
	if tex.Width != 2 || tex.Height != 2 || tex.Pixels[0] != 9 {
		t.Fatalf("ToRGBA(sub) = %dx%d first=%v", tex.Width, tex.Height, tex.Pixels[:4])
	}
}

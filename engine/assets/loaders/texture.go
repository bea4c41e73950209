package loaders

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// TextureData holds tightly packed RGBA8 pixels, top row first unless flipped.
type TextureData struct {
	Width  uint32
	Height uint32
	Pixels []byte
}

type TextureLoader struct {
	// FlipY stores the bottom row first, as OpenGL expects.
	FlipY bool
}

func (tl *TextureLoader) Load(path string) (*Resource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, format, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	data := ToRGBA(img, tl.FlipY)
	return &Resource{
		Name:     fmt.Sprintf("%s (%s)", filepath.Base(path), format),
		FullPath: path,
		Type:     ResourceTypeTexture,
		DataSize: uint64(len(data.Pixels)),
		Data:     data,
	}, nil
}

// ToRGBA converts any decoded image to packed RGBA8.
func ToRGBA(img image.Image, flipY bool) *TextureData {
	b := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != 4*b.Dx() || b.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}
	pixels := make([]byte, len(rgba.Pix))
	row := 4 * b.Dx()
	for y := 0; y < b.Dy(); y++ {
		src := y
		if flipY {
			src = b.Dy() - 1 - y
		}
		copy(pixels[y*row:(y+1)*row], rgba.Pix[src*rgba.Stride:src*rgba.Stride+row])
	}
	return &TextureData{Width: uint32(b.Dx()), Height: uint32(b.Dy()), Pixels: pixels}
}

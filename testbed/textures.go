package testbed

import (
	"github.com/spaghettifunk/lumen/engine/assets"
)

type rgba [4]byte

// checker builds an RGBA8 checkerboard with a full box-filtered mip chain.
func checker(name string, size, cells uint32, a, b rgba) assets.Image {
	img := assets.Image{
		Name:   name,
		Kind:   assets.ImageKindColor,
		Format: assets.TextureFormatRGBA8,
		Width:  size,
		Height: size,
	}
	cell := max(size/cells, 1)
	level := make([]byte, assets.TextureFormatRGBA8.MipSize(size, size))
	for y := uint32(0); y < size; y++ {
		for x := uint32(0); x < size; x++ {
			c := a
			if (x/cell+y/cell)%2 == 1 {
				c = b
			}
			copy(level[(y*size+x)*4:], c[:])
		}
	}
	img.Mips = append(img.Mips, level)
	for w := size; w > 1; w /= 2 {
		level = downsample(level, w)
		img.Mips = append(img.Mips, level)
	}
	return img
}

// flat builds a 1x1 RGBA8 image.
func flat(name string, kind assets.ImageKind, c rgba) assets.Image {
	return assets.Image{
		Name:   name,
		Kind:   kind,
		Format: assets.TextureFormatRGBA8,
		Width:  1,
		Height: 1,
		Mips:   [][]byte{c[:]},
	}
}

// downsample halves a square RGBA8 level of width w.
func downsample(src []byte, w uint32) []byte {
	h := max(w/2, 1)
	dst := make([]byte, h*h*4)
	for y := uint32(0); y < h; y++ {
		for x := uint32(0); x < h; x++ {
			for ch := uint32(0); ch < 4; ch++ {
				var sum uint32
				for _, o := range [4][2]uint32{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
					sx, sy := min(2*x+o[0], w-1), min(2*y+o[1], w-1)
					sum += uint32(src[(sy*w+sx)*4+ch])
				}
				dst[(y*h+x)*4+ch] = byte(sum / 4)
			}
		}
	}
	return dst
}

package decode

import (
	"image"
	"image/draw"

	"github.com/disintegration/imaging"
)

// TargetDimensions implements spec §4.5's downsample rule: s = min(1,
// T/max(w,h)); never upscale.
func TargetDimensions(w, h, target int) (int, int) {
	if target <= 0 || (w <= target && h <= target) {
		return w, h
	}
	longest := w
	if h > longest {
		longest = h
	}
	scale := float64(target) / float64(longest)
	newW := int(float64(w)*scale + 0.5)
	newH := int(float64(h)*scale + 0.5)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}
	return newW, newH
}

// Downsample scales src to at most target pixels on its longest dimension,
// preserving aspect ratio and never upscaling. When the source already
// fits, it is re-encoded at the same dimensions (per spec §4.5, still
// "re-encoded to the target pixel format").
func Downsample(src *DecodedImage, target int) *DecodedImage {
	newW, newH := TargetDimensions(src.Width, src.Height, target)
	srcImg := toImageRGBA(src)
	if newW == src.Width && newH == src.Height {
		return fromImageRGBA(srcImg)
	}
	resized := imaging.Resize(srcImg, newW, newH, imaging.Lanczos)
	rgba := image.NewRGBA(resized.Bounds())
	draw.Draw(rgba, rgba.Bounds(), resized, resized.Bounds().Min, draw.Src)
	return fromImageRGBA(rgba)
}

func toImageRGBA(src *DecodedImage) *image.RGBA {
	if src.Format == FormatRGBA32 && src.Stride == src.Width*4 {
		return &image.RGBA{
			Pix:    src.Pixels,
			Stride: src.Stride,
			Rect:   image.Rect(0, 0, src.Width, src.Height),
		}
	}
	out := image.NewRGBA(image.Rect(0, 0, src.Width, src.Height))
	bpp := src.Format.BytesPerPixel()
	for y := 0; y < src.Height; y++ {
		srcRow := src.Pixels[y*src.Stride:]
		for x := 0; x < src.Width; x++ {
			r, g, b, a := pixelAt(src.Format, srcRow, x, bpp)
			off := out.PixOffset(x, y)
			out.Pix[off+0] = r
			out.Pix[off+1] = g
			out.Pix[off+2] = b
			out.Pix[off+3] = a
		}
	}
	return out
}

func pixelAt(format PixelFormat, row []byte, x, bpp int) (r, g, b, a byte) {
	off := x * bpp
	switch format {
	case FormatBGRA32:
		return row[off+2], row[off+1], row[off+0], row[off+3]
	case FormatRGBA32:
		return row[off+0], row[off+1], row[off+2], row[off+3]
	case FormatBGR24:
		return row[off+2], row[off+1], row[off+0], 255
	case FormatRGB24:
		return row[off+0], row[off+1], row[off+2], 255
	case FormatGray8:
		return row[off], row[off], row[off], 255
	case FormatGray16:
		return row[off], row[off], row[off], 255
	default:
		return 0, 0, 0, 255
	}
}

func fromImageRGBA(img *image.RGBA) *DecodedImage {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	out := newDecodedImage(w, h, FormatRGBA32)
	if img.Stride == out.Stride && img.Rect.Min == (image.Point{}) {
		copy(out.Pixels, img.Pix)
		return out
	}
	for y := 0; y < h; y++ {
		srcOff := img.PixOffset(0, y)
		dstOff := y * out.Stride
		copy(out.Pixels[dstOff:dstOff+w*4], img.Pix[srcOff:srcOff+w*4])
	}
	return out
}

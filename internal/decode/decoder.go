package decode

import (
	"bytes"
	"image"
	"io"
	"os"
	"strings"

	"nive/internal/logging"
	"nive/internal/verrors"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "github.com/gen2brain/avif"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var log = logging.Component("decode")

// Decoder is the abstract capability spec §4.5's "Plugin / second decoder"
// describes: something that can claim an extension or a byte signature and
// turn the bytes into a DecodedImage.
type Decoder interface {
	Name() string
	SupportsExtension(ext string) bool
	CanDecodeBytes(header []byte) bool
	DecodeBytes(data []byte) (*DecodedImage, int, int, error)
	DecodeFile(path string) (*DecodedImage, int, int, error)
}

// Registry holds decoders in registration order; the built-in decoder is
// always appended last as the fallback, per spec §4.5.
type Registry struct {
	chain []Decoder
}

// NewRegistry returns a Registry whose fallback is the built-in stdlib +
// x/image + avif decoder.
func NewRegistry(extra ...Decoder) *Registry {
	r := &Registry{}
	r.chain = append(r.chain, extra...)
	r.chain = append(r.chain, &builtinDecoder{})
	return r
}

// DecodeBytes runs the registered decoders in order, returning the first
// one that claims support for the data.
func (r *Registry) DecodeBytes(data []byte, hintExt string) (*DecodedImage, int, int, error) {
	if len(data) == 0 {
		return nil, 0, 0, verrors.New(verrors.CorruptedData, "zero-byte source")
	}
	header := data
	if len(header) > 64 {
		header = header[:64]
	}
	for _, d := range r.chain {
		if d.SupportsExtension(hintExt) || d.CanDecodeBytes(header) {
			img, w, h, err := d.DecodeBytes(data)
			if err == nil {
				return img, w, h, nil
			}
			log.Debugf("decoder %s failed on %d bytes: %v", d.Name(), len(data), err)
			return nil, 0, 0, verrors.Wrap(verrors.CorruptedData, "decode failed", err)
		}
	}
	return nil, 0, 0, verrors.New(verrors.UnsupportedFormat, "no decoder claims this data")
}

// DecodeFile decodes from a filesystem path.
func (r *Registry) DecodeFile(path string) (*DecodedImage, int, int, error) {
	ext := strings.TrimPrefix(strings.ToLower(extOf(path)), ".")
	for _, d := range r.chain {
		if !d.SupportsExtension(ext) {
			f, err := os.Open(path)
			if err != nil {
				continue
			}
			header := make([]byte, 64)
			n, _ := io.ReadFull(f, header)
			f.Close()
			if !d.CanDecodeBytes(header[:n]) {
				continue
			}
		}
		img, w, h, err := d.DecodeFile(path)
		if err == nil {
			return img, w, h, nil
		}
		if os.IsNotExist(err) {
			return nil, 0, 0, verrors.Wrap(verrors.NotFound, path, err)
		}
		log.Debugf("decoder %s failed on %s: %v", d.Name(), path, err)
		return nil, 0, 0, verrors.Wrap(verrors.CorruptedData, "decode failed: "+path, err)
	}
	return nil, 0, 0, verrors.New(verrors.UnsupportedFormat, "no decoder claims "+path)
}

func extOf(path string) string {
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return ""
	}
	return path[idx+1:]
}

// builtinDecoder wraps the stdlib image package plus the registered
// side-effect format handlers (gif/jpeg/png/bmp/tiff/webp/avif).
type builtinDecoder struct{}

func (b *builtinDecoder) Name() string { return "builtin" }

var builtinExts = map[string]bool{
	"png": true, "jpg": true, "jpeg": true, "gif": true,
	"bmp": true, "tif": true, "tiff": true, "webp": true, "avif": true,
}

func (b *builtinDecoder) SupportsExtension(ext string) bool {
	return builtinExts[strings.ToLower(ext)]
}

func (b *builtinDecoder) CanDecodeBytes(header []byte) bool {
	_, _, err := image.DecodeConfig(bytes.NewReader(header))
	return err == nil
}

func (b *builtinDecoder) DecodeBytes(data []byte) (*DecodedImage, int, int, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, err
	}
	return fromImage(img)
}

func (b *builtinDecoder) DecodeFile(path string) (*DecodedImage, int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, 0, 0, err
	}
	return fromImage(img)
}

// fromImage converts a stdlib image.Image into the core's DecodedImage
// representation (RGBA32), recording the original dimensions.
func fromImage(img image.Image) (*DecodedImage, int, int, error) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return nil, 0, 0, verrors.New(verrors.CorruptedData, "zero-dimension image")
	}
	out := newDecodedImage(w, h, FormatRGBA32)
	rgba, ok := img.(*image.RGBA)
	if ok && rgba.Bounds().Min == (image.Point{}) && rgba.Stride == out.Stride {
		copy(out.Pixels, rgba.Pix)
		return out, w, h, nil
	}
	for y := 0; y < h; y++ {
		rowOff := y * out.Stride
		for x := 0; x < w; x++ {
			r, g, bch, a := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			off := rowOff + x*4
			out.Pixels[off+0] = byte(r >> 8)
			out.Pixels[off+1] = byte(g >> 8)
			out.Pixels[off+2] = byte(bch >> 8)
			out.Pixels[off+3] = byte(a >> 8)
		}
	}
	return out, w, h, nil
}

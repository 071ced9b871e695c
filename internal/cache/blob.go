package cache

import (
	"nive/internal/decode"
)

// encodeBlob compresses a thumbnail's pixel bytes with zstd at the
// store's configured level, or returns them verbatim when compression is
// disabled (compression_level == 0, spec §4.2).
func (s *Store) encodeBlob(img *decode.DecodedImage) (blob []byte, compressed bool) {
	if s.encoder == nil {
		return img.Pixels, false
	}
	return s.encoder.EncodeAll(img.Pixels, nil), true
}

// decodeBlob reverses encodeBlob and reconstructs the DecodedImage from
// the stored dimensions/format columns.
func (s *Store) decodeBlob(row *tier2Row) (*decode.DecodedImage, error) {
	pixels := row.blob
	if row.compressed {
		decoded, err := s.decoder.DecodeAll(row.blob, nil)
		if err != nil {
			return nil, err
		}
		pixels = decoded
	}
	format := decode.PixelFormat(row.pixelFormat)
	stride := strideFor(row.width, format)
	return &decode.DecodedImage{
		Width:  row.width,
		Height: row.height,
		Format: format,
		Stride: stride,
		Pixels: pixels,
	}, nil
}

func strideFor(width int, format decode.PixelFormat) int {
	n := width * format.BytesPerPixel()
	return (n + 3) &^ 3
}

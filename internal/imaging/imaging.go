// Package imaging reads picture dimensions and rewrites the resolution
// metadata of PNG and JPEG payloads without re-encoding pixels.
package imaging

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/fumiama/imgsz"
)

// ErrUnsupported is returned by SetDPI for payloads that are neither PNG nor JPEG.
var ErrUnsupported = errors.New("imaging: unsupported format")

// EMUPerInch converts inches to the EMU unit used for drawing extents.
const EMUPerInch = 914400

const metresPerInch = 0.0254

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// Size returns the pixel dimensions and format name ("png", "jpeg", "gif",
// "webp") of an encoded image.
func Size(data []byte) (width, height int, format string, err error) {
	sz, format, err := imgsz.DecodeSize(bytes.NewReader(data))
	if err != nil {
		return 0, 0, "", fmt.Errorf("decode image size: %w", err)
	}
	return sz.Width, sz.Height, format, nil
}

// Extent returns the drawing extent, in EMU, of an image laid out at width
// EMU wide with its aspect ratio kept.
func Extent(data []byte, width int64) (int64, int64, error) {
	w, h, _, err := Size(data)
	if err != nil {
		return 0, 0, err
	}
	if w <= 0 {
		return 0, 0, fmt.Errorf("decode image size: zero width")
	}
	return width, width * int64(h) / int64(w), nil
}

// SetDPI returns a copy of data whose resolution metadata says dpi in both
// directions. PNG payloads get a pHYs chunk, JPEG payloads a JFIF density.
func SetDPI(data []byte, dpi int) ([]byte, error) {
	if dpi <= 0 || dpi > 0xffff {
		return nil, fmt.Errorf("set dpi: %d out of range", dpi)
	}
	switch {
	case bytes.HasPrefix(data, pngSignature):
		return setPNGDPI(data, dpi)
	case len(data) >= 2 && data[0] == 0xff && data[1] == 0xd8:
		return setJPEGDPI(data, dpi)
	}
	return nil, ErrUnsupported
}

func setPNGDPI(data []byte, dpi int) ([]byte, error) {
	ppm := uint32(float64(dpi)/metresPerInch + 0.5)
	phys := make([]byte, 9)
	binary.BigEndian.PutUint32(phys[0:4], ppm)
	binary.BigEndian.PutUint32(phys[4:8], ppm)
	phys[8] = 1 // unit: metre
	chunk := pngChunk("pHYs", phys)

	out := make([]byte, 0, len(data)+len(chunk))
	out = append(out, pngSignature...)
	pos := len(pngSignature)
	inserted := false
	for pos < len(data) {
		if pos+8 > len(data) {
			return nil, fmt.Errorf("set dpi: truncated png chunk at %d", pos)
		}
		n := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		typ := string(data[pos+4 : pos+8])
		end := pos + 12 + n
		if n < 0 || end > len(data) {
			return nil, fmt.Errorf("set dpi: truncated %s chunk", typ)
		}
		switch {
		case typ == "pHYs":
			if !inserted {
				out = append(out, chunk...)
				inserted = true
			}
		case typ == "IDAT" && !inserted:
			out = append(out, chunk...)
			inserted = true
			out = append(out, data[pos:end]...)
		default:
			out = append(out, data[pos:end]...)
		}
		pos = end
	}
	if !inserted {
		return nil, fmt.Errorf("set dpi: png has no image data")
	}
	return out, nil
}

func pngChunk(typ string, body []byte) []byte {
	out := make([]byte, 8, 12+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(len(body)))
	copy(out[4:8], typ)
	out = append(out, body...)
	crc := crc32.NewIEEE()
	crc.Write(out[4:])
	return binary.BigEndian.AppendUint32(out, crc.Sum32())
}

// JFIF APP0 layout after the marker: length(2) "JFIF\0"(5) version(2)
// units(1) xdensity(2) ydensity(2) thumbnail(2).
func setJPEGDPI(data []byte, dpi int) ([]byte, error) {
	out := append([]byte(nil), data...)
	if len(out) >= 20 && out[2] == 0xff && out[3] == 0xe0 && string(out[6:11]) == "JFIF\x00" {
		out[13] = 1 // dots per inch
		binary.BigEndian.PutUint16(out[14:16], uint16(dpi))
		binary.BigEndian.PutUint16(out[16:18], uint16(dpi))
		return out, nil
	}

	app0 := []byte{0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x01, 0x01, 0x01, 0, 0, 0, 0, 0x00, 0x00}
	binary.BigEndian.PutUint16(app0[12:14], uint16(dpi))
	binary.BigEndian.PutUint16(app0[14:16], uint16(dpi))

	res := make([]byte, 0, len(data)+len(app0))
	res = append(res, data[:2]...)
	res = append(res, app0...)
	return append(res, data[2:]...), nil
}

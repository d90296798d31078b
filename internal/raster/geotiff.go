// Package raster reads georeferencing metadata out of TIFF/GeoTIFF headers and turns
// it into a WGS84 footprint.
package raster

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/mohammed-shakir/raster-intake/internal/errkind"
)

const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagSamplesPerPixel = 277
	tagDateTime        = 306
	tagSampleFormat    = 339
	tagPixelScale      = 33550
	tagTiepoint        = 33922
	tagTransformation  = 34264
	tagGeoKeyDirectory = 34735
	tagGeoDoubleParams = 34736
	tagGeoASCIIParams  = 34737
	tagGDALNoData      = 42113
)

// GeoKey ids
const (
	keyModelType      = 1024
	keyRasterType     = 1025
	keyGeographicType = 2048
	keyProjectedCS    = 3072

	rasterPixelIsArea  = 1
	rasterPixelIsPoint = 2

	modelProjected  = 1
	modelGeographic = 2

	userDefined = 32767
)

// header entries larger than this are treated as corrupt
const maxEntryBytes = 16 << 20

// Header is the subset of the first IFD needed to georeference an image.
type Header struct {
	BigTIFF         bool
	Width           int
	Height          int
	SamplesPerPixel int
	BitsPerSample   []int
	SampleFormat    int
	Compression     int
	DateTime        string
	NoData          string

	PixelScale     []float64
	Tiepoints      []float64
	Transformation []float64

	GeoKeys       map[uint16]uint16
	GeoDoubleKeys map[uint16]float64
	GeoASCIIKeys  map[uint16]string
}

// HasGeoKeys reports whether a GeoKey directory was present.
func (h Header) HasGeoKeys() bool { return h.GeoKeys != nil }

type field struct {
	tag   uint16
	typ   uint16
	count uint64
	raw   []byte
}

type tiffReader struct {
	r     io.ReaderAt
	order binary.ByteOrder
	big   bool
}

// ReadHeader parses the TIFF or BigTIFF header and first IFD from r.
func ReadHeader(r io.ReaderAt) (Header, error) {
	var pre [16]byte
	if _, err := r.ReadAt(pre[:8], 0); err != nil {
		return Header{}, errkind.UnreadableImage.New("read header: %v", err)
	}

	tr := &tiffReader{r: r}
	switch string(pre[:2]) {
	case "II":
		tr.order = binary.LittleEndian
	case "MM":
		tr.order = binary.BigEndian
	default:
		return Header{}, errkind.UnreadableImage.New("not a TIFF: bad byte order mark %q", pre[:2])
	}

	var ifdOff uint64
	switch magic := tr.order.Uint16(pre[2:4]); magic {
	case 42:
		ifdOff = uint64(tr.order.Uint32(pre[4:8]))
	case 43:
		if _, err := r.ReadAt(pre[8:16], 8); err != nil {
			return Header{}, errkind.UnreadableImage.New("read bigtiff header: %v", err)
		}
		if tr.order.Uint16(pre[4:6]) != 8 {
			return Header{}, errkind.UnreadableImage.New("bigtiff offset size %d", tr.order.Uint16(pre[4:6]))
		}
		tr.big = true
		ifdOff = tr.order.Uint64(pre[8:16])
	default:
		return Header{}, errkind.UnreadableImage.New("not a TIFF: magic %d", magic)
	}
	if ifdOff == 0 {
		return Header{}, errkind.UnreadableImage.New("no image file directory")
	}

	fields, err := tr.readIFD(ifdOff)
	if err != nil {
		return Header{}, err
	}
	return tr.decode(fields)
}

func (tr *tiffReader) readIFD(off uint64) (map[uint16]field, error) {
	countSize, entrySize, inline := 2, 12, 4
	if tr.big {
		countSize, entrySize, inline = 8, 20, 8
	}

	cb := make([]byte, countSize)
	if _, err := tr.r.ReadAt(cb, int64(off)); err != nil {
		return nil, errkind.UnreadableImage.New("read IFD count: %v", err)
	}
	var n uint64
	if tr.big {
		n = tr.order.Uint64(cb)
	} else {
		n = uint64(tr.order.Uint16(cb))
	}
	if n == 0 || n > 4096 {
		return nil, errkind.UnreadableImage.New("IFD entry count %d", n)
	}

	buf := make([]byte, int(n)*entrySize)
	if _, err := tr.r.ReadAt(buf, int64(off)+int64(countSize)); err != nil {
		return nil, errkind.UnreadableImage.New("truncated IFD: %v", err)
	}

	out := make(map[uint16]field, n)
	for i := 0; i < int(n); i++ {
		e := buf[i*entrySize : (i+1)*entrySize]
		f := field{tag: tr.order.Uint16(e[0:2]), typ: tr.order.Uint16(e[2:4])}
		var valOff []byte
		if tr.big {
			f.count = tr.order.Uint64(e[4:12])
			valOff = e[12:20]
		} else {
			f.count = uint64(tr.order.Uint32(e[4:8]))
			valOff = e[8:12]
		}
		size := typeSize(f.typ)
		if size == 0 {
			continue // unknown type, skip per TIFF 6.0
		}
		total := f.count * uint64(size)
		if total > maxEntryBytes {
			return nil, errkind.UnreadableImage.New("tag %d: %d bytes", f.tag, total)
		}
		if total <= uint64(inline) {
			f.raw = append([]byte(nil), valOff[:total]...)
		} else {
			var p uint64
			if tr.big {
				p = tr.order.Uint64(valOff)
			} else {
				p = uint64(tr.order.Uint32(valOff))
			}
			f.raw = make([]byte, total)
			if _, err := tr.r.ReadAt(f.raw, int64(p)); err != nil {
				return nil, errkind.UnreadableImage.New("tag %d: truncated value: %v", f.tag, err)
			}
		}
		out[f.tag] = f
	}
	return out, nil
}

func typeSize(t uint16) int {
	switch t {
	case 1, 2, 6, 7: // BYTE ASCII SBYTE UNDEFINED
		return 1
	case 3, 8: // SHORT SSHORT
		return 2
	case 4, 9, 11: // LONG SLONG FLOAT
		return 4
	case 5, 10, 12, 16, 17, 18: // RATIONAL SRATIONAL DOUBLE LONG8 SLONG8 IFD8
		return 8
	}
	return 0
}

func (tr *tiffReader) uints(f field) []uint64 {
	out := make([]uint64, 0, f.count)
	for i := uint64(0); i < f.count; i++ {
		switch f.typ {
		case 1, 6, 7:
			out = append(out, uint64(f.raw[i]))
		case 3, 8:
			out = append(out, uint64(tr.order.Uint16(f.raw[i*2:])))
		case 4, 9:
			out = append(out, uint64(tr.order.Uint32(f.raw[i*4:])))
		case 16, 17, 18:
			out = append(out, tr.order.Uint64(f.raw[i*8:]))
		default:
			return nil
		}
	}
	return out
}

func (tr *tiffReader) floats(f field) []float64 {
	out := make([]float64, 0, f.count)
	for i := uint64(0); i < f.count; i++ {
		switch f.typ {
		case 11:
			out = append(out, float64(math.Float32frombits(tr.order.Uint32(f.raw[i*4:]))))
		case 12:
			out = append(out, math.Float64frombits(tr.order.Uint64(f.raw[i*8:])))
		case 5:
			num, den := tr.order.Uint32(f.raw[i*8:]), tr.order.Uint32(f.raw[i*8+4:])
			if den == 0 {
				return nil
			}
			out = append(out, float64(num)/float64(den))
		default:
			u := tr.uints(field{typ: f.typ, count: 1, raw: f.raw[i*uint64(typeSize(f.typ)):]})
			if u == nil {
				return nil
			}
			out = append(out, float64(u[0]))
		}
	}
	return out
}

func asciiValue(f field) string {
	return strings.TrimRight(string(f.raw), "\x00 ")
}

func (tr *tiffReader) first(fields map[uint16]field, tag uint16) (int, bool) {
	f, ok := fields[tag]
	if !ok {
		return 0, false
	}
	u := tr.uints(f)
	if len(u) == 0 {
		return 0, false
	}
	return int(u[0]), true
}

func (tr *tiffReader) decode(fields map[uint16]field) (Header, error) {
	h := Header{BigTIFF: tr.big, SamplesPerPixel: 1, SampleFormat: 1, Compression: 1}

	w, okW := tr.first(fields, tagImageWidth)
	ht, okH := tr.first(fields, tagImageLength)
	if !okW || !okH || w <= 0 || ht <= 0 {
		return Header{}, errkind.UnreadableImage.New("invalid dimensions %dx%d", w, ht)
	}
	h.Width, h.Height = w, ht

	if v, ok := tr.first(fields, tagSamplesPerPixel); ok && v > 0 {
		h.SamplesPerPixel = v
	}
	if v, ok := tr.first(fields, tagSampleFormat); ok {
		h.SampleFormat = v
	}
	if v, ok := tr.first(fields, tagCompression); ok {
		h.Compression = v
	}
	if f, ok := fields[tagBitsPerSample]; ok {
		for _, b := range tr.uints(f) {
			h.BitsPerSample = append(h.BitsPerSample, int(b))
		}
	}
	if f, ok := fields[tagDateTime]; ok && f.typ == 2 {
		h.DateTime = asciiValue(f)
	}
	if f, ok := fields[tagGDALNoData]; ok && f.typ == 2 {
		h.NoData = asciiValue(f)
	}
	if f, ok := fields[tagPixelScale]; ok {
		h.PixelScale = tr.floats(f)
	}
	if f, ok := fields[tagTiepoint]; ok {
		h.Tiepoints = tr.floats(f)
	}
	if f, ok := fields[tagTransformation]; ok {
		h.Transformation = tr.floats(f)
	}

	if f, ok := fields[tagGeoKeyDirectory]; ok {
		if err := tr.decodeGeoKeys(&h, f, fields); err != nil {
			return Header{}, err
		}
	}
	return h, nil
}

// decodeGeoKeys unpacks the GeoKeyDirectory: a 4-short header followed by
// (KeyID, TIFFTagLocation, Count, ValueOffset) quadruples.
func (tr *tiffReader) decodeGeoKeys(h *Header, dir field, fields map[uint16]field) error {
	if dir.typ != 3 {
		return errkind.UnreadableImage.New("geokey directory has type %d, want SHORT", dir.typ)
	}
	d := tr.uints(dir)
	if len(d) < 4 {
		return errkind.UnreadableImage.New("geokey directory too short")
	}
	n := int(d[3])
	if n > (len(d)-4)/4 {
		return errkind.UnreadableImage.New("geokey directory declares %d keys, has %d values", n, len(d)-4)
	}

	var doubles []float64
	if f, ok := fields[tagGeoDoubleParams]; ok {
		doubles = tr.floats(f)
	}
	var ascii string
	if f, ok := fields[tagGeoASCIIParams]; ok {
		ascii = string(f.raw)
	}

	h.GeoKeys = map[uint16]uint16{}
	h.GeoDoubleKeys = map[uint16]float64{}
	h.GeoASCIIKeys = map[uint16]string{}
	for i := range n {
		q := d[4+4*i : 8+4*i]
		id, loc, count, val := uint16(q[0]), q[1], int(q[2]), int(q[3])
		switch loc {
		case 0:
			h.GeoKeys[id] = uint16(val)
		case tagGeoDoubleParams:
			if val >= 0 && val < len(doubles) {
				h.GeoDoubleKeys[id] = doubles[val]
			}
		case tagGeoASCIIParams:
			if val >= 0 && val+count <= len(ascii) {
				h.GeoASCIIKeys[id] = strings.TrimRight(ascii[val:val+count], "|\x00")
			}
		default:
			// values stored in other tags are not needed for CRS detection
		}
	}
	return nil
}

// EPSG returns the CRS code declared by the GeoKeys, or 0 when none is usable.
func (h Header) EPSG() int {
	if h.GeoKeys == nil {
		return 0
	}
	if v, ok := h.GeoKeys[keyProjectedCS]; ok && v != userDefined && v != 0 {
		return int(v)
	}
	if mt := h.GeoKeys[keyModelType]; mt == modelProjected {
		return 0
	}
	if v, ok := h.GeoKeys[keyGeographicType]; ok && v != userDefined && v != 0 {
		return int(v)
	}
	return 0
}

// PixelIsPoint reports the RasterType GeoKey.
func (h Header) PixelIsPoint() bool {
	return h.GeoKeys != nil && h.GeoKeys[keyRasterType] == rasterPixelIsPoint
}

func (h Header) String() string {
	return fmt.Sprintf("%dx%d bands=%d epsg=%d", h.Width, h.Height, h.SamplesPerPixel, h.EPSG())
}

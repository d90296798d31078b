// Package rastertest writes small synthetic GeoTIFFs for tests.
package rastertest

import (
	"bytes"
	"encoding/binary"
	"math"
	"sort"
)

type Options struct {
	Width, Height int

	// EPSG 0 omits the GeoKey directory. 4326 is written as a geographic model,
	// anything else as a projected one.
	EPSG         int
	PixelIsPoint bool

	// Origin is the model coordinate of pixel (0,0); Scale is the pixel size.
	// A zero Scale with no Matrix omits georeferencing tags.
	Origin [2]float64
	Scale  [2]float64
	Matrix []float64

	DateTime  string
	BigEndian bool
	BigTIFF   bool
}

type entry struct {
	tag   uint16
	typ   uint16
	count uint64
	data  []byte
}

// GeoTIFF returns an uncompressed 8-bit grayscale image with a single strip.
func GeoTIFF(o Options) []byte {
	var order binary.ByteOrder = binary.LittleEndian
	if o.BigEndian {
		order = binary.BigEndian
	}

	u16 := func(vs ...uint16) []byte {
		b := make([]byte, 2*len(vs))
		for i, v := range vs {
			order.PutUint16(b[2*i:], v)
		}
		return b
	}
	u32 := func(vs ...uint32) []byte {
		b := make([]byte, 4*len(vs))
		for i, v := range vs {
			order.PutUint32(b[4*i:], v)
		}
		return b
	}
	f64 := func(vs ...float64) []byte {
		b := make([]byte, 8*len(vs))
		for i, v := range vs {
			order.PutUint64(b[8*i:], math.Float64bits(v))
		}
		return b
	}

	pixels := make([]byte, o.Width*o.Height)
	for y := 0; y < o.Height; y++ {
		for x := 0; x < o.Width; x++ {
			pixels[y*o.Width+x] = byte((x + y) % 256)
		}
	}

	entries := []entry{
		{256, 4, 1, u32(uint32(o.Width))},
		{257, 4, 1, u32(uint32(o.Height))},
		{258, 3, 1, u16(8)},
		{259, 3, 1, u16(1)},
		{262, 3, 1, u16(1)},
		{273, 4, 1, nil}, // StripOffsets, filled below
		{277, 3, 1, u16(1)},
		{278, 4, 1, u32(uint32(o.Height))},
		{279, 4, 1, u32(uint32(len(pixels)))},
	}
	if o.DateTime != "" {
		s := append([]byte(o.DateTime), 0)
		entries = append(entries, entry{306, 2, uint64(len(s)), s})
	}
	switch {
	case len(o.Matrix) == 16:
		entries = append(entries, entry{34264, 12, 16, f64(o.Matrix...)})
	case o.Scale != [2]float64{}:
		entries = append(entries,
			entry{33550, 12, 3, f64(o.Scale[0], o.Scale[1], 0)},
			entry{33922, 12, 6, f64(0, 0, 0, o.Origin[0], o.Origin[1], 0)},
		)
	}
	if o.EPSG != 0 {
		raster := uint16(1)
		if o.PixelIsPoint {
			raster = 2
		}
		keys := []uint16{1, 1, 0, 3}
		if o.EPSG == 4326 {
			keys = append(keys, 1024, 0, 1, 2, 1025, 0, 1, raster, 2048, 0, 1, uint16(o.EPSG))
		} else {
			keys = append(keys, 1024, 0, 1, 1, 1025, 0, 1, raster, 3072, 0, 1, uint16(o.EPSG))
		}
		entries = append(entries, entry{34735, 3, uint64(len(keys)), u16(keys...)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	hdrSize, countSize, entrySize, inline, nextSize := 8, 2, 12, 4, 4
	if o.BigTIFF {
		hdrSize, countSize, entrySize, inline, nextSize = 16, 8, 20, 8, 8
	}
	ifdSize := countSize + len(entries)*entrySize + nextSize
	cursor := hdrSize + ifdSize

	offsets := make([]int, len(entries))
	for i, e := range entries {
		if e.tag == 273 || len(e.data) <= inline {
			continue
		}
		offsets[i] = cursor
		cursor += len(e.data)
		cursor += cursor % 2
	}
	pixelOff := cursor
	for i := range entries {
		if entries[i].tag == 273 {
			entries[i].data = u32(uint32(pixelOff))
		}
	}

	var buf bytes.Buffer
	if o.BigEndian {
		buf.WriteString("MM")
	} else {
		buf.WriteString("II")
	}
	if o.BigTIFF {
		buf.Write(u16(43, 8, 0))
		b := make([]byte, 8)
		order.PutUint64(b, uint64(hdrSize))
		buf.Write(b)
	} else {
		buf.Write(u16(42))
		buf.Write(u32(uint32(hdrSize)))
	}

	if o.BigTIFF {
		b := make([]byte, 8)
		order.PutUint64(b, uint64(len(entries)))
		buf.Write(b)
	} else {
		buf.Write(u16(uint16(len(entries))))
	}
	for i, e := range entries {
		buf.Write(u16(e.tag, e.typ))
		val := make([]byte, inline)
		if o.BigTIFF {
			c := make([]byte, 8)
			order.PutUint64(c, e.count)
			buf.Write(c)
			if offsets[i] != 0 {
				order.PutUint64(val, uint64(offsets[i]))
			}
		} else {
			buf.Write(u32(uint32(e.count)))
			if offsets[i] != 0 {
				order.PutUint32(val, uint32(offsets[i]))
			}
		}
		if offsets[i] == 0 {
			copy(val, e.data)
		}
		buf.Write(val)
	}
	buf.Write(make([]byte, nextSize))

	for i, e := range entries {
		if offsets[i] == 0 {
			continue
		}
		buf.Write(e.data)
		if buf.Len()%2 == 1 {
			buf.WriteByte(0)
		}
	}
	buf.Write(pixels)
	return buf.Bytes()
}

// UTMScene is a 100x80 image in UTM 33N with 30m pixels.
func UTMScene() Options {
	return Options{
		Width: 100, Height: 80,
		EPSG:     32633,
		Origin:   [2]float64{500000, 4649776},
		Scale:    [2]float64{30, 30},
		DateTime: "2024:05:01 10:30:00",
	}
}

// GeographicScene is a 64x64 image over Stockholm in EPSG:4326 without a DateTime tag.
func GeographicScene() Options {
	return Options{
		Width: 64, Height: 64,
		EPSG:   4326,
		Origin: [2]float64{18.0, 59.4},
		Scale:  [2]float64{0.001, 0.001},
	}
}

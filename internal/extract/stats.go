package extract

import (
	"image"
	"math"
)

const histogramBins = 16

// scan at most this many pixels per image; larger rasters are strided
const maxStatPixels = 1 << 20

type Histogram struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Buckets []int64 `json:"buckets"`
}

type BandStats struct {
	Band      int       `json:"band"`
	Min       float64   `json:"min"`
	Max       float64   `json:"max"`
	Mean      float64   `json:"mean"`
	StdDev    float64   `json:"stddev"`
	Count     int64     `json:"count"`
	Histogram Histogram `json:"histogram"`
}

type Stats struct {
	Width  int         `json:"width"`
	Height int         `json:"height"`
	Stride int         `json:"sample_stride"`
	Bands  []BandStats `json:"bands"`
}

// bandValues yields per-band sample values at (x, y). Gray images keep their native
// bit depth; everything else is read as 8-bit RGB.
func bandValues(img image.Image) (int, func(x, y int, out []float64)) {
	switch im := img.(type) {
	case *image.Gray:
		return 1, func(x, y int, out []float64) { out[0] = float64(im.GrayAt(x, y).Y) }
	case *image.Gray16:
		return 1, func(x, y int, out []float64) { out[0] = float64(im.Gray16At(x, y).Y) }
	default:
		return 3, func(x, y int, out []float64) {
			r, g, b, _ := img.At(x, y).RGBA()
			out[0], out[1], out[2] = float64(r>>8), float64(g>>8), float64(b>>8)
		}
	}
}

func strideFor(w, h int) int {
	n := w * h
	if n <= maxStatPixels {
		return 1
	}
	return int(math.Ceil(math.Sqrt(float64(n) / maxStatPixels)))
}

// ComputeStats makes two passes: moments with Welford's update, then the histogram
// over the observed range.
func ComputeStats(img image.Image) Stats {
	b := img.Bounds()
	stride := strideFor(b.Dx(), b.Dy())
	nb, read := bandValues(img)

	bands := make([]BandStats, nb)
	m2 := make([]float64, nb)
	for i := range bands {
		bands[i] = BandStats{Band: i + 1, Min: math.Inf(1), Max: math.Inf(-1)}
	}
	vals := make([]float64, nb)

	for y := b.Min.Y; y < b.Max.Y; y += stride {
		for x := b.Min.X; x < b.Max.X; x += stride {
			read(x, y, vals)
			for i, v := range vals {
				bs := &bands[i]
				bs.Count++
				d := v - bs.Mean
				bs.Mean += d / float64(bs.Count)
				m2[i] += d * (v - bs.Mean)
				bs.Min = math.Min(bs.Min, v)
				bs.Max = math.Max(bs.Max, v)
			}
		}
	}
	for i := range bands {
		if bands[i].Count > 0 {
			bands[i].StdDev = math.Sqrt(m2[i] / float64(bands[i].Count))
		} else {
			bands[i].Min, bands[i].Max = 0, 0
		}
		bands[i].Histogram = Histogram{Min: bands[i].Min, Max: bands[i].Max, Buckets: make([]int64, histogramBins)}
	}

	for y := b.Min.Y; y < b.Max.Y; y += stride {
		for x := b.Min.X; x < b.Max.X; x += stride {
			read(x, y, vals)
			for i, v := range vals {
				h := &bands[i].Histogram
				h.Buckets[bucket(v, h.Min, h.Max)]++
			}
		}
	}

	return Stats{Width: b.Dx(), Height: b.Dy(), Stride: stride, Bands: bands}
}

func bucket(v, lo, hi float64) int {
	if hi <= lo {
		return 0
	}
	i := int((v - lo) / (hi - lo) * histogramBins)
	if i >= histogramBins {
		i = histogramBins - 1
	}
	if i < 0 {
		i = 0
	}
	return i
}

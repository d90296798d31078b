package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/mohammed-shakir/raster-intake/internal/raster"
)

const (
	PreviewAsset = "preview"
	StatsAsset   = "stats"
)

func previewArtifact(img image.Image, size int) (raster.Artifact, error) {
	thumb := imaging.Fit(img, size, size, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.PNG); err != nil {
		return raster.Artifact{}, fmt.Errorf("encode preview: %w", err)
	}
	return raster.Artifact{
		Name:      PreviewAsset,
		File:      "preview.png",
		MediaType: "image/png",
		Title:     "Preview",
		Roles:     []string{"overview"},
		Data:      buf.Bytes(),
	}, nil
}

func statsArtifact(img image.Image) (raster.Artifact, error) {
	b, err := json.Marshal(ComputeStats(img))
	if err != nil {
		return raster.Artifact{}, fmt.Errorf("encode stats: %w", err)
	}
	return raster.Artifact{
		Name:      StatsAsset,
		File:      "stats.json",
		MediaType: "application/json",
		Title:     "Band statistics",
		Roles:     []string{"metadata"},
		Data:      b,
	}, nil
}

package jobs

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesura-app/mesura/internal/domain"
	"github.com/mesura-app/mesura/internal/worker"
)

// testImagePNG renders a small PNG for decoding tests.
func testImagePNG(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestGenerateThumbnail_FitsWithinBounds(t *testing.T) {
	processor := NewImagingProcessor()

	data := testImagePNG(t, 1280, 960)
	thumb, origW, origH, err := processor.GenerateThumbnail(
		bytes.NewReader(data),
		domain.ThumbnailMaxWidth,
		domain.ThumbnailMaxHeight,
	)
	require.NoError(t, err)

	assert.Equal(t, 1280, origW)
	assert.Equal(t, 960, origH)

	decoded, format, err := image.Decode(bytes.NewReader(thumb))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.LessOrEqual(t, decoded.Bounds().Dx(), domain.ThumbnailMaxWidth)
	assert.LessOrEqual(t, decoded.Bounds().Dy(), domain.ThumbnailMaxHeight)

	// Aspect ratio preserved: 1280x960 scales to 320x240
	assert.Equal(t, 320, decoded.Bounds().Dx())
	assert.Equal(t, 240, decoded.Bounds().Dy())
}

func TestGenerateThumbnail_SmallImageNotUpscaled(t *testing.T) {
	processor := NewImagingProcessor()

	data := testImagePNG(t, 100, 80)
	thumb, origW, origH, err := processor.GenerateThumbnail(
		bytes.NewReader(data),
		domain.ThumbnailMaxWidth,
		domain.ThumbnailMaxHeight,
	)
	require.NoError(t, err)

	assert.Equal(t, 100, origW)
	assert.Equal(t, 80, origH)

	decoded, _, err := image.Decode(bytes.NewReader(thumb))
	require.NoError(t, err)
	assert.Equal(t, 100, decoded.Bounds().Dx())
	assert.Equal(t, 80, decoded.Bounds().Dy())
}

func TestGenerateThumbnail_RejectsNonImageData(t *testing.T) {
	processor := NewImagingProcessor()

	_, _, _, err := processor.GenerateThumbnail(
		bytes.NewReader([]byte("not an image")),
		domain.ThumbnailMaxWidth,
		domain.ThumbnailMaxHeight,
	)
	assert.Error(t, err)
}

func TestGenerateThumbnailHandler_InvalidPayloadIsPermanent(t *testing.T) {
	handler := NewGenerateThumbnailHandler(nil, nil, NewImagingProcessor(), slog.New(slog.DiscardHandler))

	err := handler.Handle(context.Background(), []byte("{not json"))
	require.Error(t, err)
	assert.True(t, worker.IsPermanent(err))
}

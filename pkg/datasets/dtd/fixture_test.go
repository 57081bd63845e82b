package dtd

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const testRoot = "/data/dtd"

func writeFile(t *testing.T, fs afero.Fs, path string, contents []byte) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, afero.WriteFile(fs, path, contents, 0o644))
}

func writePNG(t *testing.T, fs afero.Fs, path string, img image.Image) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	writeFile(t, fs, path, buf.Bytes())
}

func writeJPEG(t *testing.T, fs afero.Fs, path string, img image.Image) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	writeFile(t, fs, path, buf.Bytes())
}

func rgbImage(width, height int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func grayImage(width, height int, y uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for ii := range img.Pix {
		img.Pix[ii] = y
	}
	return img
}

func palettedImage(width, height int) *image.Paletted {
	img := image.NewPaletted(image.Rect(0, 0, width, height), color.Palette{
		color.RGBA{R: 200, G: 10, B: 10, A: 0xFF},
		color.RGBA{R: 10, G: 200, B: 10, A: 0xFF},
	})
	for ii := range img.Pix {
		img.Pix[ii] = uint8(ii % 2)
	}
	return img
}

// newTestDataset creates a small dataset with the DTD layout in an in-memory filesystem:
//
//   - classes "banded", "striped" and "zigzag" (empty), plus a regular file in images/.
//   - images in several color models: RGB, grayscale (JPEG), paletted and with alpha.
//   - manifests for split "1": train and val (3 images, with a blank line) and test (2 images).
func newTestDataset(t *testing.T) afero.Fs {
	fs := afero.NewMemMapFs()
	images := filepath.Join(testRoot, ImagesSubdir)
	writePNG(t, fs, filepath.Join(images, "banded/banded_0001.png"), rgbImage(40, 30, color.NRGBA{R: 255, G: 128, B: 0, A: 0xFF}))
	writeJPEG(t, fs, filepath.Join(images, "banded/banded_0002.jpg"), grayImage(24, 36, 100))
	writePNG(t, fs, filepath.Join(images, "striped/striped_0001.png"), palettedImage(32, 32))
	writePNG(t, fs, filepath.Join(images, "striped/striped_0002.png"), rgbImage(20, 20, color.NRGBA{R: 10, G: 20, B: 30, A: 0x40}))
	require.NoError(t, fs.MkdirAll(filepath.Join(images, "zigzag"), 0o755))
	writeFile(t, fs, filepath.Join(images, "README.txt"), []byte("not a class"))

	labels := filepath.Join(testRoot, LabelsSubdir)
	writeFile(t, fs, filepath.Join(labels, "train1.txt"), []byte("banded/banded_0001.png\nstriped/striped_0001.png\n"))
	writeFile(t, fs, filepath.Join(labels, "val1.txt"), []byte("banded/banded_0002.jpg  \r\n\n"))
	writeFile(t, fs, filepath.Join(labels, "test1.txt"), []byte("striped/striped_0002.png\nbanded/banded_0001.png"))
	return fs
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.DatasetPath = testRoot
	cfg.BatchSize = 2
	cfg.NumWorkers = 2
	cfg.Prefetch = 1
	cfg.ResizeSize = 16
	cfg.CropSize = 8
	cfg.Seed = 1
	return cfg
}

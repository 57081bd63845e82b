package main

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/janpfeifer/must"
	"github.com/jiaxue1993/material-classification/pkg/datasets/dtd"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// createDataset writes a tiny dataset with the DTD layout to a temporary directory, and
// returns its root and a configuration file with small image sizes.
func createDataset(t *testing.T) (root, configPath string) {
	root = t.TempDir()
	colors := map[string][]color.NRGBA{
		"dotted":  {{R: 250, G: 10, B: 10, A: 255}, {R: 200, G: 50, B: 20, A: 255}, {R: 220, G: 30, B: 60, A: 255}},
		"striped": {{R: 10, G: 10, B: 250, A: 255}, {R: 40, G: 90, B: 200, A: 255}},
	}
	for class, classColors := range colors {
		dir := filepath.Join(root, "images", class)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		for ii, c := range classColors {
			img := image.NewNRGBA(image.Rect(0, 0, 20+ii, 16))
			for y := range img.Bounds().Dy() {
				for x := range img.Bounds().Dx() {
					pixel := c
					if (x+y)%2 == 0 {
						pixel.G += 30
					}
					img.SetNRGBA(x, y, pixel)
				}
			}
			f := must.M1(os.Create(filepath.Join(dir, class+"_"+string(rune('a'+ii))+".png")))
			must.M(png.Encode(f, img))
			must.M(f.Close())
		}
	}
	require.NoError(t, os.MkdirAll(filepath.Join(root, "images", "empty"), 0o755))
	labels := filepath.Join(root, "labels")
	require.NoError(t, os.MkdirAll(labels, 0o755))
	manifests := map[string]string{
		"train1.txt": "dotted/dotted_a.png\nstriped/striped_a.png\n",
		"val1.txt":   "dotted/dotted_b.png\n",
		"test1.txt":  "dotted/dotted_c.png\nstriped/striped_b.png\n",
	}
	for name, contents := range manifests {
		require.NoError(t, os.WriteFile(filepath.Join(labels, name), []byte(contents), 0o644))
	}

	configPath = filepath.Join(t.TempDir(), "dtd.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("resize_size: 12\ncrop_size: 8\nlighting_std: 0.1\nprefetch: 1\n"), 0o644))
	return root, configPath
}

// run executes the dtd command with args, and returns what it wrote to the output.
func run(t *testing.T, args ...string) (string, error) {
	cmd := newRootCommand(nil)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestConfigFlags(t *testing.T) {
	root, configPath := createDataset(t)
	lf := &loaderFlags{}
	cmd := &cobra.Command{Use: "test"}
	lf.register(cmd.Flags())
	require.NoError(t, cmd.Flags().Parse([]string{"--config", configPath, "--data", root, "--batch", "3"}))
	cfg, err := lf.config(cmd)
	require.NoError(t, err)
	assert.Equal(t, root, cfg.DatasetPath)
	assert.Equal(t, 3, cfg.BatchSize)
	assert.Equal(t, 12, cfg.ResizeSize)
	assert.Equal(t, 8, cfg.CropSize)
	// Not set in the command line: the configuration file (or its defaults) wins.
	assert.Equal(t, dtd.DefaultConfig().NumWorkers, cfg.NumWorkers)

	_, err = run(t, "index", "--data", root, "--batch", "0")
	require.ErrorIs(t, err, dtd.ErrInvalidConfig)
}

func TestIndexCommand(t *testing.T) {
	root, configPath := createDataset(t)
	outDir := t.TempDir()
	csvPath := filepath.Join(outDir, "index.csv")
	plotPath := filepath.Join(outDir, "classes.png")
	out, err := run(t, "index", "--config", configPath, "--data", root, "--seed", "7",
		"--csv", csvPath, "--plot", plotPath)
	require.NoError(t, err)
	for _, class := range []string{"dotted", "empty", "striped"} {
		assert.Contains(t, out, class)
	}

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	df := dataframe.ReadCSV(f)
	require.NoError(t, df.Err)
	assert.Equal(t, 5, df.Nrow())
	assert.Equal(t, []string{"split", "path", "label", "class"}, df.Names())
	assert.Equal(t, []string{"train", "train", "train", "eval", "eval"}, df.Col("split").Records())
	assert.Equal(t, []string{"dotted", "striped", "dotted", "dotted", "striped"}, df.Col("class").Records())
	assert.Equal(t, []string{"0", "2", "0", "0", "2"}, df.Col("label").Records())

	info, err := os.Stat(plotPath)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestStatsCommand(t *testing.T) {
	root, configPath := createDataset(t)
	outPath := filepath.Join(t.TempDir(), "stats.yaml")
	out, err := run(t, "stats", "--config", configPath, "--data", root, "--seed", "7", "--out", outPath)
	require.NoError(t, err)

	var stats colorStats
	require.NoError(t, yaml.Unmarshal([]byte(out), &stats))
	mean := stats.Normalize.Mean
	assert.Greater(t, mean[0], mean[2], "training images are mostly red")
	for c := range 3 {
		assert.True(t, mean[c] >= 0 && mean[c] <= 1)
		assert.Positive(t, stats.Normalize.Std[c])
	}
	assert.GreaterOrEqual(t, stats.Lighting.Eigenvalues[0], stats.Lighting.Eigenvalues[1])
	assert.GreaterOrEqual(t, stats.Lighting.Eigenvalues[1], stats.Lighting.Eigenvalues[2])
	require.NoError(t, stats.Lighting.Validate())

	// The output file can be loaded as a configuration.
	cfg, err := dtd.LoadConfig(afero.NewOsFs(), outPath)
	require.NoError(t, err)
	assert.Equal(t, stats.Normalize, cfg.Normalize)
}

func TestSampleCommand(t *testing.T) {
	root, configPath := createDataset(t)
	for _, train := range []bool{false, true} {
		outDir := t.TempDir()
		args := []string{"sample", "--config", configPath, "--data", root, "--seed", "7", "--n", "10", "--out", outDir}
		if train {
			args = append(args, "--train")
		}
		out, err := run(t, args...)
		require.NoError(t, err)
		paths := strings.Fields(out)
		if train {
			require.Len(t, paths, 3)
			assert.True(t, strings.HasPrefix(filepath.Base(paths[0]), "train_000_dotted"))
		} else {
			require.Len(t, paths, 2)
			assert.Equal(t, filepath.Join(outDir, "eval_001_striped.png"), paths[1])
		}
		for _, p := range paths {
			f, err := os.Open(p)
			require.NoError(t, err)
			img, err := png.Decode(f)
			_ = f.Close()
			require.NoError(t, err)
			assert.Equal(t, image.Rect(0, 0, 8, 8), img.Bounds())
		}
	}
}

func TestBenchCommand(t *testing.T) {
	root, configPath := createDataset(t)
	out, err := run(t, "bench", "--config", configPath, "--data", root, "--seed", "7",
		"--batch", "2", "--workers", "2", "--epochs", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "train: 2 epochs, 4 batches, 6 images")
	assert.Contains(t, out, "images/s")

	out, err = run(t, "bench", "--config", configPath, "--data", root, "--eval")
	require.NoError(t, err)
	assert.Contains(t, out, "eval: 1 epochs, 1 batches, 2 images")

	_, err = run(t, "bench", "--data", root, "--epochs", "0")
	require.Error(t, err)
}

func TestDownloadCommand(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	manifest := []byte("dotted/dotted_a.png\n")
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "dtd/labels/train1.txt", Mode: 0o644, Size: int64(len(manifest)), Typeflag: tar.TypeReg}))
	_, err := tw.Write(manifest)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(buf.Bytes())
	}))
	defer server.Close()

	savedURL, savedFs := dtd.DownloadURL, appFs
	dtd.DownloadURL = server.URL + "/dtd.tar.gz"
	appFs = afero.NewMemMapFs()
	defer func() { dtd.DownloadURL, appFs = savedURL, savedFs }()

	out, err := run(t, "download", "--dir", "/cache", "--progress=false")
	require.NoError(t, err)
	assert.Equal(t, "/cache/dtd\n", out)
	contents, err := afero.ReadFile(appFs, "/cache/dtd/labels/train1.txt")
	require.NoError(t, err)
	assert.Equal(t, manifest, contents)
}

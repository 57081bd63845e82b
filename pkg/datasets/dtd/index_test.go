package dtd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildClassIndex(t *testing.T) {
	fs := newTestDataset(t)
	imagesRoot := filepath.Join(testRoot, ImagesSubdir)
	classes, err := BuildClassIndex(fs, imagesRoot)
	require.NoError(t, err)
	assert.Equal(t, []string{"banded", "striped", "zigzag"}, classes.Names())
	assert.Equal(t, 3, classes.Len())
	for id, name := range classes.Names() {
		got, found := classes.ID(name)
		require.True(t, found)
		assert.Equal(t, id, got)
		assert.Equal(t, name, classes.Name(id))
	}
	_, found := classes.ID("README.txt")
	assert.False(t, found, "regular files are not classes")

	// Reproducible.
	again, err := BuildClassIndex(fs, imagesRoot)
	require.NoError(t, err)
	assert.Equal(t, classes, again)

	// Names returns a copy.
	names := classes.Names()
	names[0] = "changed"
	assert.Equal(t, "banded", classes.Name(0))

	_, err = BuildClassIndex(fs, "/no/such/dir")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = BuildClassIndex(fs, filepath.Join(imagesRoot, "README.txt"))
	require.ErrorIs(t, err, ErrNotFound)

	_, err = NewClassIndex([]string{"a", "b", "a"})
	require.Error(t, err)
}

func TestBuildClassIndexFollowsSymlinks(t *testing.T) {
	tmp := t.TempDir()
	imagesRoot := filepath.Join(tmp, ImagesSubdir)
	require.NoError(t, os.MkdirAll(filepath.Join(imagesRoot, "banded"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(imagesRoot, "README.txt"), []byte("not a class"), 0o644))
	elsewhere := filepath.Join(tmp, "elsewhere", "striped")
	require.NoError(t, os.MkdirAll(elsewhere, 0o755))
	if err := os.Symlink(elsewhere, filepath.Join(imagesRoot, "striped")); err != nil {
		t.Skipf("symbolic links not supported: %v", err)
	}
	require.NoError(t, os.Symlink(filepath.Join(imagesRoot, "README.txt"), filepath.Join(imagesRoot, "readme_link")))
	require.NoError(t, os.Symlink(filepath.Join(tmp, "missing"), filepath.Join(imagesRoot, "dangling")))

	classes, err := BuildClassIndex(afero.NewOsFs(), imagesRoot)
	require.NoError(t, err)
	assert.Equal(t, []string{"banded", "striped"}, classes.Names())
}

func TestBuildManifestIndex(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/root/images/banded/b1.jpg", []byte("x"))
	writeFile(t, fs, "/root/images/striped/s1.jpg", []byte("x"))
	writeFile(t, fs, "/root/labels/train1.txt", []byte("banded/b1.jpg\nstriped/s1.jpg\n"))
	classes, err := BuildClassIndex(fs, "/root/images")
	require.NoError(t, err)
	banded, _ := classes.ID("banded")
	striped, _ := classes.ID("striped")
	assert.Equal(t, 0, banded)
	assert.Equal(t, 1, striped)

	index, err := BuildManifestIndex(fs, []string{"/root/labels/train1.txt"}, "/root", classes)
	require.NoError(t, err)
	assert.Equal(t, []string{"/root/images/banded/b1.jpg", "/root/images/striped/s1.jpg"}, index.Paths())
	assert.Equal(t, []int{0, 1}, index.Labels())
	assert.Equal(t, 2, index.Len())
	assert.Equal(t, []int{1, 1}, index.ClassCounts())

	// Unknown class.
	writeFile(t, fs, "/root/labels/unknown.txt", []byte("banded/b1.jpg\nunknown/x.jpg\n"))
	_, err = BuildManifestIndex(fs, []string{"/root/labels/unknown.txt"}, "/root", classes)
	require.ErrorIs(t, err, ErrUnknownClass)
	assert.Contains(t, err.Error(), "unknown.txt:2")

	// Missing file: construction fails, and nothing is returned.
	writeFile(t, fs, "/root/labels/missing.txt", []byte("banded/b1.jpg\nbanded/b2.jpg\nstriped/s1.jpg\n"))
	index, err = BuildManifestIndex(fs, []string{"/root/labels/missing.txt"}, "/root", classes)
	require.ErrorIs(t, err, ErrMissingFile)
	assert.Nil(t, index)
	assert.Contains(t, err.Error(), "missing.txt:2")

	// A directory is not an image.
	writeFile(t, fs, "/root/labels/dir.txt", []byte("banded\n"))
	_, err = BuildManifestIndex(fs, []string{"/root/labels/dir.txt"}, "/root", classes)
	require.ErrorIs(t, err, ErrMissingFile)

	// Missing manifest.
	_, err = BuildManifestIndex(fs, []string{"/root/labels/train1.txt", "/root/labels/nope.txt"}, "/root", classes)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestManifestOrderAndLabels(t *testing.T) {
	fs := newTestDataset(t)
	classes, err := BuildClassIndex(fs, filepath.Join(testRoot, ImagesSubdir))
	require.NoError(t, err)
	cfg := testConfig()
	index, err := BuildManifestIndex(fs, cfg.TrainManifests(), testRoot, classes)
	require.NoError(t, err)

	// File order then line order; trailing white space and blank lines are ignored.
	wantPaths := []string{
		filepath.Join(testRoot, "images/banded/banded_0001.png"),
		filepath.Join(testRoot, "images/striped/striped_0001.png"),
		filepath.Join(testRoot, "images/banded/banded_0002.jpg"),
	}
	assert.Equal(t, wantPaths, index.Paths())
	require.Equal(t, len(index.Paths()), len(index.Labels()))
	for i, p := range index.Paths() {
		className := filepath.Base(filepath.Dir(p))
		id, found := classes.ID(className)
		require.True(t, found)
		assert.Equal(t, id, index.Label(i))
		assert.Equal(t, p, index.Path(i))
	}
	assert.Equal(t, []int{2, 1, 0}, index.ClassCounts())
	assert.Equal(t, 3, index.NumClasses())
}

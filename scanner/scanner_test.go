package scanner

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagededup/config"
	"imagededup/database"
	"imagededup/errortracker"
	"imagededup/source"
	"imagededup/types"
)

// sliceSource yields fixed entries and can cancel its context after a number of them
type sliceSource struct {
	entries     []source.Entry
	pos         int
	cancelAfter int
	cancel      context.CancelFunc
}

func (s *sliceSource) Next(ctx context.Context) (source.Entry, error) {
	if err := ctx.Err(); err != nil {
		return source.Entry{}, err
	}
	if s.pos >= len(s.entries) {
		return source.Entry{}, io.EOF
	}
	e := s.entries[s.pos]
	s.pos++
	if s.cancel != nil && s.pos == s.cancelAfter {
		s.cancel()
	}
	return e, nil
}

func entries(pairs ...string) []source.Entry {
	var out []source.Entry
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, source.Entry{Name: pairs[i], SourcePath: "/in/test.zip", Data: []byte(pairs[i+1])})
	}
	return out
}

// tableFingerprinter returns preset fingerprints keyed by content
type tableFingerprinter map[string]types.Fingerprint

func (f tableFingerprinter) Fingerprint(data []byte) (types.Fingerprint, error) {
	fp, ok := f[string(data)]
	if !ok {
		return 0, errors.New("unknown image format")
	}
	return fp, nil
}

func (f tableFingerprinter) Name() string { return "table" }

func baseOptions(fs afero.Fs) Options {
	return Options{
		ContentHash:      "md5",
		IDScheme:         config.IDSequential,
		UniquePath:       "/out/unique_images.zip",
		DuplicatePath:    "/out/duplicate_images.zip",
		ManifestDir:      "/out/csv",
		WorkingDirectory: "/work",
		Fs:               fs,
	}
}

func readCSV(t *testing.T, fs afero.Fs, path string) [][]string {
	t.Helper()
	raw, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	rows, err := csv.NewReader(bytes.NewReader(raw)).ReadAll()
	require.NoError(t, err)
	return rows[1:]
}

func zipNames(t *testing.T, fs afero.Fs, path string) []string {
	t.Helper()
	raw, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	var out []string
	for _, f := range zr.File {
		out = append(out, f.Name)
	}
	return out
}

func TestThreeIdenticalImagesExactMode(t *testing.T) {
	fs := afero.NewMemMapFs()
	src := &sliceSource{entries: entries("a.png", "same", "b.png", "same", "c.png", "same")}

	summary, err := Run(context.Background(), src, baseOptions(fs))
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Delivered)
	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 1, summary.Unique)
	assert.Equal(t, 2, summary.ExactDuplicates)
	assert.Equal(t, 0, summary.Errors)

	unique := zipNames(t, fs, "/out/unique_images.zip")
	require.Len(t, unique, 1)
	assert.True(t, strings.HasSuffix(unique[0], ".png"))

	processed := readCSV(t, fs, "/out/csv/processed_images.csv")
	assert.Len(t, processed, 3)

	dupes := readCSV(t, fs, "/out/csv/duplicate_images.csv")
	require.Len(t, dupes, 2)
	for _, row := range dupes {
		assert.Equal(t, "a.png", row[4], "representative name")
		assert.Equal(t, "0", row[6], "hamming distance")
	}

	exists, err := afero.Exists(fs, "/out/duplicate_images.zip")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSimilarityThreshold(t *testing.T) {
	fp := tableFingerprinter{"A": 0b000, "B": 0b111}

	testCases := []struct {
		name      string
		threshold float64
		unique    int
		similar   int
	}{
		{"within threshold", 5, 1, 1},
		{"outside threshold", 2, 2, 0},
		{"distance equal to threshold", 3, 2, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			opts := baseOptions(fs)
			opts.Threshold = tc.threshold
			opts.Fingerprinter = fp

			summary, err := Run(context.Background(), &sliceSource{entries: entries("a.png", "A", "b.png", "B")}, opts)
			require.NoError(t, err)
			assert.Equal(t, tc.unique, summary.Unique)
			assert.Equal(t, tc.similar, summary.SimilarDuplicates)
		})
	}
}

func TestCorruptEntryIsCountedAndRunCompletes(t *testing.T) {
	fs := afero.NewMemMapFs()
	opts := baseOptions(fs)
	opts.Threshold = 4
	opts.WriteDuplicates = true
	opts.Fingerprinter = tableFingerprinter{"A": 0x00, "B": 0xFF00, "C": 0x01, "D": 0xFFFF_0000_0000, "E": 0xFF01}

	src := &sliceSource{entries: entries(
		"1.png", "A", "2.png", "B", "3.png", "corrupt", "4.png", "C", "5.png", "D", "6.png", "E",
	)}
	summary, err := Run(context.Background(), src, opts)
	require.NoError(t, err)

	assert.Equal(t, 6, summary.Delivered)
	assert.Equal(t, 5, summary.Processed)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, summary.Delivered, summary.Processed+summary.Errors)
	assert.Equal(t, 3, summary.Unique)
	assert.Equal(t, 2, summary.SimilarDuplicates)

	for _, row := range readCSV(t, fs, "/out/csv/processed_images.csv") {
		assert.NotEqual(t, "3.png", row[0])
	}
	assert.Len(t, zipNames(t, fs, "/out/unique_images.zip"), 3)
	assert.Len(t, zipNames(t, fs, "/out/duplicate_images.zip"), 2)
}

func TestAccessErrorsAreCounted(t *testing.T) {
	fs := afero.NewMemMapFs()
	src := &sliceSource{entries: []source.Entry{
		{Name: "ok.png", Data: []byte("x")},
		{Name: "broken.zip", Err: errortracker.ArchiveAccess("broken.zip", errors.New("not a zip"))},
	}}

	summary, err := Run(context.Background(), src, baseOptions(fs))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Delivered)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Errors)
}

func TestGroupedOutputAndStagingCleanup(t *testing.T) {
	fs := afero.NewMemMapFs()
	opts := baseOptions(fs)
	opts.Threshold = 3
	opts.GroupedPath = "/out/grouped.zip"
	opts.Fingerprinter = tableFingerprinter{"A": 0x0, "B": 0x1, "C": 0xFF00, "D": 0x0}

	src := &sliceSource{entries: entries("a.jpg", "A", "b.jpg", "B", "c.jpg", "C", "d.jpg", "D")}
	summary, err := Run(context.Background(), src, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Unique)
	assert.Equal(t, 1, summary.SimilarDuplicates)
	assert.Equal(t, 1, summary.ExactDuplicates)

	grouped := zipNames(t, fs, "/out/grouped.zip")
	require.Len(t, grouped, 2)
	repID := strings.SplitN(grouped[0], "/", 2)[0]
	assert.Equal(t, repID+"/"+repID+".jpg", grouped[0])
	assert.True(t, strings.HasPrefix(grouped[1], repID+"/duplicates/"))

	staged, err := afero.ReadDir(fs, "/work")
	require.NoError(t, err)
	assert.Empty(t, staged, "staging area is released")
}

func TestGroupedOutputInExactModeStagesNothing(t *testing.T) {
	fs := afero.NewMemMapFs()
	opts := baseOptions(fs)
	opts.GroupedPath = "/out/grouped.zip"

	src := &sliceSource{entries: entries("a.png", "1", "b.png", "1", "c.png", "2")}
	summary, err := Run(context.Background(), src, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Unique)
	assert.Equal(t, 1, summary.ExactDuplicates)

	for _, p := range []string{"/work", "/out/grouped.zip"} {
		exists, err := afero.Exists(fs, p)
		require.NoError(t, err)
		assert.False(t, exists, p)
	}
}

func TestDeterministicOutputs(t *testing.T) {
	run := func() afero.Fs {
		fs := afero.NewMemMapFs()
		opts := baseOptions(fs)
		opts.WriteDuplicates = true
		src := &sliceSource{entries: entries("a.png", "1", "b.png", "2", "c.png", "1", "d.png", "3")}
		_, err := Run(context.Background(), src, opts)
		require.NoError(t, err)
		return fs
	}

	first, second := run(), run()
	for _, p := range []string{
		"/out/csv/processed_images.csv",
		"/out/csv/unique_images.csv",
		"/out/csv/duplicate_images.csv",
		"/out/unique_images.zip",
		"/out/duplicate_images.zip",
	} {
		a, err := afero.ReadFile(first, p)
		require.NoError(t, err)
		b, err := afero.ReadFile(second, p)
		require.NoError(t, err)
		assert.Equal(t, a, b, p)
	}
}

func TestCancellationFlushesPartialResults(t *testing.T) {
	fs := afero.NewMemMapFs()
	opts := baseOptions(fs)
	opts.Threshold = 3
	opts.Fingerprinter = tableFingerprinter{"1": 0x0, "2": 0xFF, "3": 0xFF00, "4": 0xFF0000}
	opts.GroupedPath = "/out/grouped.zip"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &sliceSource{
		entries:     entries("a.png", "1", "b.png", "2", "c.png", "3", "d.png", "4"),
		cancelAfter: 2,
		cancel:      cancel,
	}

	summary, err := Run(ctx, src, opts)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 2, summary.Delivered)
	assert.Equal(t, 2, summary.Unique)
	assert.Len(t, readCSV(t, fs, "/out/csv/processed_images.csv"), 2)
	assert.Len(t, zipNames(t, fs, "/out/unique_images.zip"), 2)

	staged, err := afero.ReadDir(fs, "/work")
	require.NoError(t, err)
	assert.Empty(t, staged)
}

func TestConfigErrorsCreateNoOutput(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(o *Options)
	}{
		{"negative threshold", func(o *Options) { o.Threshold = -1 }},
		{"nan threshold", func(o *Options) { o.Threshold = math.NaN() }},
		{"infinite threshold", func(o *Options) { o.Threshold = math.Inf(1) }},
		{"unknown content hash", func(o *Options) { o.ContentHash = "crc32" }},
		{"unknown id scheme", func(o *Options) { o.IDScheme = "short" }},
		{"missing unique path", func(o *Options) { o.UniquePath = "" }},
		{"missing duplicate path", func(o *Options) {
			o.WriteDuplicates = true
			o.DuplicatePath = ""
		}},
		{"missing manifest dir", func(o *Options) { o.ManifestDir = "" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			opts := baseOptions(fs)
			opts.GroupedPath = "/out/grouped.zip"
			tc.mutate(&opts)

			_, err := Run(context.Background(), &sliceSource{entries: entries("a.png", "1")}, opts)
			require.Error(t, err)
			assert.True(t, config.IsConfigError(err))

			for _, p := range []string{"/out", "/work"} {
				exists, err := afero.Exists(fs, p)
				require.NoError(t, err)
				assert.False(t, exists, p)
			}
		})
	}
}

func TestDatabaseAndMetricsArtifacts(t *testing.T) {
	dir := t.TempDir()
	fs := afero.NewMemMapFs()
	opts := baseOptions(fs)
	opts.DatabasePath = filepath.Join(dir, "manifest.db")
	opts.MetricsPath = "/out/metrics/dedup.prom"

	src := &sliceSource{entries: entries("a.png", "1", "b.png", "1", "c.png", "2")}
	_, err := Run(context.Background(), src, opts)
	require.NoError(t, err)

	db, err := sql.Open("sqlite3", opts.DatabasePath)
	require.NoError(t, err)
	defer db.Close()
	stats, err := database.GetScanStats(db)
	require.NoError(t, err)
	assert.Equal(t, &database.ScanStats{Processed: 3, Unique: 2, Duplicates: 1, Representatives: 1}, stats)

	raw, err := afero.ReadFile(fs, opts.MetricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `imagededup_images_total{classification="exact_duplicate"} 1`)
	assert.Contains(t, string(raw), `imagededup_images_total{classification="unique"} 2`)
	assert.Contains(t, string(raw), "imagededup_representatives 2")

	_, err = os.Stat(opts.MetricsPath)
	assert.True(t, os.IsNotExist(err), "metrics textfile stays on the run filesystem")
}

// blockImage paints an 8x8 grid of pseudo-random grey blocks
func blockImage(seed int64, size int) *image.RGBA {
	rng := rand.New(rand.NewSource(seed))
	levels := make([]uint8, 64)
	for i := range levels {
		levels[i] = uint8(rng.Intn(256))
	}

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	cell := size / 8
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			v := levels[(y/cell)*8+x/cell]
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func TestRecompressedImageIsDuplicateWithDefaultEngine(t *testing.T) {
	img := blockImage(2, 128)

	var pngBuf, jpgBuf bytes.Buffer
	require.NoError(t, png.Encode(&pngBuf, img))
	require.NoError(t, jpeg.Encode(&jpgBuf, img, &jpeg.Options{Quality: 75}))

	fs := afero.NewMemMapFs()
	opts := baseOptions(fs)
	opts.Threshold = 11

	src := &sliceSource{entries: []source.Entry{
		{Name: "orig.png", Data: pngBuf.Bytes()},
		{Name: "copy.jpg", Data: jpgBuf.Bytes()},
		{Name: "junk.png", Data: []byte("definitely not an image")},
	}}
	summary, err := Run(context.Background(), src, opts)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Unique)
	assert.Equal(t, 1, summary.ExactDuplicates+summary.SimilarDuplicates)
	assert.Equal(t, 1, summary.Errors)
}

func TestProgressTracker(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressTracker(&buf, time.Hour)
	p.Record(types.ClassUnique)
	p.Record(types.ClassSimilarDuplicate)
	p.Record(types.ClassError)
	p.Stop()

	assert.Contains(t, buf.String(), "Progress: 3 images (unique: 1, exact: 0, similar: 1, errors: 1)")

	var nilTracker *ProgressTracker
	nilTracker.Record(types.ClassUnique)
	nilTracker.Stop()
}

func TestIDSchemes(t *testing.T) {
	seq, err := newIDGenerator(config.IDSequential)
	require.NoError(t, err)
	assert.Equal(t, seq(1), seq(1))
	assert.NotEqual(t, seq(1), seq(2))

	random, err := newIDGenerator(config.IDRandom)
	require.NoError(t, err)
	assert.NotEqual(t, random(1), random(1))
}

func TestExtensionOf(t *testing.T) {
	assert.Equal(t, ".png", extensionOf("folder/a.png"))
	assert.Equal(t, ".JPG", extensionOf("B.JPG"))
	assert.Equal(t, "", extensionOf("README"))
	assert.Equal(t, "", extensionOf(".hidden"))
	assert.Equal(t, ".jpeg", extensionOf(`dir\x.jpeg`))
}

package utils

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/zstd"
	gzip "github.com/klauspost/pgzip"
	"github.com/matryer/is"
)

func TestReadConfig(t *testing.T) {
	is := is.New(t)
	path := filepath.Join(t.TempDir(), "goctar.config")
	content := `# inputs
Accessibility: atac.tsv.gz
Expression: rna.tsv.gz
Pairs: pairs.tsv
OutputDir: results
Bins: 10
Controls: 500
Seed: 42
Mode: poisson
MinMean: 0.1
Binarize: true
Null: permutation
Stratify: true
Unknown: ignored
`
	is.NoErr(os.WriteFile(path, []byte(content), 0644))

	cfg, err := ReadConfig(path)
	is.NoErr(err)
	is.Equal(cfg.Accessibility, "atac.tsv.gz")
	is.Equal(cfg.OutputDir, "results")
	is.Equal(cfg.Bins, 10)
	is.Equal(cfg.Controls, 500)
	is.Equal(cfg.Seed, uint64(42))
	is.Equal(cfg.Mode, "poisson")
	is.Equal(cfg.MinMean, 0.1)
	is.True(cfg.Binarize)
	is.Equal(cfg.Null, "permutation")
	is.True(cfg.Stratify)
	is.True(cfg.Set["Controls"])
	is.True(!cfg.Set["Threads"])
}

func TestReadConfigBadValue(t *testing.T) {
	is := is.New(t)
	path := filepath.Join(t.TempDir(), "bad.config")
	is.NoErr(os.WriteFile(path, []byte("Controls: many\n"), 0644))
	_, err := ReadConfig(path)
	is.True(err != nil)
	is.True(strings.Contains(err.Error(), "Controls"))
}

func TestStageLogRoundTrip(t *testing.T) {
	is := is.New(t)
	logPath := filepath.Join(t.TempDir(), "goctar.log")
	logger, f, err := NewLogger(logPath, slog.LevelError)
	is.NoErr(err)

	LogStage(logger, "GOCTAR", "controls", "ALL", StatusStarted, "seed=1 B=200")
	LogStage(logger, "GOCTAR", "controls", "ALL", StatusCompleted, "seed=1 B=200")
	LogStage(logger, "GOCTAR", "score", "ALL", StatusStarted, "mode=corr")
	logger.Info("not a stage record", "peaks", 10)
	is.NoErr(f.Close())

	entries, err := ParseLogFile(logPath)
	is.NoErr(err)
	is.Equal(len(entries), 3)
	is.Equal(entries[0].Tool, "GOCTAR")
	is.True(StageHasCompleted(entries, "controls", "ALL", "seed=1 B=200"))
	is.True(!StageHasCompleted(entries, "controls", "ALL", "seed=2 B=200")) // other seed
	is.True(!StageHasCompleted(entries, "score", "ALL", "mode=corr"))      // started only
}

func TestParseLogFileMissing(t *testing.T) {
	is := is.New(t)
	entries, err := ParseLogFile(filepath.Join(t.TempDir(), "absent.log"))
	is.NoErr(err)
	is.Equal(len(entries), 0)
}

func TestOpenReaderCompressions(t *testing.T) {
	is := is.New(t)
	dir := t.TempDir()
	payload := []byte(">chr1\nACGT\n")

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, err := gw.Write(payload)
	is.NoErr(err)
	is.NoErr(gw.Close())

	var bz bytes.Buffer
	bw, err := bzip2.NewWriter(&bz, new(bzip2.WriterConfig))
	is.NoErr(err)
	_, err = bw.Write(payload)
	is.NoErr(err)
	is.NoErr(bw.Close())

	var zs bytes.Buffer
	zw, err := zstd.NewWriter(&zs)
	is.NoErr(err)
	_, err = zw.Write(payload)
	is.NoErr(err)
	is.NoErr(zw.Close())

	files := map[string][]byte{
		"plain.fa":     payload,
		"genome.fa.gz": gz.Bytes(),
		"genome.fa.bz2": bz.Bytes(),
		"genome.fa.zst": zs.Bytes(),
	}
	for name, data := range files {
		path := filepath.Join(dir, name)
		is.NoErr(os.WriteFile(path, data, 0644))
		rc, err := OpenReader(path)
		is.NoErr(err)
		got, err := io.ReadAll(rc)
		is.NoErr(err)
		is.NoErr(rc.Close())
		is.Equal(got, payload) // same content through every codec
	}
}

func TestCreateResultsDir(t *testing.T) {
	is := is.New(t)
	dir, err := CreateResultsDir(filepath.Join(t.TempDir(), "a", "b"))
	is.NoErr(err)
	is.True(filepath.IsAbs(dir))
	info, err := os.Stat(dir)
	is.NoErr(err)
	is.True(info.IsDir())
	is.True(!FileExists(dir))
}

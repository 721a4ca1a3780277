package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	archerrors "github.com/raoulx24/share-archiver/internal/errors"
	"github.com/raoulx24/share-archiver/internal/logging"
	"github.com/raoulx24/share-archiver/internal/source"
)

var allFormats = []Format{Zip, Tar, TarGzip, TarBzip2}

type readEntry struct {
	path    string
	data    string
	size    int64
	modTime time.Time
	dir     bool
}

func readBack(t *testing.T, format Format, data []byte) []readEntry {
	t.Helper()
	var out []readEntry

	if format == Zip {
		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		require.NoError(t, err)
		for _, f := range zr.File {
			rc, err := f.Open()
			require.NoError(t, err)
			body, err := io.ReadAll(rc)
			require.NoError(t, err)
			rc.Close()
			out = append(out, readEntry{
				path:    f.Name,
				data:    string(body),
				size:    int64(f.UncompressedSize64),
				modTime: f.Modified,
				dir:     f.FileInfo().IsDir(),
			})
		}
		return out
	}

	var r io.Reader = bytes.NewReader(data)
	switch format {
	case TarGzip:
		gz, err := gzip.NewReader(r)
		require.NoError(t, err)
		r = gz
	case TarBzip2:
		r = bzip2.NewReader(r)
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		body, err := io.ReadAll(tr)
		require.NoError(t, err)
		out = append(out, readEntry{
			path:    hdr.Name,
			data:    string(body),
			size:    hdr.Size,
			modTime: hdr.ModTime,
			dir:     hdr.Typeflag == tar.TypeDir,
		})
	}
	return out
}

func write(t *testing.T, format Format, entries []source.Entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := New(format, &buf, WithLogger(logging.ForTest(t)))
	require.NoError(t, err)
	for _, e := range entries {
		require.NoError(t, w.Add(context.Background(), e))
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func file(parents []string, name, content string, mod time.Time) source.Entry {
	return source.File(parents, name, int64(len(content)), mod, source.Bytes([]byte(content)))
}

func TestWriter_ScenarioTwoFiles(t *testing.T) {
	jan1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	jan2 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	entries := []source.Entry{
		file(nil, "a.txt", "hello", jan1),
		source.Dir([]string{"dir"}),
		file([]string{"dir"}, "b.txt", "abc", jan2),
	}

	for _, format := range allFormats {
		t.Run(format.String(), func(t *testing.T) {
			got := readBack(t, format, write(t, format, entries))

			require.Len(t, got, 3)
			assert.Equal(t, "a.txt", got[0].path)
			assert.Equal(t, int64(5), got[0].size)
			assert.Equal(t, "hello", got[0].data)
			assert.True(t, got[0].modTime.Equal(jan1), "got %v", got[0].modTime)

			assert.Equal(t, "dir/", got[1].path)
			assert.True(t, got[1].dir)
			assert.Empty(t, got[1].data)

			assert.Equal(t, "dir/b.txt", got[2].path)
			assert.Equal(t, int64(3), got[2].size)
			assert.Equal(t, "abc", got[2].data)
			assert.True(t, got[2].modTime.Equal(jan2), "got %v", got[2].modTime)

			var files []string
			for _, e := range got {
				if !e.dir {
					files = append(files, e.path)
				}
			}
			assert.Equal(t, []string{"a.txt", "dir/b.txt"}, files)
		})
	}
}

func TestWriter_RoundTripPreservesOrderAndContent(t *testing.T) {
	mod := time.Date(2023, 6, 15, 13, 14, 15, 0, time.UTC)
	big := strings.Repeat("0123456789abcdef", 20000)
	entries := []source.Entry{
		source.Dir([]string{"empty"}),
		source.Dir([]string{"x"}),
		file([]string{"x"}, "big.bin", big, mod),
		source.Dir([]string{"x", "y"}),
		file([]string{"x", "y"}, "zero.txt", "", mod),
		file(nil, "root.txt", "root", mod),
	}

	for _, format := range allFormats {
		t.Run(format.String(), func(t *testing.T) {
			got := readBack(t, format, write(t, format, entries))
			require.Len(t, got, len(entries))
			for i, e := range entries {
				assert.Equal(t, e.Path("/"), got[i].path)
				assert.Equal(t, e.IsDir(), got[i].dir)
				if !e.IsDir() {
					assert.Equal(t, e.Size, got[i].size)
					assert.Equal(t, e.Size, int64(len(got[i].data)))
				}
			}
			assert.Equal(t, big, got[2].data)
		})
	}
}

func TestWriter_FallbackModTime(t *testing.T) {
	for _, format := range allFormats {
		t.Run(format.String(), func(t *testing.T) {
			got := readBack(t, format, write(t, format, []source.Entry{file(nil, "a", "x", time.Time{})}))
			require.Len(t, got, 1)
			assert.True(t, got[0].modTime.Equal(FallbackModTime), "got %v", got[0].modTime)
		})
	}
}

func TestWriter_CloseTwiceIsByteIdentical(t *testing.T) {
	entries := []source.Entry{file(nil, "a.txt", "hello", time.Unix(1700000000, 0))}

	for _, format := range allFormats {
		t.Run(format.String(), func(t *testing.T) {
			var once, twice bytes.Buffer

			w1, err := New(format, &once)
			require.NoError(t, err)
			require.NoError(t, w1.Add(context.Background(), entries[0]))
			require.NoError(t, w1.Close())

			w2, err := New(format, &twice)
			require.NoError(t, err)
			require.NoError(t, w2.Add(context.Background(), entries[0]))
			require.NoError(t, w2.Close())
			require.NoError(t, w2.Close())

			assert.Equal(t, once.Bytes(), twice.Bytes())
		})
	}
}

func TestWriter_AddAfterClose(t *testing.T) {
	for _, format := range allFormats {
		t.Run(format.String(), func(t *testing.T) {
			w, err := New(format, io.Discard)
			require.NoError(t, err)
			require.NoError(t, w.Close())

			err = w.Add(context.Background(), file(nil, "late.txt", "x", time.Time{}))
			require.Error(t, err)
			assert.True(t, errors.Is(err, archerrors.ErrArchiveState))

			err = w.Add(context.Background(), source.Dir([]string{"d"}))
			assert.True(t, errors.Is(err, archerrors.ErrArchiveState))
		})
	}
}

func TestNew_UnsupportedFormat(t *testing.T) {
	for _, f := range []Format{0, Format(42)} {
		w, err := New(f, io.Discard)
		assert.Nil(t, w)
		assert.True(t, errors.Is(err, archerrors.ErrValidation))
	}
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{
		"zip":      Zip,
		"ZIP":      Zip,
		"tar":      Tar,
		"TarGZip":  TarGzip,
		"tar.gz":   TarGzip,
		"tgz":      TarGzip,
		"tarbzip2": TarBzip2,
		"tar.bz2":  TarBzip2,
	}
	for in, want := range tests {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "rar", "tar.xz", "7z"} {
		_, err := ParseFormat(bad)
		assert.True(t, errors.Is(err, archerrors.ErrValidation), bad)
	}
}

func TestFormat_Extension(t *testing.T) {
	assert.Equal(t, "zip", Zip.Extension())
	assert.Equal(t, "tar", Tar.Extension())
	assert.Equal(t, "tar.gz", TarGzip.Extension())
	assert.Equal(t, "tar.bz2", TarBzip2.Extension())
	assert.Empty(t, Format(9).Extension())
}

type countingSink struct {
	bytes.Buffer
	flushes int
}

func (c *countingSink) Flush() error {
	c.flushes++
	return nil
}

func TestWriter_FlushesSinkPerEntryAndOnClose(t *testing.T) {
	for _, format := range allFormats {
		t.Run(format.String(), func(t *testing.T) {
			sink := &countingSink{}
			w, err := New(format, sink)
			require.NoError(t, err)

			require.NoError(t, w.Add(context.Background(), source.Dir([]string{"d"})))
			require.NoError(t, w.Add(context.Background(), file([]string{"d"}, "f", "x", time.Time{})))
			assert.Equal(t, 2, sink.flushes)

			require.NoError(t, w.Close())
			require.NoError(t, w.Close())
			assert.Equal(t, 3, sink.flushes)
		})
	}
}

func TestTar_SizeMismatch(t *testing.T) {
	w, err := New(Tar, io.Discard)
	require.NoError(t, err)

	short := source.File(nil, "short", 10, time.Time{}, source.Bytes([]byte("abc")))
	assert.Error(t, w.Add(context.Background(), short))
}

func TestWriter_OpenError(t *testing.T) {
	boom := errors.New("download failed")
	e := source.File(nil, "f", 1, time.Time{}, func(context.Context) (io.ReadCloser, error) {
		return nil, boom
	})

	for _, format := range allFormats {
		w, err := New(format, io.Discard)
		require.NoError(t, err)
		err = w.Add(context.Background(), e)
		assert.True(t, errors.Is(err, boom), format.String())
	}
}

package yolo

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
)

// memEntry builds an entry over an in-memory string
func memEntry(p, content string) Entry {
	return NewEntry(p, int64(len(content)), func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(content)), nil
	})
}

func memEntries(files map[string]string) []Entry {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	entries := make([]Entry, 0, len(files))
	for _, p := range paths {
		entries = append(entries, memEntry(p, files[p]))
	}
	return entries
}

func sortedPaths(files map[string]string) []string {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func writeZip(t *testing.T, dir string, files map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, p := range sortedPaths(files) {
		w, err := zw.Create(p)
		require.NoError(t, err)
		_, err = w.Write([]byte(files[p]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	out := filepath.Join(dir, "dataset.zip")
	require.NoError(t, os.WriteFile(out, buf.Bytes(), 0644))
	return out
}

func tarBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, p := range sortedPaths(files) {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     p,
			Mode:     0644,
			Size:     int64(len(files[p])),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(files[p]))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func writeTarGz(t *testing.T, dir string, files map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write(tarBytes(t, files))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	out := filepath.Join(dir, "dataset.tar.gz")
	require.NoError(t, os.WriteFile(out, buf.Bytes(), 0644))
	return out
}

func readEntry(t *testing.T, e Entry) string {
	t.Helper()
	rc, err := e.Open()
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

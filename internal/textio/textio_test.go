package textio

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewReader(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
	}{
		{"plain", "VALUE\nR1\n"},
		{"utf8 bom", "\xef\xbb\xbfVALUE\nR1\n"},
		{"utf16le bom", "\xff\xfeV\x00A\x00L\x00U\x00E\x00\n\x00R\x001\x00\n\x00"},
		{"utf16be bom", "\xfe\xff\x00V\x00A\x00L\x00U\x00E\x00\n\x00R\x001\x00\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			b, err := io.ReadAll(NewReader(strings.NewReader(tc.in)))
			require.NoError(t, err)
			require.Equal(t, "VALUE\nR1\n", string(b))
		})
	}
}

func TestReadFileAndOpen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "REGION.csv")
	require.NoError(t, os.WriteFile(path, []byte("\xef\xbb\xbfVALUE\nR1\n"), 0o644))

	b, err := ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "VALUE\nR1\n", string(b))

	rc, err := Open(path)
	require.NoError(t, err)
	defer rc.Close()
	b, err = io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "VALUE\nR1\n", string(b))

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.csv"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestWriteFileAtomic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "model.txt")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	require.NoError(t, WriteFileAtomic(path, []byte("new")))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "new", string(b))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file left behind")

	require.Error(t, WriteFileAtomic(filepath.Join(dir, "missing", "x.txt"), []byte("x")))
}

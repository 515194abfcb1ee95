package images

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFingerprintIsStableAndContentSensitive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image.qcow2")
	require.NoError(t, os.WriteFile(path, []byte("alpine-base-image-bytes"), 0o644))

	fp1, err := Fingerprint(path)
	require.NoError(t, err)
	require.Len(t, fp1, 64) // hex-encoded sha256

	fp2, err := Fingerprint(path)
	require.NoError(t, err)
	require.Equal(t, fp1, fp2)

	fp3, err := FingerprintReader(strings.NewReader("alpine-base-image-bytes"))
	require.NoError(t, err)
	require.Equal(t, fp1, fp3)

	require.NoError(t, os.WriteFile(path, []byte("different-bytes"), 0o644))
	fp4, err := Fingerprint(path)
	require.NoError(t, err)
	require.NotEqual(t, fp1, fp4)
}

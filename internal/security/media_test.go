package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediadl/backend/internal/domain"
)

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestMediaInspector_Accepts(t *testing.T) {
	inspector := NewMediaInspector()

	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)
	mtype, err := inspector.Inspect(writeTemp(t, "thumb.png", png))
	require.NoError(t, err)
	assert.Equal(t, "image/png", mtype)

	mp3 := append([]byte("ID3\x03\x00\x00\x00\x00\x00\x00"), make([]byte, 64)...)
	mtype, err = inspector.Inspect(writeTemp(t, "song.mp3", mp3))
	require.NoError(t, err)
	assert.Equal(t, "audio/mpeg", mtype)
}

func TestMediaInspector_Rejects(t *testing.T) {
	inspector := NewMediaInspector()

	tests := []struct {
		name string
		file string
		data []byte
	}{
		{"dangerous extension", "video.exe", []byte("anything")},
		{"html page", "video.mp4", []byte("<!DOCTYPE html><html><body>login</body></html>")},
		{"elf binary", "audio.m4a", []byte{0x7F, 0x45, 0x4C, 0x46, 0x02, 0x01, 0x01, 0x00}},
		{"pe binary", "clip.mp4", []byte{0x4D, 0x5A, 0x90, 0x00, 0x03, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := inspector.Inspect(writeTemp(t, tt.file, tt.data))
			assert.ErrorIs(t, err, domain.ErrUnsafeMedia)
		})
	}
}

func TestMediaInspector_MissingFile(t *testing.T) {
	_, err := NewMediaInspector().Inspect(filepath.Join(t.TempDir(), "missing.mp4"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrUnsafeMedia)
}

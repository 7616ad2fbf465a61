package attachments

import (
	"encoding/base64"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"chathub/pkg/types"
)

func newTestStore(t *testing.T, maxBytes int64) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "files"), maxBytes, zaptest.NewLogger(t))
	require.NoError(t, err)
	return s
}

func encode(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestStore_SaveAndOpen(t *testing.T) {
	s := newTestStore(t, 1024)

	ref, err := s.Save(&types.FilePayload{Name: "../../notes.txt", Data: encode("hello world")})
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", ref.FileName)
	assert.Equal(t, int64(11), ref.FileSize)
	assert.True(t, strings.HasPrefix(ref.FileType, "text/plain"), ref.FileType)

	r, got, err := s.Open(ref.FileID)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, ref, got)

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestStore_AcceptsDataURL(t *testing.T) {
	s := newTestStore(t, 1024)

	png := "\x89PNG\r\n\x1a\n" + strings.Repeat("\x00", 16)
	ref, err := s.Save(&types.FilePayload{Name: "pic.png", Data: "data:image/png;base64," + encode(png)})
	require.NoError(t, err)
	assert.Equal(t, "image/png", ref.FileType)
}

func TestStore_Rejections(t *testing.T) {
	s := newTestStore(t, 8)

	_, err := s.Save(&types.FilePayload{Name: "big", Data: encode(strings.Repeat("x", 64))})
	assert.ErrorIs(t, err, ErrFileTooLarge)

	_, err = s.Save(&types.FilePayload{Name: "nine", Data: encode("123456789")})
	assert.ErrorIs(t, err, ErrFileTooLarge)

	_, err = s.Save(&types.FilePayload{Name: "bad", Data: "!!not base64!!"})
	assert.ErrorIs(t, err, ErrInvalidFileData)

	_, err = s.Save(&types.FilePayload{Name: "empty", Data: ""})
	assert.ErrorIs(t, err, ErrEmptyFile)

	entries, err := os.ReadDir(s.dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected payloads must not leave files behind")
}

func TestStore_OpenUnknown(t *testing.T) {
	s := newTestStore(t, 1024)

	_, _, err := s.Open("../../etc/passwd")
	assert.ErrorIs(t, err, ErrFileNotFound)

	_, _, err = s.Open("0b8e3c1e-5d3c-4c3e-9a57-3a3f1b2c4d5e")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestStore_Remove(t *testing.T) {
	s := newTestStore(t, 1024)
	ref, err := s.Save(&types.FilePayload{Name: "a.txt", Data: encode("abc")})
	require.NoError(t, err)

	require.NoError(t, s.Remove(ref.FileID))
	require.NoError(t, s.Remove(ref.FileID))
	_, _, err = s.Open(ref.FileID)
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestMarker_RoundTrip(t *testing.T) {
	ref := types.FileRef{FileName: "a.pdf", FileSize: 12, FileType: "application/pdf", FileID: "abc"}
	body := EncodeMarker(ref)
	assert.True(t, strings.HasPrefix(body, MarkerPrefix))

	got, ok := DecodeMarker(body)
	require.True(t, ok)
	assert.Equal(t, ref, got)

	_, ok = DecodeMarker("just text")
	assert.False(t, ok)
	_, ok = DecodeMarker(MarkerPrefix + "{not json")
	assert.False(t, ok)
}

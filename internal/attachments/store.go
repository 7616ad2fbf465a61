package attachments

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"chathub/pkg/types"
)

const (
	// DefaultMaxBytes is the decoded size ceiling for one attachment.
	DefaultMaxBytes int64 = 10 << 20

	maxNameLength = 255
	metaSuffix    = ".json"
)

// Store keeps attachment bytes on disk under opaque ids.
// ARCHITECTURAL DISCOVERY: bytes and metadata are written to temp files and
// renamed into place, so a reader never observes a half-written blob
type Store struct {
	dir      string
	maxBytes int64
	logger   *zap.Logger
}

// NewStore creates dir if needed.
func NewStore(dir string, maxBytes int64, logger *zap.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("attachment directory cannot be empty")
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create attachment directory: %w", err)
	}
	return &Store{dir: dir, maxBytes: maxBytes, logger: logger.With(zap.String("component", "attachments"))}, nil
}

// Save decodes payload and stores it, returning the reference to embed in a message.
// The encoded length is checked before decoding so oversized payloads are never
// materialized.
func (s *Store) Save(payload *types.FilePayload) (types.FileRef, error) {
	data := payload.Data
	if i := strings.Index(data, ";base64,"); strings.HasPrefix(data, "data:") && i >= 0 {
		data = data[i+len(";base64,"):]
	}
	if int64(base64.StdEncoding.DecodedLen(len(data))) > s.maxBytes+2 {
		return types.FileRef{}, ErrFileTooLarge
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return types.FileRef{}, ErrInvalidFileData
	}
	if int64(len(raw)) > s.maxBytes {
		return types.FileRef{}, ErrFileTooLarge
	}
	if len(raw) == 0 {
		return types.FileRef{}, ErrEmptyFile
	}

	ref := types.FileRef{
		FileName: cleanName(payload.Name),
		FileSize: int64(len(raw)),
		FileType: mimetype.Detect(raw).String(),
		FileID:   uuid.NewString(),
	}

	meta, err := json.Marshal(ref)
	if err != nil {
		return types.FileRef{}, err
	}
	if err := s.writeAtomic(ref.FileID, raw); err != nil {
		return types.FileRef{}, err
	}
	if err := s.writeAtomic(ref.FileID+metaSuffix, meta); err != nil {
		_ = os.Remove(filepath.Join(s.dir, ref.FileID))
		return types.FileRef{}, err
	}

	s.logger.Debug("attachment stored",
		zap.String("file_id", ref.FileID),
		zap.String("file_type", ref.FileType),
		zap.Int64("file_size", ref.FileSize))
	return ref, nil
}

// Open returns the stored bytes and their reference. The caller closes the reader.
func (s *Store) Open(fileID string) (io.ReadSeekCloser, types.FileRef, error) {
	if _, err := uuid.Parse(fileID); err != nil {
		return nil, types.FileRef{}, ErrFileNotFound
	}

	meta, err := os.ReadFile(filepath.Join(s.dir, fileID+metaSuffix))
	if os.IsNotExist(err) {
		return nil, types.FileRef{}, ErrFileNotFound
	}
	if err != nil {
		return nil, types.FileRef{}, fmt.Errorf("failed to read attachment metadata: %w", err)
	}
	var ref types.FileRef
	if err := json.Unmarshal(meta, &ref); err != nil {
		return nil, types.FileRef{}, fmt.Errorf("corrupt attachment metadata: %w", err)
	}

	f, err := os.Open(filepath.Join(s.dir, fileID))
	if os.IsNotExist(err) {
		return nil, types.FileRef{}, ErrFileNotFound
	}
	if err != nil {
		return nil, types.FileRef{}, fmt.Errorf("failed to open attachment: %w", err)
	}
	return f, ref, nil
}

// Remove deletes an attachment; a missing file is not an error.
func (s *Store) Remove(fileID string) error {
	if _, err := uuid.Parse(fileID); err != nil {
		return nil
	}
	for _, name := range []string{fileID, fileID + metaSuffix} {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func (s *Store) writeAtomic(name string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create attachment: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write attachment: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write attachment: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("failed to store attachment: %w", err)
	}
	return nil
}

func cleanName(name string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "file"
	}
	if len(name) > maxNameLength {
		name = name[:maxNameLength]
	}
	return name
}

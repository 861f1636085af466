package connectors

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"oscheck/internal"
	"oscheck/internal/storage"
)

// RawMailStore keeps raw messages on disk under their sha256 and records
// them as fetched. The same bytes fetched twice share one file.
type RawMailStore struct {
	db     *storage.DB
	dir    string
	logger *zap.Logger
}

func NewRawMailStore(db *storage.DB, dir string, logger *zap.Logger) *RawMailStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RawMailStore{db: db, dir: dir, logger: logger}
}

func (s *RawMailStore) Store(msg internal.FetchedMailMessage) (internal.EmailRow, error) {
	sum := sha256.Sum256(msg.Raw)
	hash := hex.EncodeToString(sum[:])
	rawPath := filepath.Join(s.dir, hash+".eml")

	written, err := s.writeOnce(rawPath, msg.Raw)
	if err != nil {
		return internal.EmailRow{}, err
	}
	log := s.logger.With(zap.String("provider", msg.Provider), zap.String("message_id", msg.MessageID), zap.String("hash", hash))
	if written {
		log.Debug("raw mail written", zap.Int("bytes", len(msg.Raw)))
	} else {
		log.Debug("raw mail already stored")
	}

	return s.db.UpsertEmail(msg.Provider, msg.MessageID, msg.Subject, msg.From, msg.ReceivedAt, hash, rawPath, "fetched")
}

// writeOnce creates path with content unless it exists. The content goes to
// a temporary file first so an interrupted write never leaves a partial .eml
// behind under the final name.
func (s *RawMailStore) writeOnce(path string, content []byte) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return false, err
	}

	tmp, err := os.CreateTemp(s.dir, ".incoming-*")
	if err != nil {
		return false, err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return false, err
	}
	if err := tmp.Close(); err != nil {
		return false, err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return false, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return false, err
	}
	return true, nil
}

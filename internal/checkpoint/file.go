package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ironsheep/image-integrity-mcp/internal/engine"
)

const (
	sessionPrefix = "session_"
	manifestName  = "session.cbor"
	recordsDir    = "records"
)

// Session describes one resumable scan.
type Session struct {
	ID        string    `cbor:"id" json:"id"`
	Root      string    `cbor:"root" json:"root"`
	Formats   []string  `cbor:"formats" json:"formats"`
	Recursive bool      `cbor:"recursive" json:"recursive"`
	Profile   string    `cbor:"profile" json:"profile"`
	Created   time.Time `cbor:"created" json:"created"`

	// Records is filled in by ListSessions and is not persisted.
	Records int `cbor:"-" json:"records"`
}

// FileStore keeps reports on disk under one session directory.
type FileStore struct {
	dir     string
	session Session
}

// OpenFileStore opens, creating if needed, the session directory for
// the given scan parameters under base. profile is the fingerprint of the
// analysis configuration the stored reports were produced with.
func OpenFileStore(base, root string, formats []string, recursive bool, profile string) (*FileStore, error) {
	id := SessionID(root, formats, recursive, profile)
	dir := filepath.Join(base, sessionPrefix+id)
	if err := os.MkdirAll(filepath.Join(dir, recordsDir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	s := &FileStore{dir: dir}
	manifest := filepath.Join(dir, manifestName)
	data, err := os.ReadFile(manifest)
	switch {
	case err == nil:
		if err := decMode.Unmarshal(data, &s.session); err != nil {
			return nil, fmt.Errorf("failed to read session manifest: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
		s.session = Session{
			ID:        id,
			Root:      root,
			Formats:   normalizeFormats(formats),
			Recursive: recursive,
			Profile:   profile,
			Created:   time.Now().UTC(),
		}
		data, err := encMode.Marshal(s.session)
		if err != nil {
			return nil, fmt.Errorf("failed to encode session manifest: %w", err)
		}
		if err := writeAtomic(manifest, data); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("failed to read session manifest: %w", err)
	}
	return s, nil
}

// Session returns the session the store belongs to.
func (s *FileStore) Session() Session { return s.session }

// Dir returns the session directory.
func (s *FileStore) Dir() string { return s.dir }

// Get loads the record for id. A missing, unreadable or mismatched
// record is reported as not found; only I/O errors other than absence are
// returned.
func (s *FileStore) Get(ctx context.Context, id engine.Identity) (*engine.Report, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(s.recordPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	rec, err := decodeRecord(data)
	if err != nil || rec.Version != recordVersion || rec.Report == nil || rec.Identity.Key() != id.Key() {
		return nil, false, nil
	}
	return rec.Report, true, nil
}

// Put writes the record for id.
func (s *FileStore) Put(ctx context.Context, id engine.Identity, rep *engine.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeRecord(id, rep)
	if err != nil {
		return err
	}
	return writeAtomic(s.recordPath(id), data)
}

// Len counts the stored records.
func (s *FileStore) Len() (int, error) {
	return countRecords(s.dir)
}

// Remove deletes the whole session directory.
func (s *FileStore) Remove() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}

func (s *FileStore) recordPath(id engine.Identity) string {
	return filepath.Join(s.dir, recordsDir, recordName(id))
}

// ListSessions returns the sessions found under base, newest first. A
// missing base directory yields no sessions.
func ListSessions(base string) ([]Session, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	var sessions []Session
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), sessionPrefix) {
			continue
		}
		dir := filepath.Join(base, e.Name())
		data, err := os.ReadFile(filepath.Join(dir, manifestName))
		if err != nil {
			continue
		}
		var sess Session
		if err := decMode.Unmarshal(data, &sess); err != nil {
			continue
		}
		sess.Records, _ = countRecords(dir)
		sessions = append(sessions, sess)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Created.After(sessions[j].Created)
	})
	return sessions, nil
}

func countRecords(dir string) (int, error) {
	entries, err := os.ReadDir(filepath.Join(dir, recordsDir))
	if err != nil {
		return 0, fmt.Errorf("failed to list records: %w", err)
	}
	n := 0
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".ckpt") {
			n++
		}
	}
	return n, nil
}

// writeAtomic writes data to a temporary file beside path and renames it
// over path.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("failed to commit checkpoint: %w", err)
	}
	return nil
}

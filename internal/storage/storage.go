package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/eddiefleurent/orb-agent/internal/models"
)

// FileStore is the JSON-file-backed Interface implementation, one
// subdirectory per object kind under root: trades/, account/, markers/,
// signals/, positions/. Account, marker and position checkpoints are
// written atomically (temp file + fsync + rename, with an EXDEV copy
// fallback); trades and signals are appended one fsynced JSON line at a
// time. The whole store shares one mutex since a
// single-process Orchestrator is the only writer.
type FileStore struct {
	root string
	mu   sync.Mutex
}

const (
	dirTrades    = "trades"
	dirAccount   = "account"
	dirMarkers   = "markers"
	dirSignals   = "signals"
	dirPositions = "positions"
)

// NewFileStore creates (if needed) root and its subdirectories and
// returns a ready Store.
func NewFileStore(root string) (*FileStore, error) {
	for _, sub := range []string{dirTrades, dirAccount, dirMarkers, dirSignals, dirPositions} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o700); err != nil {
			return nil, fmt.Errorf("creating storage dir %s: %w", sub, err)
		}
	}
	return &FileStore{root: root}, nil
}

func (f *FileStore) tradesPath(date string) string {
	return filepath.Join(f.root, dirTrades, date+".jsonlike")
}
func (f *FileStore) markerPath(date string) string {
	return filepath.Join(f.root, dirMarkers, date+".jsonlike")
}
func (f *FileStore) signalsPath(date string) string {
	return filepath.Join(f.root, dirSignals, date+".jsonlike")
}
func (f *FileStore) accountPath() string {
	return filepath.Join(f.root, dirAccount, "current.jsonlike")
}
func (f *FileStore) positionsPath() string {
	return filepath.Join(f.root, dirPositions, "current.jsonlike")
}

// AppendTrade appends one JSON line to date's trade stream, fsyncing
// before return so a crash immediately after does not lose the record.
func (f *FileStore) AppendTrade(date string, t models.ClosedTrade) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return appendJSONLine(f.tradesPath(date), t)
}

// Trades reads back every line of date's trade stream.
func (f *FileStore) Trades(date string) ([]models.ClosedTrade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.ClosedTrade
	err := readJSONLines(f.tradesPath(date), func(raw []byte) error {
		var t models.ClosedTrade
		if err := json.Unmarshal(raw, &t); err != nil {
			return err
		}
		out = append(out, t)
		return nil
	})
	return out, err
}

// LoadAccount reads the checkpointed account, reporting false if the
// checkpoint file has never been written.
func (f *FileStore) LoadAccount() (models.Account, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var a models.Account
	ok, err := readJSONFile(f.accountPath(), &a)
	return a, ok, err
}

// SaveAccount atomically checkpoints a.
func (f *FileStore) SaveAccount(a models.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return writeJSONFileAtomic(f.accountPath(), a)
}

// LoadMarker reads date's marker, returning a fresh empty one if it has
// never been saved (the common case on a brand new trading day).
func (f *FileStore) LoadMarker(date string) (*models.DailyMarker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	m := models.NewDailyMarker(date)
	ok, err := readJSONFile(f.markerPath(date), m)
	if err != nil {
		return nil, err
	}
	if !ok {
		return models.NewDailyMarker(date), nil
	}
	return m, nil
}

// SaveMarker atomically persists m under date.
func (f *FileStore) SaveMarker(date string, m *models.DailyMarker) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return writeJSONFileAtomic(f.markerPath(date), m)
}

// ArchiveSignals appends date's post-execution cohort as one JSON line per
// signal, matching the append-only shape of the trade stream.
func (f *FileStore) ArchiveSignals(date string, signals []ArchivedSignal) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, s := range signals {
		if err := appendJSONLine(f.signalsPath(date), s); err != nil {
			return err
		}
	}
	return nil
}

// Signals reads back date's archived cohort.
func (f *FileStore) Signals(date string) ([]ArchivedSignal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []ArchivedSignal
	err := readJSONLines(f.signalsPath(date), func(raw []byte) error {
		var s ArchivedSignal
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

// SavePositions atomically checkpoints the full open-position set. Called
// after every position-book mutation (new fill, trail update, close) so a
// crash mid-MONITORING loses at most the in-flight tick, not the whole
// day's book.
func (f *FileStore) SavePositions(positions []models.Position) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if positions == nil {
		positions = []models.Position{}
	}
	return writeJSONFileAtomic(f.positionsPath(), positions)
}

// LoadPositions reads back the last checkpointed open-position set. A
// missing checkpoint (first run, or a day with no positions ever opened)
// reports an empty slice, not an error.
func (f *FileStore) LoadPositions() ([]models.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.Position
	ok, err := readJSONFile(f.positionsPath(), &out)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []models.Position{}, nil
	}
	return out, nil
}

// appendJSONLine opens path for append (creating it if needed), writes v
// as one line of JSON, and fsyncs before closing.
func appendJSONLine(path string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	if _, err := file.Write(append(raw, '\n')); err != nil {
		return err
	}
	return file.Sync()
}

// readJSONLines calls fn with the raw bytes of each non-empty line of
// path. A missing file is not an error: it means nothing has been written
// yet.
func readJSONLines(path string, fn func([]byte) error) error {
	file, err := os.Open(path) // #nosec G304 -- path is built from a trusted date key, not user input
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// readJSONFile decodes path into v, reporting false (not an error) if the
// file does not exist yet.
func readJSONFile(path string, v interface{}) (bool, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- path is built from a trusted key, not user input
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if len(raw) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, err
	}
	return true, nil
}

// writeJSONFileAtomic writes v to path via a temp file in the same
// directory, fsync, then rename, so a reader never observes a partially
// written checkpoint. Falls back to a copy on EXDEV (temp dir on a
// different filesystem than path).
func writeJSONFileAtomic(path string, v interface{}) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanupTmp := true
	defer func() {
		if cleanupTmp {
			_ = os.Remove(tmpName)
		}
	}()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		var linkErr *os.LinkError
		if errors.As(err, &linkErr) && errors.Is(linkErr.Err, syscall.EXDEV) {
			if cerr := copyFile(tmpName, path); cerr != nil {
				return fmt.Errorf("copying across devices: %w", cerr)
			}
		} else {
			return fmt.Errorf("renaming checkpoint into place: %w", err)
		}
	}
	cleanupTmp = false

	return syncParentDir(dir)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) // #nosec G304 -- src is our own temp file
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

func syncParentDir(dir string) error {
	d, err := os.Open(dir) // #nosec G304 -- dir is derived from our own root path
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()
	return d.Sync()
}

var _ Interface = (*FileStore)(nil)

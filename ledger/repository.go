package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

var (
	ErrAccountNotFound = errors.New("account not found")

	// ErrVersionConflict is returned by Save when the stored account
	// changed since it was loaded.
	ErrVersionConflict = errors.New("account version conflict")
)

// Repository persists accounts keyed by id with an optimistic version
// check. Save stores acct only if the stored version still equals
// acct.Version (0 meaning "does not exist yet") and bumps acct.Version on
// success.
type Repository interface {
	Load(ctx context.Context, id string) (Account, error)
	Save(ctx context.Context, acct *Account) error
	Close() error
}

var validID = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

func checkID(id string) error {
	if !validID.MatchString(id) || id == "." || id == ".." {
		return fmt.Errorf("ledger: invalid account id %q", id)
	}
	return nil
}

// lockRetryDelay is how often Save polls a lock held by another process.
const lockRetryDelay = 5 * time.Millisecond

// FileRepository stores each account as <dir>/<id>.json. Writes go to a
// temp file in the same directory which is fsynced and renamed over the
// old one, so a reader never sees a partial record. The version check and
// the rename run under an exclusive flock on <dir>/<id>.lock, which
// serializes writers across processes sharing the directory.
type FileRepository struct {
	dir string
	mu  sync.Mutex
}

func NewFileRepository(dir string) (*FileRepository, error) {
	if dir == "" {
		return nil, errors.New("ledger: empty data dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ledger: create data dir: %w", err)
	}
	return &FileRepository{dir: dir}, nil
}

// Path returns the file backing account id.
func (r *FileRepository) Path(id string) string {
	return filepath.Join(r.dir, id+".json")
}

func (r *FileRepository) lockPath(id string) string {
	return filepath.Join(r.dir, id+".lock")
}

func (r *FileRepository) Load(ctx context.Context, id string) (Account, error) {
	if err := checkID(id); err != nil {
		return Account{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(id)
}

func (r *FileRepository) load(id string) (Account, error) {
	data, err := os.ReadFile(r.Path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
		}
		return Account{}, err
	}

	var acct Account
	if err := json.Unmarshal(data, &acct); err != nil {
		// A corrupt file is reported, never silently reset.
		return Account{}, fmt.Errorf("ledger: decode %s: %w", r.Path(id), err)
	}
	return acct, nil
}

func (r *FileRepository) Save(ctx context.Context, acct *Account) error {
	if err := checkID(acct.ID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	lock := flock.New(r.lockPath(acct.ID))
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("ledger: lock %s: %w", acct.ID, err)
	}
	if !locked {
		return fmt.Errorf("ledger: lock %s: not acquired", acct.ID)
	}
	defer lock.Unlock()

	var stored int64
	cur, err := r.load(acct.ID)
	switch {
	case err == nil:
		stored = cur.Version
	case errors.Is(err, ErrAccountNotFound):
		stored = 0
	default:
		return err
	}
	if stored != acct.Version {
		return fmt.Errorf("%w: %s stored=%d loaded=%d", ErrVersionConflict, acct.ID, stored, acct.Version)
	}

	next := *acct
	next.Version++
	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return err
	}
	if err := writeFileAtomic(r.Path(acct.ID), data); err != nil {
		return err
	}

	acct.Version = next.Version
	return nil
}

func (r *FileRepository) Close() error { return nil }

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	defer os.Remove(name) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(name, 0o644); err != nil {
		return err
	}
	return os.Rename(name, path)
}

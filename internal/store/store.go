// Package store persists the calendar state as a single JSON file.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/autoclaim/autoclaim/internal/models"
)

// DefaultFilename is the state file name used when none is configured.
const DefaultFilename = "calendar_data.json"

// CorruptStateError reports a state file that exists but cannot be parsed.
// The caller decides whether to start fresh or abort.
type CorruptStateError struct {
	Path string
	Err  error
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("corrupt state file %s: %v", e.Path, e.Err)
}

func (e *CorruptStateError) Unwrap() error {
	return e.Err
}

// WriteError reports a failed save. The previous file content is intact.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write state file %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Load reads the store from path. A missing file yields an empty store.
func Load(path string) (*models.Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.NewStore(), nil
		}
		return nil, fmt.Errorf("reading state file %s: %w", path, err)
	}

	st, err := Decode(data)
	if err != nil {
		return nil, &CorruptStateError{Path: path, Err: err}
	}
	return st, nil
}

// Decode parses a serialized store and checks its invariants.
func Decode(data []byte) (*models.Store, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("empty file")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var st models.Store
	if err := dec.Decode(&st); err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after state document")
	}
	if st.Version > models.StoreVersion {
		return nil, fmt.Errorf("unsupported version %d", st.Version)
	}
	st.Normalize()

	if err := checkInvariants(&st); err != nil {
		return nil, err
	}
	return &st, nil
}

func checkInvariants(st *models.Store) error {
	seen := make(map[string]string)
	for key, rec := range st.Periods {
		period, err := models.ParsePeriod(key)
		if err != nil {
			return err
		}
		for _, a := range rec.Activities {
			if a.ID == "" {
				return fmt.Errorf("period %s: activity without id", key)
			}
			if other, dup := seen[a.ID]; dup {
				return fmt.Errorf("activity %s appears in %s and %s", a.ID, other, key)
			}
			seen[a.ID] = key
			if !a.ClaimStatus.Valid() {
				return fmt.Errorf("activity %s: unknown claim status %q", a.ID, a.ClaimStatus)
			}
			if !period.Contains(a.Date) {
				return fmt.Errorf("activity %s: date %q outside period %s", a.ID, a.Date, key)
			}
		}
	}

	coupons := make(map[string]struct{}, len(st.Coupons))
	for _, c := range st.Coupons {
		if _, dup := coupons[c.CouponID]; dup {
			return fmt.Errorf("coupon %s stored twice", c.CouponID)
		}
		coupons[c.CouponID] = struct{}{}
	}
	return nil
}

// Encode serializes the store deterministically: map keys sorted by
// encoding/json, activities in ID order, two-space indent, trailing newline.
func Encode(st *models.Store) ([]byte, error) {
	out := st.Clone()
	out.Normalize()

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling store: %w", err)
	}
	return append(data, '\n'), nil
}

// Save writes the full store to path via a temp file and rename, so a crash
// mid-write never leaves a half-written file behind.
func Save(path string, st *models.Store) error {
	data, err := Encode(st)
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}
	if err := WriteFileAtomic(path, data, 0o644); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	return nil
}

// WriteFileAtomic replaces path with data using a sibling temp file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	committed = true
	return nil
}

// Quarantine moves an unreadable state file aside so a fresh store can be
// started without destroying the evidence. It returns the new location.
func Quarantine(path string, now time.Time) (string, error) {
	backup := fmt.Sprintf("%s.corrupt-%s", path, now.Format("20060102-150405"))
	if err := os.Rename(path, backup); err != nil {
		return "", fmt.Errorf("moving corrupt state aside: %w", err)
	}
	return backup, nil
}

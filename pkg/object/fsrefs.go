package object

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var ErrRefsUpdatedButReflogAppendFailed = errors.New("refs updated but reflog append failed")

const (
	refsLockRetryDelay = 5 * time.Millisecond
	refsLockWaitLimit  = 2 * time.Second

	zeroHashLine = "0000000000000000000000000000000000000000000000000000000000000000"
)

// Refs lists all references under root/refs. Names are returned with their
// full path, e.g. "refs/heads/main".
func (s *FSStore) Refs() (map[string]Hash, error) {
	root := filepath.Join(s.root, "refs")

	refs := make(map[string]Hash)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || strings.HasSuffix(d.Name(), ".lock") {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		refs[filepath.ToSlash(rel)] = Hash(strings.TrimSpace(string(data)))
		return nil
	})
	if os.IsNotExist(err) {
		return refs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	return refs, nil
}

// UpdateRef applies a single compare-and-swap.
func (s *FSStore) UpdateRef(name string, old, new Hash) error {
	return s.UpdateRefs([]RefUpdate{{Name: name, Old: old, New: new}})
}

// DeleteRef removes a ref after a compare-and-swap on its current value.
func (s *FSStore) DeleteRef(name string, old Hash) error {
	return s.UpdateRefs([]RefUpdate{{Name: name, Old: old, New: ""}})
}

// UpdateRefs applies the batch as one transaction under the store-wide
// refs.lock: every compare-and-swap is checked against the current ref
// files before the first write, so a conflict aborts with nothing applied.
// An I/O failure mid-apply is reported but already-written refs stay
// written; callers recover from the reflog and backup refs.
//
// Reflog append happens after the ref renames; if an append fails, the ref
// updates remain committed and the error wraps
// ErrRefsUpdatedButReflogAppendFailed.
func (s *FSStore) UpdateRefs(updates []RefUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(updates))
	for _, u := range updates {
		if err := validateRefName(u.Name); err != nil {
			return err
		}
		if seen[u.Name] {
			return fmt.Errorf("update refs: duplicate ref %q in batch", u.Name)
		}
		seen[u.Name] = true
	}

	lockPath := filepath.Join(s.root, "refs.lock")
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("update refs: mkdir: %w", err)
	}
	lockFile, err := acquireLockFile(lockPath)
	if err != nil {
		return fmt.Errorf("update refs: lock: %w", err)
	}
	defer func() {
		_ = lockFile.Close()
		_ = os.Remove(lockPath)
	}()

	// Check every precondition before writing anything.
	olds := make([]Hash, len(updates))
	for i, u := range updates {
		found, err := readRefHash(s.refPath(u.Name))
		if err != nil {
			return fmt.Errorf("update ref %q: read old hash: %w", u.Name, err)
		}
		if found != u.Old {
			return &RefConflictError{Ref: u.Name, Want: u.Old, Found: found}
		}
		olds[i] = found
	}

	// Apply. Each ref lands via temp + rename so readers never observe a
	// half-written file.
	for _, u := range updates {
		if u.New == "" {
			if err := os.Remove(s.refPath(u.Name)); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("delete ref %q: %w", u.Name, err)
			}
			continue
		}
		if err := s.writeRefFile(u.Name, u.New); err != nil {
			return err
		}
	}

	var reflogErr error
	for i, u := range updates {
		reason := u.Reason
		if strings.TrimSpace(reason) == "" {
			reason = "update"
		}
		if err := s.appendReflog(u.Name, olds[i], u.New, reason); err != nil && reflogErr == nil {
			reflogErr = fmt.Errorf("ref %q: %w: %w", u.Name, ErrRefsUpdatedButReflogAppendFailed, err)
		}
	}
	return reflogErr
}

func (s *FSStore) refPath(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name))
}

// validateRefName rejects names that would escape the refs/ namespace or
// collide with lock files.
func validateRefName(name string) error {
	if !strings.HasPrefix(name, "refs/") || strings.HasSuffix(name, "/") {
		return fmt.Errorf("invalid ref name %q", name)
	}
	if strings.HasSuffix(name, ".lock") || strings.Contains(name, "\\") {
		return fmt.Errorf("invalid ref name %q", name)
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("invalid ref name %q", name)
		}
	}
	return nil
}

func (s *FSStore) writeRefFile(name string, h Hash) error {
	refPath := s.refPath(name)
	dir := filepath.Dir(refPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("update ref %q: mkdir: %w", name, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("update ref %q: tmpfile: %w", name, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(string(h) + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("update ref %q: write: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("update ref %q: sync: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("update ref %q: close: %w", name, err)
	}

	if err := os.Rename(tmpName, refPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("update ref %q: rename: %w", name, err)
	}
	return nil
}

func acquireLockFile(lockPath string) (*os.File, error) {
	deadline := time.Now().Add(refsLockWaitLimit)
	for {
		f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, nil
		}
		if os.IsExist(err) {
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("timeout waiting for lock %q", lockPath)
			}
			time.Sleep(refsLockRetryDelay)
			continue
		}
		return nil, err
	}
}

func readRefHash(refPath string) (Hash, error) {
	data, err := os.ReadFile(refPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return Hash(strings.TrimSpace(string(data))), nil
}

// ---------------------------------------------------------------------------
// Reflog
// ---------------------------------------------------------------------------

// ReflogEntry is one line of a ref's history: "old new unix-ts reason".
type ReflogEntry struct {
	Ref       string
	OldHash   Hash
	NewHash   Hash
	Timestamp int64
	Reason    string
}

func (s *FSStore) appendReflog(ref string, oldHash, newHash Hash, reason string) error {
	logPath := filepath.Join(s.root, "logs", filepath.FromSlash(ref))
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("reflog mkdir: %w", err)
	}

	old := string(oldHash)
	if old == "" {
		old = zeroHashLine
	}
	newVal := string(newHash)
	if newVal == "" {
		newVal = zeroHashLine
	}
	line := fmt.Sprintf("%s %s %d %s\n", old, newVal, time.Now().Unix(), reason)

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("reflog open: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("reflog write: %w", err)
	}
	return nil
}

// ReadReflog returns the newest-first history of a ref. A missing reflog is
// not an error.
func (s *FSStore) ReadReflog(ref string, limit int) ([]ReflogEntry, error) {
	if err := validateRefName(ref); err != nil {
		return nil, err
	}

	logPath := filepath.Join(s.root, "logs", filepath.FromSlash(ref))
	f, err := os.Open(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read reflog: %w", err)
	}
	defer f.Close()

	var entries []ReflogEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, " ", 4)
		if len(parts) < 4 {
			continue
		}
		ts, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			continue
		}
		entry := ReflogEntry{
			Ref:       ref,
			OldHash:   Hash(parts[0]),
			NewHash:   Hash(parts[1]),
			Timestamp: ts,
			Reason:    parts[3],
		}
		if entry.OldHash == zeroHashLine {
			entry.OldHash = ""
		}
		if entry.NewHash == zeroHashLine {
			entry.NewHash = ""
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read reflog: %w", err)
	}

	// Newest first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// OwnerConfig holds the UID/GID applied to written results. A GID of -1
// leaves the group unchanged.
type OwnerConfig struct {
	UID int
	GID int
}

// ParseOwner parses "UID:GID" or "UID". Returns nil if empty.
func ParseOwner(owner string) (*OwnerConfig, error) {
	if owner == "" {
		return nil, nil
	}

	uidStr, gidStr, hasGID := strings.Cut(owner, ":")

	uid, err := strconv.Atoi(uidStr)
	if err != nil || uid < 0 {
		return nil, fmt.Errorf("invalid UID %q in owner %q, expected UID[:GID]", uidStr, owner)
	}

	gid := -1

	if hasGID {
		gid, err = strconv.Atoi(gidStr)
		if err != nil || gid < 0 {
			return nil, fmt.Errorf("invalid GID %q in owner %q, expected UID[:GID]", gidStr, owner)
		}
	}

	return &OwnerConfig{UID: uid, GID: gid}, nil
}

// String returns the owner in UID[:GID] form.
func (o *OwnerConfig) String() string {
	if o.GID < 0 {
		return strconv.Itoa(o.UID)
	}

	return fmt.Sprintf("%d:%d", o.UID, o.GID)
}

// Chown sets ownership if owner is not nil. Best-effort, ignores errors.
func Chown(path string, owner *OwnerConfig) {
	if owner == nil {
		return
	}

	_ = os.Chown(path, owner.UID, owner.GID)
}

// MkdirAll creates path and any missing parents, applying ownership to
// every directory it created.
func MkdirAll(path string, perm os.FileMode, owner *OwnerConfig) error {
	var created []string

	for dir := filepath.Clean(path); ; dir = filepath.Dir(dir) {
		if _, err := os.Stat(dir); err == nil {
			break
		}

		created = append(created, dir)

		if parent := filepath.Dir(dir); parent == dir {
			break
		}
	}

	if err := os.MkdirAll(path, perm); err != nil {
		return err
	}

	for _, dir := range created {
		Chown(dir, owner)
	}

	return nil
}

// WriteFile writes data to a temporary file next to path and renames it into
// place, so readers never observe a partially written file.
func WriteFile(path string, data []byte, perm os.FileMode, owner *OwnerConfig) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return err
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)

		return err
	}

	if err := os.Chmod(tmpName, perm); err != nil {
		_ = os.Remove(tmpName)

		return err
	}

	Chown(tmpName, owner)

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)

		return err
	}

	return nil
}

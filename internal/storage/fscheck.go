package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// remoteFilesystems lists filesystem types whose locking SQLite cannot trust.
var remoteFilesystems = map[string]struct{}{
	"nfs":    {},
	"cifs":   {},
	"smbfs":  {},
	"smb2":   {},
	"fuse":   {},
	"9p":     {},
	"webdav": {},
}

type fsDetector func(path string) (string, error)

// CheckLocalFilesystem refuses database paths on remote filesystems.
func CheckLocalFilesystem(path string) error {
	return checkLocalFilesystem(path, filesystemType)
}

func checkLocalFilesystem(path string, detect fsDetector) error {
	if path == "" {
		return fmt.Errorf("sqlite path is empty")
	}

	existing, err := closestExistingAncestor(path)
	if err != nil {
		return fmt.Errorf("resolve database path %q: %w", path, err)
	}

	fsType, err := detect(existing)
	if err != nil {
		return fmt.Errorf("detect filesystem for %q: %w", existing, err)
	}
	if isRemoteFilesystem(fsType) {
		return fmt.Errorf("database path %q is on %s; SQLite needs a local filesystem for locking.\n"+
			"Hint: point link.sqlite.path at local disk", path, fsType)
	}
	return nil
}

// closestExistingAncestor walks up from path until it finds something that exists.
func closestExistingAncestor(path string) (string, error) {
	candidate, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		_, err := os.Stat(candidate)
		switch {
		case err == nil:
			return candidate, nil
		case !errors.Is(err, os.ErrNotExist):
			return "", err
		}
		parent := filepath.Dir(candidate)
		if parent == candidate {
			return "", fmt.Errorf("no existing ancestor")
		}
		candidate = parent
	}
}

func isRemoteFilesystem(fsType string) bool {
	_, ok := remoteFilesystems[strings.ToLower(strings.TrimSpace(fsType))]
	return ok
}

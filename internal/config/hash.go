package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"
)

// ErrChecksumMismatch is returned when a config file no longer matches its sidecar.
var ErrChecksumMismatch = errors.New("config checksum mismatch")

const checksumPrefix = "blake3:"

// ChecksumPath returns the sidecar path holding the checksum of configPath.
func ChecksumPath(configPath string) string {
	return configPath + ".b3"
}

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// WriteChecksum records the current hash of configPath in its sidecar.
func WriteChecksum(configPath string) (string, error) {
	hash, err := ComputeBlake3Hash(configPath)
	if err != nil {
		return "", err
	}
	line := fmt.Sprintf("%s%s  %s\n", checksumPrefix, hash, filepath.Base(configPath))
	if err := os.WriteFile(ChecksumPath(configPath), []byte(line), 0o644); err != nil {
		return "", fmt.Errorf("write checksum: %w", err)
	}
	return hash, nil
}

// VerifyChecksum checks configPath against its sidecar. A missing sidecar is
// not an error: integrity checking is opt-in via WriteChecksum.
func VerifyChecksum(configPath string) error {
	data, err := os.ReadFile(ChecksumPath(configPath))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read checksum: %w", err)
	}

	fields := strings.Fields(string(data))
	if len(fields) == 0 || !strings.HasPrefix(fields[0], checksumPrefix) {
		return fmt.Errorf("malformed checksum file %s", ChecksumPath(configPath))
	}
	expected := strings.TrimPrefix(fields[0], checksumPrefix)

	actual, err := ComputeBlake3Hash(configPath)
	if err != nil {
		return fmt.Errorf("failed to compute hash: %w", err)
	}
	if actual != expected {
		return fmt.Errorf("%w for %s: expected %s, got %s\n"+
			"Hint: run 'kairoi config lock' after reviewing the change",
			ErrChecksumMismatch, filepath.Base(configPath), expected, actual)
	}
	return nil
}

package session

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// repoHash returns a deterministic 16-char hex hash of the absolute repo
// path, mirroring the teacher's project-isolation scheme so unrelated
// checkouts never collide in the shared local cache directory.
func repoHash(repoPath string) string {
	abs, err := filepath.Abs(repoPath)
	if err != nil {
		abs = repoPath
	}
	h := sha256.Sum256([]byte(filepath.Clean(abs)))
	return hex.EncodeToString(h[:])[:16]
}

// CacheDir returns ~/.forge/projects/<hash>, the local (not git-committed)
// cache root for a given repository checkout. It holds the summary cache
// and the daily cost cache — both content-addressed or host-local data
// that does not belong in the branch-scoped session record.
func CacheDir(repoPath string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".forge", "projects", repoHash(repoPath)), nil
}

// atomicWriteFile writes data to path via a temp-file-then-rename so a
// crash mid-write never leaves a truncated cache file behind.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

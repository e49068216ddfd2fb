package config

import (
	"encoding/json"
	"fmt"

	"github.com/forgehq/forge/internal/vfs"
)

// RepoConfigPath is where the per-branch repo config lives in the overlay.
const RepoConfigPath = ".forge/config.json"

// RepoConfig is the per-branch config committed alongside the code it
// governs, currently just the summary exclusion pattern list.
type RepoConfig struct {
	SummaryExclusions []string `json:"summary_exclusions,omitempty"`
}

// LoadRepoConfig reads .forge/config.json through the overlay. A missing
// file resolves to an empty RepoConfig rather than an error, since most
// branches carry no repo config at all.
func LoadRepoConfig(fs *vfs.OverlayVFS) (RepoConfig, error) {
	data, err := fs.Read(RepoConfigPath)
	if err != nil {
		return RepoConfig{}, nil
	}
	var cfg RepoConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return RepoConfig{}, fmt.Errorf("config: parse %s: %w", RepoConfigPath, err)
	}
	return cfg, nil
}

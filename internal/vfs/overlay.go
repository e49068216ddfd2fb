package vfs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"

	"github.com/forgehq/forge/internal/gitstore"
)

// OwnerToken is an opaque capability representing "the calling context"
// for thread-ownership checks. Go has no portable way to introspect a
// goroutine's identity, so callers that intend to claim an overlay mint one
// token with NewOwnerToken and thread it through every mutating or listing
// call they make, the way a lock guard would be threaded through in a
// language with real thread IDs.
type OwnerToken uint64

var tokenCounter uint64

// NewOwnerToken mints a fresh, never-reused ownership token.
func NewOwnerToken() OwnerToken {
	return OwnerToken(atomic.AddUint64(&tokenCounter, 1))
}

// OverlayVFS is a writable overlay over a BaseVFS: pending writes and
// tombstones accumulate in memory until Commit flushes them as a single
// git commit.
type OverlayVFS struct {
	base       *BaseVFS
	store      *gitstore.Store
	branch     string
	pending    map[string][]byte
	tombstones map[string]bool
	owner      OwnerToken // zero value means unowned
}

// NewOverlayVFS constructs an overlay with no pending writes or tombstones,
// positioned over base and backed by store for commits against branch.
func NewOverlayVFS(base *BaseVFS, store *gitstore.Store, branch string) *OverlayVFS {
	return &OverlayVFS{
		base:       base,
		store:      store,
		branch:     branch,
		pending:    make(map[string][]byte),
		tombstones: make(map[string]bool),
	}
}

// Base returns the overlay's current read-only base.
func (o *OverlayVFS) Base() *BaseVFS {
	return o.base
}

// ErrThreadOwned identifies a thread-ownership violation. Per spec this is
// a programming error, not a runtime failure: callers never receive it as
// a returned error, only wrapped inside the panic value, so a recovering
// test harness can still distinguish it from an unrelated panic via
// errors.Is/errors.As.
var ErrThreadOwned = fmt.Errorf("vfs: thread-ownership violation")

// assertOwnership panics if the overlay is owned by a different token than
// tok. An unowned overlay (owner == 0) never panics: claiming is optional
// for single-threaded callers, required only when a background goroutine
// might race with the claimant.
func (o *OverlayVFS) assertOwnership(tok OwnerToken) {
	if o.owner != 0 && o.owner != tok {
		panic(fmt.Errorf("%w: overlay owned by token %d, called by %d", ErrThreadOwned, o.owner, tok))
	}
}

// ClaimThread sets tok as the overlay's sole owner. Claiming while already
// owned by a different token is a bug, not a recoverable condition.
func (o *OverlayVFS) ClaimThread(tok OwnerToken) {
	if o.owner != 0 && o.owner != tok {
		panic(fmt.Errorf("%w: claim_thread: overlay already owned by token %d", ErrThreadOwned, o.owner))
	}
	o.owner = tok
}

// ReleaseThread clears ownership. Releasing from a non-owning token is a
// bug.
func (o *OverlayVFS) ReleaseThread(tok OwnerToken) {
	if o.owner != 0 && o.owner != tok {
		panic(fmt.Errorf("%w: release_thread: overlay owned by token %d, not %d", ErrThreadOwned, o.owner, tok))
	}
	o.owner = 0
}

// Read resolves path: tombstoned -> not found; pending -> pending content;
// else base content. A pure function of (base, pending, tombstones); never
// touches the working directory, and carries no ownership check since it
// mutates nothing.
func (o *OverlayVFS) Read(path string) ([]byte, error) {
	if o.tombstones[path] {
		return nil, fmt.Errorf("vfs: %s: not found", path)
	}
	if data, ok := o.pending[path]; ok {
		return append([]byte(nil), data...), nil
	}
	return o.base.Read(path)
}

// List returns every visible path: (base files ∪ pending) − tombstones, in
// sorted order.
func (o *OverlayVFS) List(tok OwnerToken) ([]string, error) {
	o.assertOwnership(tok)
	baseFiles, err := o.base.ListAllFiles()
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(baseFiles)+len(o.pending))
	for _, p := range baseFiles {
		set[p] = true
	}
	for p := range o.pending {
		set[p] = true
	}
	for p := range o.tombstones {
		delete(set, p)
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

// Write stages content for path, clearing any tombstone for it.
func (o *OverlayVFS) Write(tok OwnerToken, path string, content []byte) {
	o.assertOwnership(tok)
	delete(o.tombstones, path)
	o.pending[path] = append([]byte(nil), content...)
}

// Delete drops any pending write for path and marks it tombstoned.
func (o *OverlayVFS) Delete(tok OwnerToken, path string) {
	o.assertOwnership(tok)
	delete(o.pending, path)
	o.tombstones[path] = true
}

// HasPendingChanges reports whether there is anything for Commit to do.
func (o *OverlayVFS) HasPendingChanges() bool {
	return len(o.pending) > 0 || len(o.tombstones) > 0
}

// PendingPaths returns every path with a staged write or tombstone, for
// callers that need to classify a pending commit (e.g. SessionRunner's
// Major/Prepare/FollowUp decision) before Commit flushes them.
func (o *OverlayVFS) PendingPaths(tok OwnerToken) []string {
	o.assertOwnership(tok)
	out := make([]string, 0, len(o.pending)+len(o.tombstones))
	for p := range o.pending {
		out = append(out, p)
	}
	for p := range o.tombstones {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// DiscardPending drops every staged write and tombstone without
// committing them, for cancellation (spec §4.7): the overlay returns to
// exactly its pre-turn state.
func (o *OverlayVFS) DiscardPending(tok OwnerToken) {
	o.assertOwnership(tok)
	o.pending = make(map[string][]byte)
	o.tombstones = make(map[string]bool)
}

// MaterializeToTempdir writes every currently-visible file (reading through
// the overlay) into a fresh temp directory and returns its root. The
// caller owns cleanup.
func (o *OverlayVFS) MaterializeToTempdir(tok OwnerToken) (string, error) {
	paths, err := o.List(tok)
	if err != nil {
		return "", err
	}
	dir, err := os.MkdirTemp("", "forge-overlay-*")
	if err != nil {
		return "", fmt.Errorf("vfs: materialize_to_tempdir: %w", err)
	}
	for _, p := range paths {
		data, err := o.Read(p)
		if err != nil {
			return "", fmt.Errorf("vfs: materialize_to_tempdir: read %s: %w", p, err)
		}
		dest := filepath.Join(dir, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return "", fmt.Errorf("vfs: materialize_to_tempdir: mkdir for %s: %w", p, err)
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return "", fmt.Errorf("vfs: materialize_to_tempdir: write %s: %w", p, err)
		}
	}
	return dir, nil
}

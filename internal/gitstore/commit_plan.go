package gitstore

import (
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Apply performs the classify-then-write step described by CommitPolicy:
// it reads the branch's current head, classifies the requested commit
// against it, and writes whatever git objects that classification implies,
// moving the branch ref to the result. It returns the new head hash.
func (s *Store) Apply(branch string, requestedType Type, requestedMessage string, tree plumbing.Hash, author, committer Signature) (plumbing.Hash, error) {
	head, err := s.BranchHead(branch)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	headCommit, err := s.Commit(head.Hash)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	parentType, parentMessage := Parse(headCommit.Message)
	decision := Decide(parentType, parentMessage, requestedType, requestedMessage)

	switch decision.Kind {
	case DecisionAmendParent:
		msg := Format(parentType, decision.Message)
		return s.CreateCommit(headCommit.ParentHashes, tree, msg, author, committer, branch)

	case DecisionAbsorbPrepareRun:
		ancestor, err := s.walkPastPrepareChain(headCommit)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		var parents []plumbing.Hash
		if ancestor != plumbing.ZeroHash {
			parents = []plumbing.Hash{ancestor}
		}
		msg := Format(Major, decision.Message)
		return s.CreateCommit(parents, tree, msg, author, committer, branch)

	default: // DecisionEmit
		msg := Format(requestedType, decision.Message)
		return s.CreateCommit([]plumbing.Hash{head.Hash}, tree, msg, author, committer, branch)
	}
}

// walkPastPrepareChain follows first-parent links back from head while each
// ancestor is a Prepare commit, returning the hash of the first non-Prepare
// ancestor encountered (or the zero hash if the chain reaches the root).
func (s *Store) walkPastPrepareChain(head *object.Commit) (plumbing.Hash, error) {
	current := head
	for {
		t, _ := Parse(current.Message)
		if t != Prepare {
			return current.Hash, nil
		}
		if len(current.ParentHashes) == 0 {
			return plumbing.ZeroHash, nil
		}
		next, err := s.Commit(current.ParentHashes[0])
		if err != nil {
			return plumbing.ZeroHash, err
		}
		current = next
	}
}

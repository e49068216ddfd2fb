package gitstore

import "strings"

// Type is the commit-type tag encoded as a literal subject-line prefix.
type Type int

const (
	Major Type = iota
	Prepare
	FollowUp
)

func (t Type) String() string {
	switch t {
	case Prepare:
		return "prepare"
	case FollowUp:
		return "follow-up"
	default:
		return "major"
	}
}

const (
	prefixPrepare  = "[prepare] "
	prefixFollowUp = "[follow-up] "
)

// Parse extracts the commit type from a subject line. An unrecognized (or
// absent) prefix is treated as Major, and the subject is returned unchanged.
func Parse(subject string) (Type, string) {
	switch {
	case strings.HasPrefix(subject, prefixPrepare):
		return Prepare, strings.TrimPrefix(subject, prefixPrepare)
	case strings.HasPrefix(subject, prefixFollowUp):
		return FollowUp, strings.TrimPrefix(subject, prefixFollowUp)
	default:
		return Major, subject
	}
}

// Format re-attaches the type's prefix to a bare subject. Major carries no
// prefix.
func Format(t Type, subject string) string {
	switch t {
	case Prepare:
		return prefixPrepare + subject
	case FollowUp:
		return prefixFollowUp + subject
	default:
		return subject
	}
}

// DecisionKind names the action OverlayVFS.commit should take once
// CommitPolicy has classified a requested commit against its parent.
type DecisionKind int

const (
	// DecisionEmit creates a brand-new commit on top of the parent.
	DecisionEmit DecisionKind = iota
	// DecisionAmendParent rewrites the parent commit in place (new tree,
	// and possibly a new message).
	DecisionAmendParent
	// DecisionAbsorbPrepareRun drops a run of Prepare ancestors and writes
	// one new Major commit parented on the first non-Prepare ancestor.
	DecisionAbsorbPrepareRun
)

// Decision is the result of classifying a requested commit.
type Decision struct {
	Kind DecisionKind
	// Message is the subject (without type prefix) to use for the emitted
	// or amended commit. For DecisionAmendParent with FollowUp-on-Major,
	// this equals the parent's own message (kept, not replaced).
	Message string
}

// Decide classifies a requested commit given the parent's type, the
// parent's own (prefix-stripped) message, and the requested type/message.
// It is a pure function of its inputs: given the same four values it always
// returns the same Decision.
func Decide(parentType Type, parentMessage string, requestedType Type, requestedMessage string) Decision {
	switch {
	case requestedType == FollowUp && parentType == Major:
		return Decision{Kind: DecisionAmendParent, Message: parentMessage}
	case requestedType == Prepare && parentType == Prepare:
		return Decision{Kind: DecisionAmendParent, Message: parentMessage + "\n" + requestedMessage}
	case requestedType == Major && parentType == Prepare:
		return Decision{Kind: DecisionAbsorbPrepareRun, Message: requestedMessage}
	default:
		return Decision{Kind: DecisionEmit, Message: requestedMessage}
	}
}

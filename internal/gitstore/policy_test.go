package gitstore

import "testing"

func TestParseFormatRoundTrip(t *testing.T) {
	cases := []struct {
		typ     Type
		subject string
	}{
		{Major, "add feature"},
		{Prepare, "stage a file"},
		{FollowUp, "approve tool"},
	}
	for _, c := range cases {
		formatted := Format(c.typ, c.subject)
		gotType, gotSubject := Parse(formatted)
		if gotType != c.typ || gotSubject != c.subject {
			t.Fatalf("parse(format(%v, %q)) = (%v, %q), want (%v, %q)", c.typ, c.subject, gotType, gotSubject, c.typ, c.subject)
		}
	}
}

func TestParseUnknownPrefixIsMajor(t *testing.T) {
	typ, subject := Parse("just a plain commit message")
	if typ != Major {
		t.Fatalf("expected Major for unrecognized prefix, got %v", typ)
	}
	if subject != "just a plain commit message" {
		t.Fatalf("expected subject unchanged, got %q", subject)
	}
}

func TestDecideFollowUpOnMajorAmendsKeepingMessage(t *testing.T) {
	d := Decide(Major, "original message", FollowUp, "approve new tool")
	if d.Kind != DecisionAmendParent {
		t.Fatalf("expected DecisionAmendParent, got %v", d.Kind)
	}
	if d.Message != "original message" {
		t.Fatalf("expected parent message kept, got %q", d.Message)
	}
}

func TestDecidePrepareOnPrepareConcatenates(t *testing.T) {
	d := Decide(Prepare, "first prepare", Prepare, "second prepare")
	if d.Kind != DecisionAmendParent {
		t.Fatalf("expected DecisionAmendParent, got %v", d.Kind)
	}
	if d.Message != "first prepare\nsecond prepare" {
		t.Fatalf("expected concatenated message, got %q", d.Message)
	}
}

func TestDecideMajorOnPrepareAbsorbs(t *testing.T) {
	d := Decide(Prepare, "prepared work", Major, "M")
	if d.Kind != DecisionAbsorbPrepareRun {
		t.Fatalf("expected DecisionAbsorbPrepareRun, got %v", d.Kind)
	}
	if d.Message != "M" {
		t.Fatalf("expected requested message, got %q", d.Message)
	}
}

func TestDecideOtherwiseEmits(t *testing.T) {
	d := Decide(Major, "x", Prepare, "stage something")
	if d.Kind != DecisionEmit {
		t.Fatalf("expected DecisionEmit, got %v", d.Kind)
	}
	if d.Message != "stage something" {
		t.Fatalf("expected requested message, got %q", d.Message)
	}
}

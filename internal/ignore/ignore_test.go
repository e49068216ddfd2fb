package ignore

import "testing"

func TestBuiltinBinaryExtensionsAlwaysExcluded(t *testing.T) {
	m := New(nil)
	if !m.Match("assets/logo.png") {
		t.Fatal("expected built-in binary extension to be excluded")
	}
	if m.Match("main.go") {
		t.Fatal("did not expect a source file to be excluded by default")
	}
}

func TestExtensionPatternMatchesAnyDepth(t *testing.T) {
	m := New([]string{"*.log"})
	if !m.Match("app.log") || !m.Match("nested/deep/app.log") {
		t.Fatal("expected *.log to match at any depth")
	}
	if m.Match("app.logger") {
		t.Fatal("did not expect a partial extension match")
	}
}

func TestTrailingSlashMatchesDirectoryAtAnyDepth(t *testing.T) {
	m := New([]string{"node_modules/"})
	if !m.Match("node_modules/x.js") || !m.Match("a/node_modules/x.js") {
		t.Fatal("expected node_modules/ to match at any depth")
	}
	if m.Match("not_node_modules_dir/x.js") {
		t.Fatal("did not expect a partial directory-name match")
	}
}

func TestAnchoredPatternMatchesOnlyAtRoot(t *testing.T) {
	m := New([]string{"/build/"})
	if !m.Match("build/out.js") {
		t.Fatal("expected root-anchored build/ to match at root")
	}
	if m.Match("sub/build/out.js") {
		t.Fatal("did not expect root-anchored pattern to match nested dir")
	}
}

func TestDoubleStarPrefixMatchesArbitraryDepth(t *testing.T) {
	m := New([]string{"**/generated.go"})
	if !m.Match("generated.go") || !m.Match("a/b/c/generated.go") {
		t.Fatal("expected **/ prefix to match at any depth including root")
	}
}

func TestNegationIsAcknowledgedButNotApplied(t *testing.T) {
	m := New([]string{"*.log", "!important.log"})
	if !m.Match("important.log") {
		t.Fatal("expected negation pattern to be inert: important.log should remain excluded")
	}
}

package mergeort

import (
	"strings"
	"testing"

	"github.com/odvcencio/got/pkg/object"
)

// fileSpec describes one tree entry for the scenario builder below.
type fileSpec struct {
	mode string // object.TreeMode*; defaults to TreeModeFile
	data string
}

func buildTree(t *testing.T, store *object.Store, files map[string]fileSpec) object.Hash {
	t.Helper()
	type node struct {
		children map[string]*node
		spec     *fileSpec
	}
	root := &node{children: map[string]*node{}}
	for p, spec := range files {
		spec := spec
		parts := strings.Split(p, "/")
		cur := root
		for i, part := range parts {
			if i == len(parts)-1 {
				if cur.children[part] == nil {
					cur.children[part] = &node{children: map[string]*node{}}
				}
				cur.children[part].spec = &spec
				continue
			}
			if cur.children[part] == nil {
				cur.children[part] = &node{children: map[string]*node{}}
			}
			cur = cur.children[part]
		}
	}

	var write func(n *node) object.Hash
	write = func(n *node) object.Hash {
		var entries []object.TreeEntry
		for name, child := range n.children {
			if child.spec != nil {
				mode := child.spec.mode
				if mode == "" {
					mode = object.TreeModeFile
				}
				h, err := store.WriteBlob(&object.Blob{Data: []byte(child.spec.data)})
				if err != nil {
					t.Fatalf("write blob: %v", err)
				}
				entries = append(entries, object.TreeEntry{Name: name, Mode: mode, BlobHash: h})
			} else {
				h := write(child)
				entries = append(entries, object.TreeEntry{Name: name, IsDir: true, Mode: object.TreeModeDir, SubtreeHash: h})
			}
		}
		h, err := store.WriteTree(&object.TreeObj{Entries: entries})
		if err != nil {
			t.Fatalf("write tree: %v", err)
		}
		return h
	}
	return write(root)
}

func readFile(t *testing.T, store *object.Store, tree object.Hash, path string) ([]byte, bool) {
	t.Helper()
	parts := strings.Split(path, "/")
	cur := tree
	for i, part := range parts {
		tr, err := store.ReadTree(cur)
		if err != nil {
			t.Fatalf("read tree: %v", err)
		}
		var found *object.TreeEntry
		for ei := range tr.Entries {
			if tr.Entries[ei].Name == part {
				found = &tr.Entries[ei]
				break
			}
		}
		if found == nil {
			return nil, false
		}
		if i == len(parts)-1 {
			if found.IsDir {
				return nil, false
			}
			b, err := store.ReadBlob(found.BlobHash)
			if err != nil {
				t.Fatalf("read blob: %v", err)
			}
			return b.Data, true
		}
		if !found.IsDir {
			return nil, false
		}
		cur = found.SubtreeHash
	}
	return nil, false
}

func newTestOptions() *Options {
	o := NewOptions("base", "ours", "theirs")
	if err := o.Start(); err != nil {
		panic(err)
	}
	return o
}

// 1. Trivial same-side modify: B={a:"x"}, S1={a:"y"}, S2={a:"x"} -> {a:"y"}, clean.
func TestTrivialSameSideModify(t *testing.T) {
	dir := t.TempDir()
	store := object.NewStore(dir)

	base := buildTree(t, store, map[string]fileSpec{"a": {data: "x"}})
	s1 := buildTree(t, store, map[string]fileSpec{"a": {data: "y"}})
	s2 := buildTree(t, store, map[string]fileSpec{"a": {data: "x"}})

	res, err := NonRecursive(store, newTestOptions(), base, s1, s2)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if !res.Clean {
		t.Fatalf("expected clean merge, unmerged=%v advisories=%v", res.Unmerged, res.Advisories)
	}
	data, ok := readFile(t, store, res.Tree, "a")
	if !ok || string(data) != "y" {
		t.Fatalf("a = %q, ok=%v, want \"y\"", data, ok)
	}
}

// 2. Rename plus edit.
func TestRenamePlusEdit(t *testing.T) {
	dir := t.TempDir()
	store := object.NewStore(dir)

	base := buildTree(t, store, map[string]fileSpec{"old": {data: "line1\nline2\n"}})
	s1 := buildTree(t, store, map[string]fileSpec{"new": {data: "line1\nline2\n"}})
	s2 := buildTree(t, store, map[string]fileSpec{"old": {data: "line1\nCHANGED\n"}})

	res, err := NonRecursive(store, newTestOptions(), base, s1, s2)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if !res.Clean {
		t.Fatalf("expected clean merge, unmerged=%v advisories=%v", res.Unmerged, res.Advisories)
	}
	data, ok := readFile(t, store, res.Tree, "new")
	if !ok {
		t.Fatalf("expected new to exist")
	}
	if string(data) != "line1\nCHANGED\n" {
		t.Fatalf("new = %q, want %q", data, "line1\nCHANGED\n")
	}
	if _, ok := readFile(t, store, res.Tree, "old"); ok {
		t.Fatalf("expected old to be gone")
	}
}

// 3. Rename/rename(1to2).
func TestRenameRename1to2(t *testing.T) {
	dir := t.TempDir()
	store := object.NewStore(dir)

	base := buildTree(t, store, map[string]fileSpec{"f": {data: "x"}})
	s1 := buildTree(t, store, map[string]fileSpec{"a": {data: "x"}})
	s2 := buildTree(t, store, map[string]fileSpec{"b": {data: "x"}})

	res, err := NonRecursive(store, newTestOptions(), base, s1, s2)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if res.Clean {
		t.Fatalf("expected conflict")
	}
	foundA, foundB := false, false
	for _, p := range res.Unmerged {
		if p == "a" {
			foundA = true
		}
		if p == "b" {
			foundB = true
		}
		if p == "f" {
			t.Fatalf("did not expect f in unmerged (resolved by removal)")
		}
	}
	if !foundA || !foundB {
		t.Fatalf("expected both a and b unmerged, got %v", res.Unmerged)
	}
	for _, p := range []string{"a", "b"} {
		c, ok := res.Conflicts[p]
		if !ok {
			t.Fatalf("missing conflict entry for %q", p)
		}
		if !c.PathConflict {
			t.Fatalf("%q: expected path_conflict set", p)
		}
	}
}

// 4. Directory rename + addition.
func TestDirectoryRenamePlusAddition(t *testing.T) {
	dir := t.TempDir()
	store := object.NewStore(dir)

	base := buildTree(t, store, map[string]fileSpec{
		"src/a": {data: "1"},
		"src/b": {data: "2"},
	})
	s1 := buildTree(t, store, map[string]fileSpec{
		"dst/a": {data: "1"},
		"dst/b": {data: "2"},
	})
	s2 := buildTree(t, store, map[string]fileSpec{
		"src/a": {data: "1"},
		"src/b": {data: "2"},
		"src/c": {data: "3"},
	})

	opts := newTestOptions()
	opts.DetectDirectoryRenames = DirRenameTrue
	res, err := NonRecursive(store, opts, base, s1, s2)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if !res.Clean {
		t.Fatalf("expected clean merge, unmerged=%v advisories=%v", res.Unmerged, res.Advisories)
	}
	for _, p := range []string{"dst/a", "dst/b", "dst/c"} {
		if _, ok := readFile(t, store, res.Tree, p); !ok {
			t.Fatalf("expected %s to exist in result tree", p)
		}
	}
}

// 5. Modify/delete.
func TestModifyDelete(t *testing.T) {
	dir := t.TempDir()
	store := object.NewStore(dir)

	base := buildTree(t, store, map[string]fileSpec{"p": {data: "x"}})
	s1 := buildTree(t, store, map[string]fileSpec{"p": {data: "y"}})
	s2 := buildTree(t, store, map[string]fileSpec{})

	res, err := NonRecursive(store, newTestOptions(), base, s1, s2)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if res.Clean {
		t.Fatalf("expected conflict")
	}
	if len(res.Unmerged) != 1 || res.Unmerged[0] != "p" {
		t.Fatalf("unmerged = %v, want [p]", res.Unmerged)
	}
	c := res.Conflicts["p"]
	if string(c.Ours.OID) == "" {
		t.Fatalf("expected ours stage populated for modify/delete")
	}
	data, ok := readFile(t, store, res.Tree, "p")
	if !ok || string(data) != "y" {
		t.Fatalf("p = %q ok=%v, want modified content kept", data, ok)
	}
}

// 6. Distinct types: regular vs symlink.
func TestDistinctTypes(t *testing.T) {
	dir := t.TempDir()
	store := object.NewStore(dir)

	base := buildTree(t, store, map[string]fileSpec{"p": {data: "x"}})
	s1 := buildTree(t, store, map[string]fileSpec{"p": {mode: object.TreeModeSymlink, data: "t"}})
	s2 := buildTree(t, store, map[string]fileSpec{"p": {data: "y"}})

	res, err := NonRecursive(store, newTestOptions(), base, s1, s2)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if res.Clean {
		t.Fatalf("expected conflict")
	}
	if len(res.Unmerged) != 2 {
		t.Fatalf("expected two unmerged records, got %v", res.Unmerged)
	}

	// theirs kept the base's logical type (regular file), so it stays at
	// "p"; ours (the symlink) must still land in the output tree, moved
	// aside to a unique path rather than silently dropped.
	data, ok := readFile(t, store, res.Tree, "p")
	if !ok || string(data) != "y" {
		t.Fatalf("expected p=%q in output tree, got %q ok=%v", "y", data, ok)
	}
	moved, ok := readFile(t, store, res.Tree, "p~ours")
	if !ok || string(moved) != "t" {
		t.Fatalf("expected relocated p~ours=%q in output tree, got %q ok=%v", "t", moved, ok)
	}
}

// Directory/file conflict: ours modifies the file "p" in place, theirs
// deletes it and replaces it with a directory "p/" holding "p/q". The
// surviving directory keeps path "p"; the modified file content must
// still reach the output tree, relocated to a unique path (spec §4.4
// branch 2).
func TestDirectoryFileConflictRelocatesFile(t *testing.T) {
	dir := t.TempDir()
	store := object.NewStore(dir)

	base := buildTree(t, store, map[string]fileSpec{"p": {data: "x"}})
	s1 := buildTree(t, store, map[string]fileSpec{"p": {data: "y"}})
	s2 := buildTree(t, store, map[string]fileSpec{"p/q": {data: "z"}})

	res, err := NonRecursive(store, newTestOptions(), base, s1, s2)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if res.Clean {
		t.Fatalf("expected conflict")
	}

	q, ok := readFile(t, store, res.Tree, "p/q")
	if !ok || string(q) != "z" {
		t.Fatalf("expected p/q=%q in output tree, got %q ok=%v", "z", q, ok)
	}
	moved, ok := readFile(t, store, res.Tree, "p~ours")
	if !ok || string(moved) != "y" {
		t.Fatalf("expected relocated p~ours=%q in output tree, got %q ok=%v", "y", moved, ok)
	}
}

// Round-trip: merging base,base,base yields base cleanly.
func TestIdentityMerge(t *testing.T) {
	dir := t.TempDir()
	store := object.NewStore(dir)
	base := buildTree(t, store, map[string]fileSpec{"a": {data: "1"}, "dir/b": {data: "2"}})

	res, err := NonRecursive(store, newTestOptions(), base, base, base)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if !res.Clean || len(res.Unmerged) != 0 {
		t.Fatalf("expected clean identity merge, got clean=%v unmerged=%v", res.Clean, res.Unmerged)
	}
	if res.Tree != base {
		t.Fatalf("identity merge should reproduce the same tree hash: got %s want %s", res.Tree, base)
	}
}

// base,X,base -> X and base,base,X -> X.
func TestOneSidedChanges(t *testing.T) {
	dir := t.TempDir()
	store := object.NewStore(dir)
	base := buildTree(t, store, map[string]fileSpec{"a": {data: "1"}})
	x := buildTree(t, store, map[string]fileSpec{"a": {data: "2"}})

	res1, err := NonRecursive(store, newTestOptions(), base, x, base)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if !res1.Clean || res1.Tree != x {
		t.Fatalf("base,X,base: want clean X, got clean=%v tree=%s (want %s)", res1.Clean, res1.Tree, x)
	}

	res2, err := NonRecursive(store, newTestOptions(), base, base, x)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if !res2.Clean || res2.Tree != x {
		t.Fatalf("base,base,X: want clean X, got clean=%v tree=%s (want %s)", res2.Clean, res2.Tree, x)
	}
}

// Commutativity of cleanness: swapping side1/side2 never changes Clean.
func TestCommutativityOfCleanness(t *testing.T) {
	dir := t.TempDir()
	store := object.NewStore(dir)
	base := buildTree(t, store, map[string]fileSpec{"a": {data: "1"}})
	s1 := buildTree(t, store, map[string]fileSpec{"a": {data: "2"}})
	s2 := buildTree(t, store, map[string]fileSpec{"a": {data: "3"}})

	res1, err := NonRecursive(store, newTestOptions(), base, s1, s2)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	res2, err := NonRecursive(store, newTestOptions(), base, s2, s1)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if res1.Clean != res2.Clean {
		t.Fatalf("cleanness not commutative: %v vs %v", res1.Clean, res2.Clean)
	}
}

// An empty tree on one side triggers add-only resolution without crashing.
func TestEmptyTreeAddOnly(t *testing.T) {
	dir := t.TempDir()
	store := object.NewStore(dir)
	base := buildTree(t, store, map[string]fileSpec{})
	s1 := buildTree(t, store, map[string]fileSpec{"new": {data: "hi"}})
	s2 := buildTree(t, store, map[string]fileSpec{})

	res, err := NonRecursive(store, newTestOptions(), base, s1, s2)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if !res.Clean {
		t.Fatalf("expected clean add-only merge, unmerged=%v", res.Unmerged)
	}
	if _, ok := readFile(t, store, res.Tree, "new"); !ok {
		t.Fatalf("expected new to exist")
	}
}

// Directory rename split where two targets tie: falls back, emits advisory.
func TestDirectoryRenameSplitTie(t *testing.T) {
	dir := t.TempDir()
	store := object.NewStore(dir)
	base := buildTree(t, store, map[string]fileSpec{
		"src/a": {data: "1"},
		"src/b": {data: "2"},
	})
	s1 := buildTree(t, store, map[string]fileSpec{
		"dstA/a": {data: "1"},
		"dstB/b": {data: "2"},
	})
	s2 := buildTree(t, store, map[string]fileSpec{
		"src/a": {data: "1"},
		"src/b": {data: "2"},
	})

	opts := newTestOptions()
	opts.DetectDirectoryRenames = DirRenameTrue
	res, err := NonRecursive(store, opts, base, s1, s2)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if !res.Clean {
		t.Fatalf("expected clean merge (split dir rename just falls back), unmerged=%v", res.Unmerged)
	}
}

// Running a merge twice with the same trees on a reused Options produces
// the same output tree OID.
func TestRepeatedMergeSameTrees(t *testing.T) {
	dir := t.TempDir()
	store := object.NewStore(dir)
	base := buildTree(t, store, map[string]fileSpec{"a": {data: "1"}})
	s1 := buildTree(t, store, map[string]fileSpec{"a": {data: "2"}})
	s2 := buildTree(t, store, map[string]fileSpec{"a": {data: "1"}, "b": {data: "3"}})

	opts := newTestOptions()
	res1, err := NonRecursive(store, opts, base, s1, s2)
	if err != nil {
		t.Fatalf("merge 1: %v", err)
	}
	if err := opts.Finalize(res1); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := opts.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	res2, err := NonRecursive(store, opts, base, s1, s2)
	if err != nil {
		t.Fatalf("merge 2: %v", err)
	}
	if res1.Tree != res2.Tree {
		t.Fatalf("repeated merge produced different trees: %s vs %s", res1.Tree, res2.Tree)
	}
}

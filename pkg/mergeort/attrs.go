package mergeort

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// ContentMergeKind selects which ll-merge backend handles a path's
// content-level three-way merge.
type ContentMergeKind string

const (
	// MergeText is the default line-based backend (pkg/diff3).
	MergeText ContentMergeKind = "text"
	// MergeBinary always conflicts on any difference; no markers.
	MergeBinary ContentMergeKind = "binary"
	// MergeStructural routes through pkg/merge's tree-sitter-based
	// entity merge for languages it supports, falling back to MergeText
	// for anything it can't parse.
	MergeStructural ContentMergeKind = "structural"
	// MergeUnion keeps each distinct line of both sides once (ours' lines
	// first, then theirs' new ones; a repeated line survives only at its
	// first occurrence), never conflicting (akin to Git's "union" driver).
	MergeUnion ContentMergeKind = "union"
)

// attrRule is one [[pattern]] entry in a merge.toml attributes file.
type attrRule struct {
	Glob        string `toml:"glob"`
	Merge       string `toml:"merge"`
	Renormalize bool   `toml:"renormalize"`
}

type attrsFile struct {
	Pattern []attrRule `toml:"pattern"`
}

// attrEntry is a compiled attrRule.
type attrEntry struct {
	glob        string
	merge       ContentMergeKind
	renormalize bool
}

// AttrIndex is the merge engine's attribute index: a lazily populated,
// ordered list of path-pattern rules loaded from a TOML file at merge
// time (spec §5 "the attr index ... is lazily populated ... and cleared
// at teardown"). Later rules override earlier ones for a matching path,
// mirroring .gitattributes precedence.
type AttrIndex struct {
	entries []attrEntry
}

// LoadAttrIndex reads path (typically "<repo>/.got/merge.toml") and
// compiles it into an AttrIndex. A missing file yields an empty,
// always-text-merge index rather than an error.
func LoadAttrIndex(path string) (*AttrIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &AttrIndex{}, nil
		}
		return nil, objectStoreErr(path, err)
	}
	var f attrsFile
	if _, err := toml.Decode(string(data), &f); err != nil {
		return nil, objectStoreErr(path, err)
	}
	idx := &AttrIndex{entries: make([]attrEntry, 0, len(f.Pattern))}
	for _, rule := range f.Pattern {
		kind := ContentMergeKind(rule.Merge)
		switch kind {
		case MergeText, MergeBinary, MergeStructural, MergeUnion:
		default:
			kind = MergeText
		}
		idx.entries = append(idx.entries, attrEntry{
			glob:        rule.Glob,
			merge:       kind,
			renormalize: rule.Renormalize,
		})
	}
	return idx, nil
}

// WithDefault returns a copy of a with a catch-all "*" rule for kind
// inserted first, so paths with no matching rule of their own fall back
// to kind instead of the hardcoded MergeText default. Existing entries
// still take precedence for the paths they match (later entries win).
func (a *AttrIndex) WithDefault(kind ContentMergeKind) *AttrIndex {
	entries := []attrEntry{{glob: "*", merge: kind}}
	if a != nil {
		entries = append(entries, a.entries...)
	}
	return &AttrIndex{entries: entries}
}

// Lookup returns the merge kind and renormalize flag for path, applying
// the last matching rule (later entries win, like .gitattributes).
func (a *AttrIndex) Lookup(path string) (ContentMergeKind, bool) {
	if a == nil {
		return MergeText, false
	}
	kind := MergeText
	renorm := false
	for _, e := range a.entries {
		if matchAttrGlob(e.glob, path) {
			kind = e.merge
			renorm = e.renormalize
		}
	}
	return kind, renorm
}

// matchAttrGlob matches a gitattributes-style pattern against a
// slash-separated repo path. A pattern without a "/" matches against the
// basename anywhere in the tree (mirroring .gitattributes); a pattern
// containing "/" matches the full path.
func matchAttrGlob(pattern, path string) bool {
	if pattern == "" {
		return false
	}
	if !strings.Contains(pattern, "/") {
		ok, _ := filepath.Match(pattern, filepath.Base(path))
		return ok
	}
	ok, _ := filepath.Match(pattern, path)
	return ok
}

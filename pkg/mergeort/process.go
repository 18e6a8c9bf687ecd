package mergeort

import (
	"fmt"
	"strings"
)

// processor runs process_entry (spec §4.4) for every conflicted record
// the tree writer reaches in reverse-sorted order, filling in Result and
// Clean.
//
// A path split (branches 2 and 4) can allocate a brand-new record at a
// unique path in the SAME directory as the one currently being visited.
// Because the tree writer captures its path list once up front (§4.5),
// that new record would never be folded into the output tree on its
// own; emitExtra lets process_entry hand such records straight to the
// tree writer's in-flight directory frame instead.
type processor struct {
	adapter    *objectAdapter
	store      *Store
	opts       *Options
	callDepth  int
	advisories map[string][]string
	emitExtra  func(name string, result Version)
}

func newProcessor(adapter *objectAdapter, store *Store, opts *Options, callDepth int) *processor {
	return &processor{
		adapter:    adapter,
		store:      store,
		opts:       opts,
		callDepth:  callDepth,
		advisories: make(map[string][]string),
	}
}

// emitAt hands a resolved record off to the tree writer's current frame
// under basename(path), if it has non-null content.
func (p *processor) emitAt(path string, result Version) {
	if result.IsNull() || p.emitExtra == nil {
		return
	}
	p.emitExtra(path[BasenameOffset(path):], result)
}

func (p *processor) advise(path, msg string) {
	p.advisories[path] = append(p.advisories[path], msg)
}

// process resolves rec (mutating it in place) per the branch ladder in
// spec §4.4. The ladder is mutually exclusive; earlier branches take
// priority.
func (p *processor) process(path string, rec *Record) error {
	if rec.Clean {
		return nil
	}

	switch {
	case rec.FileMask == 0:
		return nil

	case rec.DFConflict && p.directoryNonEmpty(path):
		return p.splitDFConflict(path, rec)

	case rec.MatchMask != 0:
		return p.resolveByMatch(path, rec)

	case bothSidesPresent(rec.FileMask) && distinctTypes(rec):
		return p.splitDistinctTypes(path, rec)

	case bothSidesPresent(rec.FileMask):
		return p.mergeBothSides(path, rec)

	case rec.FileMask == (1<<stageBase|1<<stageOurs) || rec.FileMask == (1<<stageBase|1<<stageTheirs):
		return p.modifyDelete(path, rec)

	case rec.FileMask == (1 << stageOurs):
		rec.Result = rec.Stages[stageOurs]
		rec.Clean = !rec.DFConflict && !rec.PathConflict
		return nil

	case rec.FileMask == (1 << stageTheirs):
		rec.Result = rec.Stages[stageTheirs]
		rec.Clean = !rec.DFConflict && !rec.PathConflict
		return nil

	case rec.FileMask == (1 << stageBase):
		rec.Result = Null
		rec.Clean = !rec.PathConflict
		return nil

	default:
		return inputInvalidErr(fmt.Sprintf("process_entry: unreachable filemask %03b at %q", rec.FileMask, path))
	}
}

func bothSidesPresent(mask StageMask) bool {
	return mask&(1<<stageOurs) != 0 && mask&(1<<stageTheirs) != 0
}

func distinctTypes(rec *Record) bool {
	return !rec.Stages[stageOurs].Mode.SameLogicalType(rec.Stages[stageTheirs].Mode)
}

// directoryNonEmpty reports whether any store entry still lives under
// path/ with non-null content, used to decide whether a df_conflict's
// directory side actually survived the merge.
func (p *processor) directoryNonEmpty(path string) bool {
	prefix := path + "/"
	nonEmpty := false
	p.store.Iterate(func(other string, r *Record) {
		if nonEmpty || !strings.HasPrefix(other, prefix) {
			return
		}
		if r.Clean {
			if !r.Result.IsNull() {
				nonEmpty = true
			}
			return
		}
		nonEmpty = true
	})
	return nonEmpty
}

// resolveByMatch handles branch 3: at least two stages are byte-identical
// so the odd one out's content is the real change.
func (p *processor) resolveByMatch(path string, rec *Record) error {
	var chosen Version
	switch rec.MatchMask {
	case MatchBaseSide1:
		chosen = rec.Stages[stageTheirs]
	case MatchBaseSide2:
		chosen = rec.Stages[stageOurs]
	default: // MatchSide1Side2 or MatchAllThree: either side is representative.
		chosen = rec.Stages[stageOurs]
	}
	rec.Result = chosen
	rec.Clean = true
	return nil
}

// splitDFConflict relocates a file stored at a path that also resolved
// to a non-empty directory (spec §4.4 branch 2).
func (p *processor) splitDFConflict(path string, rec *Record) error {
	branch := p.fileSideBranch(rec)
	newPath := UniquePath(p.store.Contains, path, branch)
	p.store.Remove(path)
	rec.DirectoryName = p.store.DirOf(newPath)
	rec.BasenameOffset = BasenameOffset(newPath)
	p.store.Put(newPath, rec)
	p.advise(path, fmt.Sprintf("directory/file conflict: file moved to %s", newPath))
	if err := p.process(newPath, rec); err != nil {
		return err
	}
	// newPath shares path's directory (UniquePath only touches the
	// basename), so the tree writer's current frame is still the right
	// place for it; emit it there and null out rec.Result so the tree
	// writer's generic post-process append (keyed on the now-stale old
	// path) contributes nothing.
	p.emitAt(newPath, rec.Result)
	rec.Result = Null
	return nil
}

func (p *processor) fileSideBranch(rec *Record) string {
	switch {
	case rec.FileMask&(1<<stageOurs) != 0:
		return p.opts.Branch1
	case rec.FileMask&(1<<stageTheirs) != 0:
		return p.opts.Branch2
	default:
		return p.opts.Ancestor
	}
}

// splitDistinctTypes handles branch 4: sides 1/2 are both present but of
// incompatible logical types (e.g. symlink vs regular file). Whichever
// side preserved base's type, if any, stays at path; the other side(s)
// move to a unique path.
func (p *processor) splitDistinctTypes(path string, rec *Record) error {
	base := rec.Stages[stageBase]
	oursKeeps := !base.IsNull() && rec.Stages[stageOurs].Mode.SameLogicalType(base.Mode)
	theirsKeeps := !base.IsNull() && rec.Stages[stageTheirs].Mode.SameLogicalType(base.Mode)

	switch {
	case oursKeeps && !theirsKeeps:
		p.relocateSide(path, rec, stageTheirs, p.opts.Branch2)
		rec.Stages[stageTheirs] = Null
		rec.FileMask &^= 1 << stageTheirs
		rec.PathConflict = true
		rec.Result = rec.Stages[stageOurs]
		p.advise(path, fmt.Sprintf("distinct types: kept %s, moved %s aside", p.opts.Branch1, p.opts.Branch2))
		return nil
	case theirsKeeps && !oursKeeps:
		p.relocateSide(path, rec, stageOurs, p.opts.Branch1)
		rec.Stages[stageOurs] = Null
		rec.FileMask &^= 1 << stageOurs
		rec.PathConflict = true
		rec.Result = rec.Stages[stageTheirs]
		p.advise(path, fmt.Sprintf("distinct types: kept %s, moved %s aside", p.opts.Branch2, p.opts.Branch1))
		return nil
	default:
		p.relocateSide(path, rec, stageOurs, p.opts.Branch1)
		p.relocateSide(path, rec, stageTheirs, p.opts.Branch2)
		p.store.Remove(path)
		p.advise(path, "distinct types: moved both sides aside")
		return nil
	}
}

func (p *processor) relocateSide(path string, rec *Record, stage int, branch string) {
	newPath := UniquePath(p.store.Contains, path, branch)
	var stages [3]Version
	stages[stageBase] = rec.Stages[stageBase]
	stages[stage] = rec.Stages[stage]
	fileMask := StageMask(1 << uint(stage))
	if !rec.Stages[stageBase].IsNull() {
		fileMask |= 1 << stageBase
	}
	newRec := NewConflicted(stages, fileMask, 0, MatchNone, p.store.DirOf(newPath), BasenameOffset(newPath))
	newRec.PathConflict = true
	newRec.Result = stages[stage]
	p.store.Put(newPath, newRec)
	// newPath is a sibling of path (UniquePath only touches the
	// basename), and relocateSide never recurses into p.process, so the
	// result is already final: emit it into the tree writer's currently
	// open frame now rather than relying on the generic per-path loop,
	// which will never visit this path (it didn't exist when
	// SortedPaths was captured).
	p.emitAt(newPath, newRec.Result)
}

// mergeBothSides handles branch 5: a genuine three-way content merge.
func (p *processor) mergeBothSides(path string, rec *Record) error {
	result, clean, err := p.handleContentMerge(path, rec)
	if err != nil {
		return err
	}
	rec.Result = result
	rec.Clean = clean && !rec.DFConflict && !rec.PathConflict
	if !rec.Clean {
		p.advise(path, fmt.Sprintf("content conflict merging %s and %s", p.opts.Branch1, p.opts.Branch2))
	}
	return nil
}

// handleContentMerge implements spec §4.4's mode-choice, OID-shortcut,
// and per-kind dispatch.
func (p *processor) handleContentMerge(path string, rec *Record) (Version, bool, error) {
	base := rec.Stages[stageBase]
	a := rec.Stages[stageOurs]
	b := rec.Stages[stageTheirs]

	mode := a.Mode
	modeClean := true
	switch {
	case a.Mode == b.Mode:
		mode = a.Mode
	case a.Mode == base.Mode:
		mode = b.Mode
	case b.Mode == base.Mode:
		mode = a.Mode
	default:
		mode = a.Mode
		modeClean = b.Mode == base.Mode
	}

	switch {
	case a.OID == b.OID:
		return Version{OID: a.OID, Mode: mode}, modeClean, nil
	case a.OID == base.OID:
		return Version{OID: b.OID, Mode: mode}, modeClean, nil
	case b.OID == base.OID:
		return Version{OID: a.OID, Mode: mode}, modeClean, nil
	}

	switch {
	case mode.IsSubmodule():
		v, clean, err := p.mergeSubmodule(path, base, a, b, mode)
		return v, clean && modeClean, err
	case mode.IsSymlink():
		v, clean := p.mergeSymlink(base, a, b, mode)
		return v, clean && modeClean, nil
	default:
		v, clean, err := p.mergeRegularFile(path, base, a, b, mode)
		return v, clean && modeClean, err
	}
}

func (p *processor) mergeRegularFile(path string, base, a, b Version, mode Mode) (Version, bool, error) {
	baseBytes, err := p.adapter.readBlobBytes(base)
	if err != nil {
		return Null, false, err
	}
	aBytes, err := p.adapter.readBlobBytes(a)
	if err != nil {
		return Null, false, err
	}
	bBytes, err := p.adapter.readBlobBytes(b)
	if err != nil {
		return Null, false, err
	}

	kind := MergeText
	renorm := p.opts.Renormalize
	if p.opts.Attrs != nil {
		k, r := p.opts.Attrs.Lookup(path)
		kind = k
		renorm = renorm || r
	}

	merged, status := llMerge(baseBytes, p.opts.Ancestor, aBytes, p.opts.Branch1, bBytes, p.opts.Branch2, kind, LLMergeOpts{
		Renormalize:     renorm,
		ExtraMarkerSize: 1 + 2*p.callDepth,
		Variant:         p.opts.RecursiveVariant,
	})

	h, err := p.adapter.writeBlob(merged)
	if err != nil {
		return Null, false, err
	}
	return Version{OID: h, Mode: mode}, status == 0, nil
}

// mergeSymlink picks a side per the configured recursive variant; symlink
// targets are never content-merged (spec §4.4 "Symlinks").
func (p *processor) mergeSymlink(base, a, b Version, mode Mode) (Version, bool) {
	switch p.opts.RecursiveVariant {
	case VariantOurs:
		return Version{OID: a.OID, Mode: mode}, false
	case VariantTheirs:
		return Version{OID: b.OID, Mode: mode}, false
	default:
		if p.callDepth > 0 {
			// Deeper recursion levels prefer the base per spec §5(b).
			return Version{OID: base.OID, Mode: mode}, false
		}
		return Version{OID: a.OID, Mode: mode}, false
	}
}

// mergeSubmodule fast-forwards when one side's commit is an ancestor of
// the other. It reports a conflict (without the original's "search for a
// merge commit containing both" suggestion, which needs full repository
// graph traversal outside this package's scope) otherwise.
func (p *processor) mergeSubmodule(path string, base, a, b Version, mode Mode) (Version, bool, error) {
	if p.opts.CommitGraph == nil {
		p.advise(path, "submodule conflict: no commit graph configured to attempt fast-forward")
		return Version{OID: a.OID, Mode: mode}, false, nil
	}
	if ff, err := p.opts.CommitGraph.InMergeBases(b.OID, a.OID); err == nil && ff {
		return Version{OID: a.OID, Mode: mode}, true, nil
	}
	if ff, err := p.opts.CommitGraph.InMergeBases(a.OID, b.OID); err == nil && ff {
		return Version{OID: b.OID, Mode: mode}, true, nil
	}
	p.advise(path, "submodule conflict: neither side fast-forwards from the other")
	return Version{OID: a.OID, Mode: mode}, false, nil
}

// modifyDelete handles branch 6: one side modified, the other deleted.
func (p *processor) modifyDelete(path string, rec *Record) error {
	var modifiedBranch string
	if rec.FileMask&(1<<stageOurs) != 0 {
		rec.Result = rec.Stages[stageOurs]
		modifiedBranch = p.opts.Branch1
	} else {
		rec.Result = rec.Stages[stageTheirs]
		modifiedBranch = p.opts.Branch2
	}
	rec.Clean = false
	if !rec.PathConflict {
		p.advise(path, fmt.Sprintf("modify/delete: %s modified, other side deleted", modifiedBranch))
	}
	return nil
}

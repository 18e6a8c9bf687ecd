package mergeort

import "github.com/odvcencio/got/pkg/object"

// Result is what a merge call hands back: the merged tree plus everything
// a caller needs to report or stage conflicts (spec §6).
type Result struct {
	Clean      bool
	Tree       object.Hash
	Unmerged   []string
	Advisories map[string][]string

	// Conflicts carries the per-stage versions backing every path in
	// Unmerged, so a caller implementing switch_to_result (spec §6) can
	// populate stage-1/2/3 index entries without re-walking the trees.
	Conflicts map[string]ConflictEntry
}

// ConflictEntry is the stage-1/2/3 version triple and flags backing one
// unmerged path, enough for a caller to reconstruct an index entry or a
// conflict-marker file independent of the merge's internal Store.
type ConflictEntry struct {
	Base, Ours, Theirs Version
	PathConflict       bool
	Result             Version
}

// NonRecursive runs a single three-way merge with one merge base and
// returns the result. Options.Start must already have been called.
func NonRecursive(store *object.Store, opts *Options, baseTree, side1Tree, side2Tree object.Hash) (*Result, error) {
	return runMerge(store, opts, baseTree, side1Tree, side2Tree, 0)
}

// Recursive folds multiple merge bases into one virtual base (spec §5's
// recursive ancestor-merge), then runs the real merge against it. Each
// virtual-base fold recurses one level deeper, which is threaded through
// as call_depth into symlink/content-marker-width decisions.
func Recursive(store *object.Store, opts *Options, mergeBases []object.Hash, side1Tree, side2Tree object.Hash) (*Result, error) {
	if len(mergeBases) == 0 {
		return runMerge(store, opts, "", side1Tree, side2Tree, 0)
	}

	virtualBase := mergeBases[0]
	for depth, nextBase := range mergeBases[1:] {
		sub := *opts
		sub.started = true
		res, err := runMerge(store, &sub, nextBase, virtualBase, nextBase, depth+1)
		if err != nil {
			return nil, err
		}
		virtualBase = res.Tree
	}

	return runMerge(store, opts, virtualBase, side1Tree, side2Tree, 0)
}

func runMerge(store *object.Store, opts *Options, baseTree, side1Tree, side2Tree object.Hash, callDepth int) (*Result, error) {
	adapter := newObjectAdapter(store)

	coll := newCollector(adapter, opts)
	if err := coll.collect(baseTree, side1Tree, side2Tree); err != nil {
		return nil, err
	}

	renameAdvisories, err := applyRenames(coll.store, adapter, opts, coll.renameState, baseTree, side1Tree, side2Tree)
	if err != nil {
		return nil, err
	}

	proc := newProcessor(adapter, coll.store, opts, callDepth)
	tw := newTreeWriter(adapter, coll.store, proc)
	treeHash, err := tw.write()
	if err != nil {
		return nil, err
	}

	coll.store.RecomputeUnmerged()
	unmerged := coll.store.Unmerged()

	advisories := make(map[string][]string, len(renameAdvisories)+len(proc.advisories))
	for p, msgs := range renameAdvisories {
		advisories[p] = append(advisories[p], msgs...)
	}
	for p, msgs := range proc.advisories {
		advisories[p] = append(advisories[p], msgs...)
	}

	conflicts := make(map[string]ConflictEntry, len(unmerged))
	for _, p := range unmerged {
		rec := coll.store.Get(p)
		if rec == nil {
			continue
		}
		conflicts[p] = ConflictEntry{
			Base:         rec.Stages[stageBase],
			Ours:         rec.Stages[stageOurs],
			Theirs:       rec.Stages[stageTheirs],
			PathConflict: rec.PathConflict,
			Result:       rec.Result,
		}
	}

	return &Result{
		Clean:      len(unmerged) == 0,
		Tree:       treeHash,
		Unmerged:   unmerged,
		Advisories: advisories,
		Conflicts:  conflicts,
	}, nil
}

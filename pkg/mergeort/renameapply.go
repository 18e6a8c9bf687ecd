package mergeort

import (
	"fmt"

	"github.com/odvcencio/got/pkg/object"
)

// applyRenames runs the full rename-engine pipeline (spec §4.3 "Rename
// application" and "process_renames") against an already-collected Store:
// regular rename detection per side, directory-rename majority vote,
// directory-rename rerouting of surviving adds, and finally folding every
// confirmed rename class into the path state. Returns per-path advisory
// strings.
//
// baseTree/side1Tree/side2Tree are the trees this merge ran against; once
// each side's pairs are known, they are snapshotted onto opts's cache
// handshake (spec §9) under that (base, side) pair so a later merge that
// reuses the same pair of trees on a side can skip detection entirely.
func applyRenames(store *Store, adapter *objectAdapter, opts *Options, sides [3]*sideRenameState, baseTree, side1Tree, side2Tree object.Hash) (map[string][]string, error) {
	advisories := make(map[string][]string)
	advise := func(path, msg string) { advisories[path] = append(advisories[path], msg) }

	if !opts.DetectRenames {
		return advisories, nil
	}

	var pairs [3][]RenamePair
	var byOld [3]map[string]RenamePair
	for _, s := range []int{stageOurs, stageTheirs} {
		pairs[s] = sides[s].detectRegularRenames(adapter, opts)
		byOld[s] = make(map[string]RenamePair, len(pairs[s]))
		for _, pr := range pairs[s] {
			byOld[s][pr.Old] = pr
		}
	}

	opts.cacheSide1 = sides[stageOurs].snapshotCache(baseTree, side1Tree, pairs[stageOurs])
	opts.cacheSide2 = sides[stageTheirs].snapshotCache(baseTree, side2Tree, pairs[stageTheirs])

	var dirRen [3]*dirRenameResult
	if opts.DetectDirectoryRenames != DirRenameNone {
		for _, s := range []int{stageOurs, stageTheirs} {
			dirRen[s] = sides[s].computeDirectoryRenames()
			for _, oldDir := range dirRen[s].conflicts {
				advise(oldDir, "directory rename split: targets tied for top vote, location left unchanged")
			}
		}
		for oldDir, t1 := range dirRen[stageOurs].renames {
			if t2, ok := dirRen[stageTheirs].renames[oldDir]; ok && t1 == t2 {
				delete(dirRen[stageOurs].renames, oldDir)
				delete(dirRen[stageTheirs].renames, oldDir)
			}
		}
	}

	handled := make(map[string]bool)
	for _, pr := range pairs[stageOurs] {
		other, ok := byOld[stageTheirs][pr.Old]
		if !ok {
			continue
		}
		handled[pr.Old] = true
		if pr.New == other.New {
			if err := applyRenameRename1to1(store, pr, other); err != nil {
				return nil, err
			}
		} else {
			if err := applyRenameRename1to2(store, adapter, opts, pr, other, advise); err != nil {
				return nil, err
			}
		}
	}

	matchedTargets := [3]map[string]bool{nil, {}, {}}
	for _, side := range []int{stageOurs, stageTheirs} {
		for _, pr := range pairs[side] {
			matchedTargets[side][pr.New] = true
			if handled[pr.Old] {
				continue
			}
			if err := applyRegularRename(store, side, pr, advise); err != nil {
				return nil, err
			}
		}
	}

	if opts.DetectDirectoryRenames != DirRenameNone {
		for _, side := range []int{stageOurs, stageTheirs} {
			other := otherSide(side)
			if dirRen[side] == nil || dirRen[other] == nil {
				continue
			}
			for _, add := range sides[side].adds {
				if matchedTargets[side][add.path] {
					continue
				}
				newPath, ok := rerouteThroughDirRename(add.path, dirRen[other].renames, dirRen[side].renames)
				if !ok {
					continue
				}
				if err := rerouteAdd(store, side, add.path, newPath, opts.DetectDirectoryRenames, advise); err != nil {
					return nil, err
				}
			}
		}
	}

	return advisories, nil
}

func otherSide(s int) int {
	if s == stageOurs {
		return stageTheirs
	}
	return stageOurs
}

// applyRenameRename1to1 folds a rename of the same path to the same new
// name on both sides into one record at the new path, possibly still
// needing a content merge if the two sides diverged after renaming.
func applyRenameRename1to1(store *Store, pr, other RenamePair) error {
	stages := [3]Version{pr.OldVersion, pr.NewVersion, other.NewVersion}
	rec := NewConflicted(stages, (1<<stageBase)|(1<<stageOurs)|(1<<stageTheirs), 0, computeMatchMask(stages), store.DirOf(pr.New), BasenameOffset(pr.New))
	store.Put(pr.New, rec)
	store.Put(pr.Old, NewResolved(Null, store.DirOf(pr.Old), BasenameOffset(pr.Old)))
	return nil
}

// applyRenameRename1to2 merges the content once and writes the same
// merged result into both targets, each flagged path_conflict (spec
// §4.3's rename/rename(1to2) rule).
func applyRenameRename1to2(store *Store, adapter *objectAdapter, opts *Options, ours, theirs RenamePair, advise func(string, string)) error {
	baseBytes, err := adapter.readBlobBytes(ours.OldVersion)
	if err != nil {
		return err
	}
	aBytes, err := adapter.readBlobBytes(ours.NewVersion)
	if err != nil {
		return err
	}
	bBytes, err := adapter.readBlobBytes(theirs.NewVersion)
	if err != nil {
		return err
	}

	merged, _ := llMerge(baseBytes, opts.Ancestor, aBytes, opts.Branch1, bBytes, opts.Branch2, MergeText, LLMergeOpts{ExtraMarkerSize: 1})
	h, err := adapter.writeBlob(merged)
	if err != nil {
		return err
	}
	mergedVersion := Version{OID: h, Mode: ours.NewVersion.Mode}

	for _, target := range []string{ours.New, theirs.New} {
		rec := NewConflicted([3]Version{ours.OldVersion, mergedVersion, mergedVersion}, (1<<stageBase)|(1<<stageOurs)|(1<<stageTheirs), 0, MatchNone, store.DirOf(target), BasenameOffset(target))
		rec.PathConflict = true
		rec.Result = mergedVersion
		store.Put(target, rec)
		advise(target, fmt.Sprintf("rename/rename: %s renamed to both %s and %s", ours.Old, ours.New, theirs.New))
	}
	store.Put(ours.Old, NewResolved(Null, store.DirOf(ours.Old), BasenameOffset(ours.Old)))
	return nil
}

// applyRegularRename copies the rename source's base content to the new
// path on the renaming side, folding into whatever the other side
// independently left there (an add, or nothing).
func applyRegularRename(store *Store, side int, pr RenamePair, advise func(string, string)) error {
	rec := store.Get(pr.New)
	if rec == nil {
		stages := [3]Version{}
		stages[stageBase] = pr.OldVersion
		stages[side] = pr.NewVersion
		fileMask := StageMask(1<<stageBase | 1<<uint(side))
		rec = NewConflicted(stages, fileMask, 0, computeMatchMask(stages), store.DirOf(pr.New), BasenameOffset(pr.New))
		store.Put(pr.New, rec)
	} else {
		if rec.Stages[stageBase].IsNull() {
			rec.Stages[stageBase] = pr.OldVersion
			rec.FileMask |= 1 << stageBase
		}
		rec.Stages[side] = pr.NewVersion
		rec.FileMask |= 1 << uint(side)
		rec.MatchMask = computeMatchMask(rec.Stages)
		rec.PathConflict = true
		advise(pr.New, fmt.Sprintf("rename target %s collides with existing content", pr.New))
	}
	store.Put(pr.Old, NewResolved(Null, store.DirOf(pr.Old), BasenameOffset(pr.Old)))
	return nil
}

// rerouteAdd moves a bare add on side from oldPath to newPath because the
// other side's directory-rename inference says oldPath's directory moved.
// In DirRenameConflict mode it only advises; it never reroutes silently.
func rerouteAdd(store *Store, side int, oldPath, newPath string, mode DirectoryRenameMode, advise func(string, string)) error {
	rec := store.Get(oldPath)
	if rec == nil {
		return nil
	}
	if mode == DirRenameConflict {
		advise(oldPath, fmt.Sprintf("directory rename: %s would move to %s", oldPath, newPath))
		return nil
	}

	store.Remove(oldPath)
	existing := store.Get(newPath)
	if existing == nil {
		rec.DirectoryName = store.DirOf(newPath)
		rec.BasenameOffset = BasenameOffset(newPath)
		store.Put(newPath, rec)
	} else {
		existing.Stages[side] = rec.Stages[side]
		existing.FileMask |= 1 << uint(side)
		existing.MatchMask = computeMatchMask(existing.Stages)
		existing.PathConflict = true
	}
	advise(newPath, fmt.Sprintf("%s moved to %s via directory rename", oldPath, newPath))
	return nil
}

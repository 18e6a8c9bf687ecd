package mergeort

import (
	"path"
	"sort"
	"strings"

	"github.com/odvcencio/got/pkg/object"
)

// Relevance classifies why a deleted path might be a rename source, per
// spec §4.3: content-relevant iff its content differs from every
// surviving stage; location-relevant iff it sits inside a directory that
// itself looks renamed; both trumps either alone.
type Relevance int

const (
	RelevanceNone Relevance = iota
	RelevanceContent
	RelevanceLocation
	RelevanceBoth
)

// RenameStatus classifies a detected (old, new) pair the way `git
// diff --find-renames` statuses do.
type RenameStatus byte

const (
	StatusAdd    RenameStatus = 'A'
	StatusDelete RenameStatus = 'D'
	StatusRename RenameStatus = 'R'
)

// RenamePair is one candidate or confirmed rename on a single side.
type RenamePair struct {
	Status     RenameStatus
	Old, New   string
	Score      int
	OldVersion Version
	NewVersion Version
}

// renameCache holds the results the spec's §9 "thin handshake" lets a
// caller carry from one merge to the next when the same pair of trees is
// reused on one side (a linear cherry-pick/rebase chain). Spec §3: "the
// cache is valid for exactly one side when two successive merges share
// the same pair of trees on that side" — baseTree/sideTree are exactly
// that pair, as seen by the merge that populated this cache.
type renameCache struct {
	baseTree    object.Hash
	sideTree    object.Hash
	pairs       []RenamePair
	targetNames map[string]bool
}

// sideRenameState accumulates everything the rename engine needs for one
// side across the whole tri-tree walk.
type sideRenameState struct {
	deletes []pathVersion
	adds    []pathVersion

	relevantSources map[string]Relevance
	dirsRemoved     map[string]bool
	dirRenameCount  map[string]map[string]int // oldDir -> newDir -> votes

	cachedPairs       []RenamePair
	cachedTargetNames map[string]bool
	cacheValid        bool

	possibleTrivialMerges map[string]bool
	targetDirs            map[string]bool
	trivialMergesOkay     bool
}

type pathVersion struct {
	path    string
	version Version
}

func newSideRenameState() *sideRenameState {
	return &sideRenameState{
		relevantSources:       make(map[string]Relevance),
		dirsRemoved:           make(map[string]bool),
		dirRenameCount:        make(map[string]map[string]int),
		possibleTrivialMerges: make(map[string]bool),
		targetDirs:            make(map[string]bool),
	}
}

// primeCache arms s.cacheValid when cache was captured from a merge that
// used the exact same (base, side) pair of trees on this side (spec §3's
// validity rule). A nil cache, or one captured under a different pair of
// trees, leaves s untouched and detection runs fresh.
func (s *sideRenameState) primeCache(cache *renameCache, baseTree, sideTree object.Hash) {
	if cache == nil || cache.baseTree != baseTree || cache.sideTree != sideTree {
		return
	}
	s.cacheValid = true
	s.cachedPairs = cache.pairs
	s.cachedTargetNames = cache.targetNames
}

// snapshotCache captures this side's detected pairs under the (base,
// side) pair of trees this merge used, for a later merge's primeCache to
// pick up (spec §9's "thin handshake on the result object").
func (s *sideRenameState) snapshotCache(baseTree, sideTree object.Hash, pairs []RenamePair) *renameCache {
	targetNames := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		targetNames[p.New] = true
	}
	return &renameCache{
		baseTree:    baseTree,
		sideTree:    sideTree,
		pairs:       pairs,
		targetNames: targetNames,
	}
}

// noteDeletion records a (old -> ?) candidate for side. Every genuine
// deletion (a path present in base and absent on this side) is treated as
// content-relevant; got skips the "is this content duplicated
// elsewhere" pruning git's rename detector uses purely for performance
// (spec's dir_rename_mask sticky-bit bookkeeping), since a simpler
// always-relevant rule produces the same detected renames, just scoring
// a few more pairs than the optimized original would.
func (s *sideRenameState) noteDeletion(oldPath string, v Version) {
	s.deletes = append(s.deletes, pathVersion{oldPath, v})
	s.relevantSources[oldPath] = RelevanceContent
}

// noteAddition records a (? -> new) candidate for side, unless it is
// already known to be a cached rename target.
func (s *sideRenameState) noteAddition(newPath string, v Version) {
	if s.cachedTargetNames != nil && s.cachedTargetNames[newPath] {
		return
	}
	s.adds = append(s.adds, pathVersion{newPath, v})
}

// markDirRemoved records that dir existed in base but is absent on this
// side.
func (s *sideRenameState) markDirRemoved(dir string) { s.dirsRemoved[dir] = true }

// detectRegularRenames scores every (delete, add) pair restricted to
// relevant sources, and greedily assigns the highest-scoring pairs above
// the threshold as renames (spec §4.3 detect_regular_renames). It also
// accumulates directory-level vote totals as pairs are confirmed.
func (s *sideRenameState) detectRegularRenames(store blobReader, opts *Options) []RenamePair {
	if s.cacheValid {
		pairs := append([]RenamePair(nil), s.cachedPairs...)
		for _, pr := range pairs {
			s.voteDirRename(pr.Old, pr.New)
		}
		return pairs
	}

	type scored struct {
		di, ai int
		score  int
	}

	limit := opts.RenameLimit
	if limit <= 0 {
		limit = DefaultRenameLimit
	}

	relevantDeletes := make([]int, 0, len(s.deletes))
	for i, d := range s.deletes {
		if s.relevantSources[d.path] != RelevanceNone {
			relevantDeletes = append(relevantDeletes, i)
		}
	}

	if len(relevantDeletes)*len(s.adds) > limit*limit {
		opts.neededRenameLimit = len(relevantDeletes)
		if len(s.adds) > opts.neededRenameLimit {
			opts.neededRenameLimit = len(s.adds)
		}
		if len(relevantDeletes) > limit {
			relevantDeletes = relevantDeletes[:limit]
		}
		if len(s.adds) > limit {
			s.adds = s.adds[:limit]
		}
	}

	var candidates []scored
	for _, di := range relevantDeletes {
		for ai, a := range s.adds {
			if !s.deletes[di].version.Mode.SameLogicalType(a.version.Mode) {
				continue
			}
			contentA, _ := store.readBlobBytes(s.deletes[di].version)
			contentB, _ := store.readBlobBytes(a.version)
			score := similarityScore(contentA, contentB)
			if score >= opts.RenameScore {
				candidates = append(candidates, scored{di, ai, score})
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if s.deletes[candidates[i].di].path != s.deletes[candidates[j].di].path {
			return s.deletes[candidates[i].di].path < s.deletes[candidates[j].di].path
		}
		return s.adds[candidates[i].ai].path < s.adds[candidates[j].ai].path
	})

	usedDeletes := make(map[int]bool)
	usedAdds := make(map[int]bool)
	var pairs []RenamePair
	for _, c := range candidates {
		if usedDeletes[c.di] || usedAdds[c.ai] {
			continue
		}
		usedDeletes[c.di] = true
		usedAdds[c.ai] = true
		d := s.deletes[c.di]
		a := s.adds[c.ai]
		pairs = append(pairs, RenamePair{
			Status:     StatusRename,
			Old:        d.path,
			New:        a.path,
			Score:      c.score,
			OldVersion: d.version,
			NewVersion: a.version,
		})
		s.voteDirRename(d.path, a.path)
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Old < pairs[j].Old })

	return pairs
}

func (s *sideRenameState) voteDirRename(oldPath, newPath string) {
	oldDir, newDir := path.Dir(oldPath), path.Dir(newPath)
	if oldDir == "." {
		oldDir = ""
	}
	if newDir == "." {
		newDir = ""
	}
	if oldDir == newDir {
		return
	}
	if s.dirRenameCount[oldDir] == nil {
		s.dirRenameCount[oldDir] = make(map[string]int)
	}
	s.dirRenameCount[oldDir][newDir]++
}

// blobReader is the narrow slice of the object store the rename engine
// needs to score candidate pairs by content similarity.
type blobReader interface {
	readBlobBytes(v Version) ([]byte, error)
}

// dirRenameResult is the outcome of majority-vote directory rename
// inference for one side.
type dirRenameResult struct {
	renames   map[string]string // oldDir -> newDir
	conflicts []string          // oldDir with a split vote
}

// computeDirectoryRenames picks, for every source directory with votes,
// the unique highest-count target (spec §4.3 "Directory renames").
func (s *sideRenameState) computeDirectoryRenames() *dirRenameResult {
	out := &dirRenameResult{renames: make(map[string]string)}
	dirs := make([]string, 0, len(s.dirRenameCount))
	for d := range s.dirRenameCount {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)

	for _, oldDir := range dirs {
		votes := s.dirRenameCount[oldDir]
		bestTarget := ""
		bestCount := 0
		tie := false
		targets := make([]string, 0, len(votes))
		for t := range votes {
			targets = append(targets, t)
		}
		sort.Strings(targets)
		for _, t := range targets {
			c := votes[t]
			if c == 0 {
				continue
			}
			switch {
			case c > bestCount:
				bestCount = c
				bestTarget = t
				tie = false
			case c == bestCount:
				tie = true
			}
		}
		if bestCount == 0 {
			continue
		}
		if tie {
			out.conflicts = append(out.conflicts, oldDir)
			continue
		}
		// Not actually renamed if the source directory still exists on
		// this side.
		if s.dirsRemoved[oldDir] {
			out.renames[oldDir] = bestTarget
		}
	}
	return out
}

// rerouteThroughDirRename finds the longest matching prefix of newPath in
// otherSideDirRenames and, if present and not itself a renamed source on
// thisSide, returns the rerouted path and true.
func rerouteThroughDirRename(newPath string, otherSideDirRenames map[string]string, thisSideDirRenames map[string]string) (string, bool) {
	if len(otherSideDirRenames) == 0 {
		return "", false
	}
	dir := path.Dir(newPath)
	if dir == "." {
		dir = ""
	}
	for {
		if target, ok := otherSideDirRenames[dir]; ok {
			if _, isSource := thisSideDirRenames[target]; isSource {
				return "", false
			}
			rest := strings.TrimPrefix(newPath, dir)
			rest = strings.TrimPrefix(rest, "/")
			rerouted := target
			if rest != "" {
				rerouted = path.Join(target, rest)
			}
			return rerouted, true
		}
		if dir == "" {
			return "", false
		}
		parent := path.Dir(dir)
		if parent == "." {
			parent = ""
		}
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

package mergeort

import (
	"sort"

	"github.com/odvcencio/got/pkg/object"
)

// Stage indices into a Record's Stages/Pathnames arrays and into a
// collector's per-side state.
const (
	stageBase  = 0
	stageOurs  = 1
	stageTheirs = 2
)

// storeReader is the object-store surface the collector needs to walk
// trees. It is satisfied by *object.Store.
type storeReader interface {
	ReadTree(h object.Hash) (*object.TreeObj, error)
	ReadBlob(h object.Hash) (*object.Blob, error)
}

// objectAdapter wraps a storeReader to also satisfy mergeort's narrow
// blobReader interface and to centralize blob writes for merged content.
type objectAdapter struct {
	store storeReader
	raw   *object.Store
}

func newObjectAdapter(s *object.Store) *objectAdapter {
	return &objectAdapter{store: s, raw: s}
}

func (a *objectAdapter) readBlobBytes(v Version) ([]byte, error) {
	if v.IsNull() || !(v.Mode.IsFile() || v.Mode.IsSymlink()) {
		return nil, nil
	}
	b, err := a.store.ReadBlob(v.OID)
	if err != nil {
		return nil, objectStoreErr(string(v.OID), err)
	}
	return b.Data, nil
}

func (a *objectAdapter) writeBlob(data []byte) (object.Hash, error) {
	h, err := a.raw.WriteBlob(&object.Blob{Data: data})
	if err != nil {
		return "", objectStoreErr("", err)
	}
	return h, nil
}

// collector performs the tri-tree synchronized walk (spec §4.2): for
// every path present on at least one side it either resolves the entry
// immediately (the early-resolution rules) or deposits a conflicted
// Record plus rename-detector bookkeeping for the entry processor
// (process.go) and rename engine (rename.go) to pick up afterward.
//
// got always recurses into every directory reachable from any of the
// three trees, rather than deferring subdirectories that look like
// trivial whole-subtree merges the way git's collect_merge_info does;
// the two strategies produce the same final tree, the deferred path is
// purely a performance optimization, and always-recurse is far simpler
// to get right.
type collector struct {
	adapter *objectAdapter
	store   *Store
	opts    *Options

	renameState [3]*sideRenameState // index stageOurs / stageTheirs populated
}

func newCollector(adapter *objectAdapter, opts *Options) *collector {
	return &collector{
		adapter: adapter,
		store:   NewStore(),
		opts:    opts,
		renameState: [3]*sideRenameState{
			nil,
			newSideRenameState(),
			newSideRenameState(),
		},
	}
}

// collect walks the three root trees and populates c.store. Before
// walking, it arms the rename cache handshake (spec §9) on each side from
// whatever the previous merge on this Options left behind, so
// noteAddition and detectRegularRenames can short-circuit during and
// after this same walk.
func (c *collector) collect(baseTree, side1Tree, side2Tree object.Hash) error {
	c.renameState[stageOurs].primeCache(c.opts.cacheSide1, baseTree, side1Tree)
	c.renameState[stageTheirs].primeCache(c.opts.cacheSide2, baseTree, side2Tree)
	return c.walk("", [3]object.Hash{baseTree, side1Tree, side2Tree})
}

type treeEntryBySide [3]*object.TreeEntry

func (c *collector) walk(dirPath string, hashes [3]object.Hash) error {
	var trees [3]*object.TreeObj
	for i, h := range hashes {
		if h == "" {
			continue
		}
		t, err := c.adapter.store.ReadTree(h)
		if err != nil {
			return objectStoreErr(dirPath, err)
		}
		trees[i] = t
	}

	byName := make(map[string]*treeEntryBySide)
	var order []string
	for i, t := range trees {
		if t == nil {
			continue
		}
		for ei := range t.Entries {
			e := &t.Entries[ei]
			entries, ok := byName[e.Name]
			if !ok {
				entries = &treeEntryBySide{}
				byName[e.Name] = entries
				order = append(order, e.Name)
			}
			entries[i] = e
		}
	}
	sort.Strings(order)

	for _, name := range order {
		entries := byName[name]
		fullPath := name
		if dirPath != "" {
			fullPath = dirPath + "/" + name
		}

		var fileMask, dirMask StageMask
		for i, e := range entries {
			if e == nil {
				continue
			}
			if e.IsDir {
				dirMask |= 1 << uint(i)
			} else {
				fileMask |= 1 << uint(i)
			}
		}

		if dirMask != 0 {
			var childHashes [3]object.Hash
			for i, e := range entries {
				if e != nil && e.IsDir {
					childHashes[i] = e.SubtreeHash
				}
			}
			// Track directories removed relative to base on each side.
			if entries[stageBase] != nil && entries[stageBase].IsDir {
				for _, side := range []int{stageOurs, stageTheirs} {
					if entries[side] == nil || !entries[side].IsDir {
						c.renameState[side].markDirRemoved(fullPath)
					}
				}
			}
			if err := c.walk(fullPath, childHashes); err != nil {
				return err
			}
		}

		if fileMask == 0 {
			continue
		}

		if err := c.collectLeaf(fullPath, dirPath, entries, fileMask, dirMask); err != nil {
			return err
		}
	}
	return nil
}

func (c *collector) collectLeaf(fullPath, dirPath string, entries *treeEntryBySide, fileMask, dirMask StageMask) error {
	dfConflict := dirMask != 0
	var stages [3]Version
	for i, e := range entries {
		if e == nil || e.IsDir {
			stages[i] = Null
			continue
		}
		stages[i] = Version{OID: e.BlobHash, Mode: ModeFromString(e.Mode)}
		if e.Mode == "" {
			stages[i].Mode = ModeFile
		}
	}

	matchMask := computeMatchMask(stages)
	dirName := c.store.Intern(dirPath)

	// Early resolution rules (spec §4.2): all four require filemask==7
	// (base, side1, and side2 all present) — every other shape, no
	// matter how "obviously" resolvable its content looks (an unedited
	// delete, a clean add on one side, a delete mirrored on both sides),
	// must fall through to collectRenameInfo below so it registers as a
	// rename-candidate deletion/addition. Shortcutting those here would
	// make the corresponding path invisible to detectRegularRenames and
	// to the directory-rename vote; the entry processor's match_mask
	// branch (process.go's resolveByMatch) resolves them just as
	// cleanly once rename detection has had a chance to see them.
	if !dfConflict && fileMask == (1<<stageBase|1<<stageOurs|1<<stageTheirs) {
		switch {
		case matchMask == MatchAllThree:
			c.store.Put(fullPath, NewResolved(stages[stageBase], dirName, BasenameOffset(fullPath)))
			return nil
		case stages[stageOurs].Equal(stages[stageTheirs]):
			// side1 and side2 agree; base is the lone dissenter.
			c.store.Put(fullPath, NewResolved(stages[stageOurs], dirName, BasenameOffset(fullPath)))
			return nil
		case stages[stageOurs].Equal(stages[stageBase]):
			// side1 unchanged; side2 is the sole modifier.
			c.store.Put(fullPath, NewResolved(stages[stageTheirs], dirName, BasenameOffset(fullPath)))
			return nil
		case stages[stageTheirs].Equal(stages[stageBase]):
			// side2 unchanged; side1 is the sole modifier.
			c.store.Put(fullPath, NewResolved(stages[stageOurs], dirName, BasenameOffset(fullPath)))
			return nil
		}
	}

	rec := NewConflicted(stages, fileMask, dirMask, matchMask, dirName, BasenameOffset(fullPath))
	rec.DFConflict = dfConflict
	c.store.Put(fullPath, rec)

	if c.opts.DetectRenames {
		c.collectRenameInfo(fullPath, stages, fileMask)
	}
	return nil
}

// computeMatchMask returns the symmetric equality code across the three
// stages (0/3/5/6/7), treating two absent stages as equal.
func computeMatchMask(stages [3]Version) MatchMask {
	baseEqOurs := stages[stageBase].Equal(stages[stageOurs])
	baseEqTheirs := stages[stageBase].Equal(stages[stageTheirs])
	oursEqTheirs := stages[stageOurs].Equal(stages[stageTheirs])

	switch {
	case baseEqOurs && baseEqTheirs:
		return MatchAllThree
	case baseEqOurs:
		return MatchBaseSide1
	case baseEqTheirs:
		return MatchBaseSide2
	case oursEqTheirs:
		return MatchSide1Side2
	default:
		return MatchNone
	}
}

// collectRenameInfo feeds a conflicted leaf's per-side deletions/adds
// into the rename engine (spec §4.3 collect_rename_info): a path absent
// on a side but present in base is a deletion candidate there; a path
// present on a side but absent from base is an addition candidate there.
func (c *collector) collectRenameInfo(fullPath string, stages [3]Version, fileMask StageMask) {
	for _, side := range []int{stageOurs, stageTheirs} {
		sideBit := StageMask(1 << uint(side))
		baseBit := StageMask(1 << uint(stageBase))
		switch {
		case fileMask&baseBit != 0 && fileMask&sideBit == 0:
			c.renameState[side].noteDeletion(fullPath, stages[stageBase])
		case fileMask&baseBit == 0 && fileMask&sideBit != 0:
			c.renameState[side].noteAddition(fullPath, stages[side])
		}
	}
}

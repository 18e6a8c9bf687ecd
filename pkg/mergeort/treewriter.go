package mergeort

import (
	"strings"

	"github.com/odvcencio/got/pkg/object"
)

// writtenEntry is a not-yet-folded-into-a-tree child record, either a
// leaf (file/symlink/submodule) or a previously flushed subdirectory.
type writtenEntry struct {
	name  string
	mode  Mode
	oid   object.Hash
	isDir bool
}

// dirFrame is one stack frame of write_completed_directories: dir is the
// directory path this frame accumulates children for, offset is where
// its children begin in the shared entries slice.
type dirFrame struct {
	dir    string
	offset int
}

// treeWriter walks the path state in reverse tree order, running the
// entry processor on whatever is still unclean, and folds the resulting
// flat entry list into tree objects bottom-up (spec §4.5).
type treeWriter struct {
	adapter   *objectAdapter
	store     *Store
	processor *processor

	entries []writtenEntry
	stack   []dirFrame
}

func newTreeWriter(adapter *objectAdapter, store *Store, proc *processor) *treeWriter {
	w := &treeWriter{adapter: adapter, store: store, processor: proc}
	// A split (directory/file conflict or distinct-type relocation) puts
	// its relocated record at a fresh path in the same directory as the
	// one currently being processed, so the frame completeDirectories
	// just opened for that directory is always the right place for it.
	proc.emitExtra = func(name string, result Version) {
		w.entries = append(w.entries, writtenEntry{name: name, mode: result.Mode, oid: result.OID})
	}
	return w
}

// write runs the tree writer and returns the root tree's hash.
func (w *treeWriter) write() (object.Hash, error) {
	w.stack = []dirFrame{{dir: "", offset: 0}}

	paths := w.store.SortedPaths()
	for i := len(paths) - 1; i >= 0; i-- {
		path := paths[i]
		rec := w.store.Get(path)

		if err := w.completeDirectories(rec.DirectoryName); err != nil {
			return "", err
		}

		if !rec.Clean {
			if err := w.processor.process(path, rec); err != nil {
				return "", err
			}
		}

		if rec.Result.IsNull() {
			continue
		}
		w.entries = append(w.entries, writtenEntry{
			name: path[BasenameOffset(path):],
			mode: rec.Result.Mode,
			oid:  rec.Result.OID,
		})
	}

	if err := w.completeDirectories(""); err != nil {
		return "", err
	}

	if len(w.stack) != 1 || w.stack[0].offset != 0 {
		return "", inputInvalidErr("tree writer: stack did not collapse to a single root frame")
	}

	return w.flushRoot()
}

// completeDirectories pops every stack frame that newDir is not nested
// under (or equal to), flushing each into a tree object and recording it
// as an entry of its own parent frame, then (if needed) pushes fresh
// frames for every directory level from the remaining top down to newDir.
func (w *treeWriter) completeDirectories(newDir string) error {
	for len(w.stack) > 1 {
		top := w.stack[len(w.stack)-1]
		if top.dir == newDir || strings.HasPrefix(newDir, top.dir+"/") {
			break
		}
		if err := w.flushFrame(top); err != nil {
			return err
		}
		w.stack = w.stack[:len(w.stack)-1]
	}

	top := w.stack[len(w.stack)-1]
	for top.dir != newDir {
		rest := newDir
		if top.dir != "" {
			rest = newDir[len(top.dir)+1:]
		}
		next := newDir
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			next = newDir[:len(newDir)-len(rest)+i]
		}
		top = dirFrame{dir: next, offset: len(w.entries)}
		w.stack = append(w.stack, top)
	}
	return nil
}

// flushFrame emits frame's accumulated children as a tree object (unless
// empty, in which case the directory collapses to nothing) and records
// the result as an entry in the now-current (parent) frame.
func (w *treeWriter) flushFrame(frame dirFrame) error {
	children := w.entries[frame.offset:]
	w.entries = w.entries[:frame.offset]
	if len(children) == 0 {
		return nil
	}

	hash, err := w.writeTreeObject(children)
	if err != nil {
		return err
	}

	name := frame.dir[BasenameOffset(frame.dir):]
	w.entries = append(w.entries, writtenEntry{name: name, mode: ModeDir, oid: hash, isDir: true})
	return nil
}

// flushRoot writes the root frame unconditionally (an empty repository
// still needs a valid, if empty, root tree) and returns its hash.
func (w *treeWriter) flushRoot() (object.Hash, error) {
	return w.writeTreeObject(w.entries)
}

func (w *treeWriter) writeTreeObject(children []writtenEntry) (object.Hash, error) {
	tr := &object.TreeObj{Entries: make([]object.TreeEntry, len(children))}
	for i, c := range children {
		tr.Entries[i] = object.TreeEntry{
			Name:        c.name,
			IsDir:       c.isDir,
			Mode:        modeToTreeString(c),
			BlobHash:    blobHashFor(c),
			SubtreeHash: subtreeHashFor(c),
		}
	}
	h, err := w.adapter.raw.WriteTree(tr)
	if err != nil {
		return "", objectStoreErr("", err)
	}
	return h, nil
}

func modeToTreeString(c writtenEntry) string {
	if c.isDir {
		return object.TreeModeDir
	}
	switch c.mode {
	case ModeExec:
		return object.TreeModeExecutable
	case ModeSymlink:
		return object.TreeModeSymlink
	case ModeSubmodule:
		return object.TreeModeSubmodule
	default:
		return object.TreeModeFile
	}
}

// blobHashFor returns the entry's blob slot. Submodule commit OIDs are
// stored here too: the object store's TreeEntry has no dedicated gitlink
// field, and nothing dereferences BlobHash as an actual blob when Mode
// says submodule.
func blobHashFor(c writtenEntry) object.Hash {
	if c.isDir {
		return ""
	}
	return c.oid
}

func subtreeHashFor(c writtenEntry) object.Hash {
	if !c.isDir {
		return ""
	}
	return c.oid
}

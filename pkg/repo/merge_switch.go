package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/odvcencio/got/pkg/mergeort"
	"github.com/odvcencio/got/pkg/object"
)

// mergeAutoMarkerName is the file that records the in-progress merge
// result's tree, mirroring git's MERGE_HEAD: a crash or interrupted
// conflict resolution leaves enough state behind to resume or inspect
// what switch_to_result last wrote.
const mergeAutoMarkerName = "MERGE_AUTO"

// switchToResult is spec §6's switch_to_result: it materializes res.Tree
// into the worktree relative to the tree ours (headTree) was built from,
// removing paths the merge dropped and writing every path that is new or
// changed, then reports what happened per path. When the result has no
// conflicts it also rewrites staging to match res.Tree. It never commits,
// and for a conflicted result it leaves staging to the caller, since
// cherry-pick/revert stage differently than a two-parent merge.
func (r *Repo) switchToResult(oursTree object.Hash, res *mergeort.Result) (*MergeReport, []mergeConflictState, []string, error) {
	oursFiles, err := r.FlattenTree(oursTree)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("flatten ours tree: %w", err)
	}
	newFiles, err := r.FlattenTree(res.Tree)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("flatten result tree: %w", err)
	}
	oldMap := indexByPath(oursFiles)
	newMap := indexByPath(newFiles)
	unmerged := make(map[string]bool, len(res.Unmerged))
	for _, p := range res.Unmerged {
		unmerged[p] = true
	}

	// Remove paths the merge dropped.
	for path := range oldMap {
		if _, ok := newMap[path]; ok {
			continue
		}
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(path))
		if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
			return nil, nil, nil, fmt.Errorf("remove %q: %w", path, err)
		}
		r.removeEmptyParents(filepath.Dir(absPath))
	}

	report := &MergeReport{}
	var conflictedFiles []mergeConflictState
	for _, path := range sortedPaths(newMap) {
		nf := newMap[path]
		of, existed := oldMap[path]
		changed := !existed || of.BlobHash != nf.BlobHash || normalizeFileMode(of.Mode) != normalizeFileMode(nf.Mode)
		if changed {
			if err := r.writeWorktreeFile(path, nf); err != nil {
				return nil, nil, nil, err
			}
		}

		if unmerged[path] {
			report.HasConflicts = true
			report.TotalConflicts++
			ce := res.Conflicts[path]
			report.Files = append(report.Files, FileMergeReport{Path: path, Status: "conflict", ConflictCount: 1})
			conflictedFiles = append(conflictedFiles, mergeConflictState{
				path:       path,
				baseHash:   ce.Base.OID,
				oursHash:   ce.Ours.OID,
				theirsHash: ce.Theirs.OID,
				mode:       normalizeFileMode(nf.Mode),
			})
			continue
		}

		switch {
		case !existed:
			report.Files = append(report.Files, FileMergeReport{Path: path, Status: "added"})
		case changed:
			report.Files = append(report.Files, FileMergeReport{Path: path, Status: "clean"})
		}
	}

	var deletedPaths []string
	for path := range oldMap {
		if _, ok := newMap[path]; !ok {
			report.Files = append(report.Files, FileMergeReport{Path: path, Status: "deleted"})
			deletedPaths = append(deletedPaths, path)
		}
	}

	if !report.HasConflicts {
		stg := &Staging{Entries: make(map[string]*StagingEntry, len(newFiles))}
		for _, f := range newFiles {
			absPath := filepath.Join(r.RootDir, filepath.FromSlash(f.Path))
			info, err := os.Stat(absPath)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("stat %q: %w", f.Path, err)
			}
			stg.Entries[f.Path] = &StagingEntry{
				Path:     f.Path,
				BlobHash: f.BlobHash,
				Mode:     normalizeFileMode(f.Mode),
				ModTime:  info.ModTime().Unix(),
				Size:     info.Size(),
			}
		}
		if err := r.WriteStaging(stg); err != nil {
			return nil, nil, nil, fmt.Errorf("write staging: %w", err)
		}
	}

	return report, conflictedFiles, deletedPaths, nil
}

// writeWorktreeFile materializes f's blob at path inside the worktree,
// creating parent directories as needed.
func (r *Repo) writeWorktreeFile(path string, f TreeFileEntry) error {
	absPath := filepath.Join(r.RootDir, filepath.FromSlash(path))
	dir := filepath.Dir(absPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %q: %w", dir, err)
	}
	blob, err := r.Store.ReadBlob(f.BlobHash)
	if err != nil {
		return fmt.Errorf("read blob for %q: %w", path, err)
	}
	if err := os.WriteFile(absPath, blob.Data, filePermFromMode(f.Mode)); err != nil {
		return fmt.Errorf("write %q: %w", path, err)
	}
	return nil
}

func sortedPaths(m map[string]TreeFileEntry) []string {
	paths := make([]string, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (r *Repo) mergeAutoMarkerPath() string {
	return filepath.Join(r.GotDir, mergeAutoMarkerName)
}

// writeMergeAutoMarker records tree's hex OID in .got/MERGE_AUTO,
// newline-terminated, so a later `got status` or resumed conflict
// resolution can recover which in-memory merge result produced the
// currently staged conflict entries.
func (r *Repo) writeMergeAutoMarker(tree object.Hash) error {
	data := []byte(string(tree) + "\n")
	if err := os.WriteFile(r.mergeAutoMarkerPath(), data, 0o644); err != nil {
		return fmt.Errorf("write merge auto marker: %w", err)
	}
	return nil
}

// clearMergeAutoMarker removes .got/MERGE_AUTO once a merge concludes
// (clean commit, or abort). Absence of the file is not an error.
func (r *Repo) clearMergeAutoMarker() error {
	if err := os.Remove(r.mergeAutoMarkerPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear merge auto marker: %w", err)
	}
	return nil
}

// ReadMergeAutoMarker returns the tree OID left by an unresolved merge's
// switch_to_result call, if any.
func (r *Repo) ReadMergeAutoMarker() (object.Hash, bool, error) {
	data, err := os.ReadFile(r.mergeAutoMarkerPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read merge auto marker: %w", err)
	}
	s := string(data)
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return object.Hash(s), true, nil
}

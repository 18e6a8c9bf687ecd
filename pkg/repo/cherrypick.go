package repo

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/odvcencio/got/pkg/mergeort"
	"github.com/odvcencio/got/pkg/object"
)

// PickKind distinguishes a whole-commit cherry-pick from a revert; both
// are driven by the same tri-tree merge, just with the target commit's
// diff applied in opposite direction (spec §1: "the engine behind merge,
// cherry-pick, rebase, and revert").
type PickKind int

const (
	PickNone PickKind = iota
	PickCherryPick
	PickRevert
)

// PickReport mirrors MergeReport for a whole-commit cherry-pick/revert.
type PickReport struct {
	Files          []FileMergeReport
	HasConflicts   bool
	TotalConflicts int
	CommitHash     object.Hash // set if auto-committed (clean)
}

// CherryPick applies targetHash's first-parent diff onto HEAD: the merge
// base is the target's parent, "ours" is HEAD, "theirs" is the target
// commit itself. A clean result is committed with HEAD as its sole
// parent and the target's message (annotated per DetectCherryPickOrRevert
// conventions); a conflicted result is staged like Merge's conflict path.
func (r *Repo) CherryPick(targetHash object.Hash) (*PickReport, error) {
	return r.pickCommit(targetHash, PickCherryPick)
}

// Revert applies targetHash's first-parent diff onto HEAD in reverse:
// "ours" is HEAD, "theirs" is the target's parent, and the merge base is
// the target commit itself, undoing exactly what the commit introduced.
func (r *Repo) Revert(targetHash object.Hash) (*PickReport, error) {
	return r.pickCommit(targetHash, PickRevert)
}

func (r *Repo) pickCommit(targetHash object.Hash, kind PickKind) (*PickReport, error) {
	targetHash = object.Hash(strings.TrimSpace(string(targetHash)))
	if targetHash == "" {
		return nil, fmt.Errorf("pick: target commit is required")
	}
	targetCommit, err := r.Store.ReadCommit(targetHash)
	if err != nil {
		return nil, fmt.Errorf("pick: read target commit %s: %w", targetHash, err)
	}
	if len(targetCommit.Parents) == 0 {
		return nil, fmt.Errorf("pick: commit %s has no parent; cannot derive delta", targetHash)
	}
	parentCommit, err := r.Store.ReadCommit(targetCommit.Parents[0])
	if err != nil {
		return nil, fmt.Errorf("pick: read parent commit %s: %w", targetCommit.Parents[0], err)
	}

	headHash, err := r.ResolveRef("HEAD")
	if err != nil {
		return nil, fmt.Errorf("pick: resolve HEAD: %w", err)
	}
	headCommit, err := r.Store.ReadCommit(headHash)
	if err != nil {
		return nil, fmt.Errorf("pick: read HEAD commit: %w", err)
	}

	var baseTree, theirsTree object.Hash
	var message string
	switch kind {
	case PickCherryPick:
		baseTree, theirsTree = parentCommit.TreeHash, targetCommit.TreeHash
		message = fmt.Sprintf("%s\n\n(cherry picked from commit %s)", targetCommit.Message, targetHash)
	case PickRevert:
		baseTree, theirsTree = targetCommit.TreeHash, parentCommit.TreeHash
		message = fmt.Sprintf("Revert %q\n\nThis reverts commit %s.", firstLine(targetCommit.Message), targetHash)
	default:
		return nil, fmt.Errorf("pick: unknown kind %d", kind)
	}

	attrs, err := mergeort.LoadAttrIndex(filepath.Join(r.GotDir, "merge.toml"))
	if err != nil {
		return nil, fmt.Errorf("pick: %w", err)
	}
	opts := mergeort.NewOptions("base", "ours", "theirs")
	opts.Attrs = attrs.WithDefault(mergeort.MergeStructural)
	if err := opts.Start(); err != nil {
		return nil, fmt.Errorf("pick: %w", err)
	}
	res, err := mergeort.NonRecursive(r.Store, opts, baseTree, headCommit.TreeHash, theirsTree)
	if err != nil {
		return nil, fmt.Errorf("pick: %w", err)
	}

	mergeRep, conflictedFiles, deletedPaths, err := r.switchToResult(headCommit.TreeHash, res)
	if err != nil {
		return nil, fmt.Errorf("pick: %w", err)
	}
	report := &PickReport{Files: mergeRep.Files, HasConflicts: mergeRep.HasConflicts, TotalConflicts: mergeRep.TotalConflicts}

	if !report.HasConflicts {
		commitHash, err := r.commitSingleParent(message, "got-pick", headHash)
		if err != nil {
			return nil, fmt.Errorf("pick: commit: %w", err)
		}
		report.CommitHash = commitHash
		if err := r.clearMergeAutoMarker(); err != nil {
			return nil, fmt.Errorf("pick: %w", err)
		}
	} else {
		if err := r.stageConflictState(conflictedFiles, deletedPaths); err != nil {
			return nil, fmt.Errorf("pick: stage conflicts: %w", err)
		}
		if err := r.writeMergeAutoMarker(res.Tree); err != nil {
			return nil, fmt.Errorf("pick: %w", err)
		}
	}

	return report, nil
}

// commitSingleParent mirrors commitMerge for a one-parent commit.
func (r *Repo) commitSingleParent(message, author string, parent object.Hash) (object.Hash, error) {
	stg, err := r.ReadStaging()
	if err != nil {
		return "", fmt.Errorf("%w", err)
	}
	if len(stg.Entries) == 0 {
		return "", fmt.Errorf("nothing staged")
	}
	treeHash, err := r.BuildTree(stg)
	if err != nil {
		return "", err
	}
	commitObj := &object.CommitObj{
		TreeHash:  treeHash,
		Parents:   []object.Hash{parent},
		Author:    author,
		Timestamp: time.Now().Unix(),
		Message:   message,
	}
	commitHash, err := r.Store.WriteCommit(commitObj)
	if err != nil {
		return "", fmt.Errorf("write: %w", err)
	}
	head, err := r.Head()
	if err != nil {
		return "", fmt.Errorf("read HEAD: %w", err)
	}
	if strings.HasPrefix(head, "refs/") {
		if err := r.UpdateRefCAS(head, commitHash, parent); err != nil {
			return "", fmt.Errorf("update ref %q: %w", head, err)
		}
	} else {
		if err := r.UpdateRefCAS("HEAD", commitHash, parent); err != nil {
			return "", fmt.Errorf("update detached HEAD: %w", err)
		}
	}
	r.invalidateStatusCache()
	return commitHash, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// cherryPickMarkerRE matches git's "(cherry picked from commit <hash>)"
// trailer, and a revert-style "This reverts commit <hash>." line, the two
// provenance markers approximate-picks.c scans for.
var (
	cherryPickMarkerRE = regexp.MustCompile(`(?m)^\(cherry picked from commit ([0-9a-fA-F]+)\)\s*$`)
	revertMarkerRE     = regexp.MustCompile(`(?m)^This reverts commit ([0-9a-fA-F]+)\.?\s*$`)
)

// DetectCherryPickOrRevert scans a commit message for the provenance
// trailers CherryPick/Revert write, approximating git's
// cherry_pick_or_revert: a textual scan, not a guarantee the commit was
// actually produced that way (spec §1 treats this as a black-box
// classifier, same as ll-merge).
func DetectCherryPickOrRevert(msg string) (kind PickKind, hash object.Hash, ok bool) {
	if m := cherryPickMarkerRE.FindStringSubmatch(msg); m != nil {
		return PickCherryPick, object.Hash(m[1]), true
	}
	if m := revertMarkerRE.FindStringSubmatch(msg); m != nil {
		return PickRevert, object.Hash(m[1]), true
	}
	return PickNone, "", false
}

package repo

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/odvcencio/got/pkg/mergeort"
	"github.com/odvcencio/got/pkg/object"
)

// RebaseReport is FastRebase's outcome: either every replayed commit
// merged clean and the branch now points at the rebuilt history, or the
// first conflicting commit stopped the replay before the branch ref,
// index or worktree changed.
type RebaseReport struct {
	Replayed       []object.Hash // new commit hashes, oldest first
	ConflictAt     object.Hash   // original commit hash that conflicted, if any
	ConflictReport *MergeReport
	NewHead        object.Hash
}

// FastRebase replays branchName's commits unique to it (since its merge
// base with upstreamName) onto upstreamName's tip, purely via repeated
// in-memory non-recursive merges against synthetic parents — it never
// touches the index or working tree until every commit has replayed
// clean, matching the demo front-end in builtin/fast-rebase.c that
// exercises merge_incore_nonrecursive without a real checkout loop.
// A conflicting commit aborts the whole replay; the commits replayed
// before it stay in the object store, unreferenced, and the branch ref,
// index and worktree are left unchanged.
func (r *Repo) FastRebase(upstreamName, branchName string) (*RebaseReport, error) {
	upstreamHash, err := r.resolveBranchOrHash(upstreamName)
	if err != nil {
		return nil, fmt.Errorf("fast-rebase: resolve upstream %q: %w", upstreamName, err)
	}
	branchHash, err := r.resolveBranchOrHash(branchName)
	if err != nil {
		return nil, fmt.Errorf("fast-rebase: resolve branch %q: %w", branchName, err)
	}

	baseHash, err := r.FindMergeBase(upstreamHash, branchHash)
	if err != nil {
		return nil, fmt.Errorf("fast-rebase: %w", err)
	}

	commits, err := r.collectFirstParentChain(branchHash, baseHash)
	if err != nil {
		return nil, fmt.Errorf("fast-rebase: %w", err)
	}
	if len(commits) == 0 {
		return &RebaseReport{NewHead: upstreamHash}, nil
	}

	attrs, err := mergeort.LoadAttrIndex(filepath.Join(r.GotDir, "merge.toml"))
	if err != nil {
		return nil, fmt.Errorf("fast-rebase: %w", err)
	}

	upstreamCommit, err := r.Store.ReadCommit(upstreamHash)
	if err != nil {
		return nil, fmt.Errorf("fast-rebase: read upstream commit: %w", err)
	}

	newParentHash := upstreamHash
	newParentTree := upstreamCommit.TreeHash
	report := &RebaseReport{}

	for _, c := range commits {
		var origParentTree object.Hash
		if len(c.Parents) > 0 {
			origParent, err := r.Store.ReadCommit(c.Parents[0])
			if err != nil {
				return nil, fmt.Errorf("fast-rebase: read parent of %s: %w", c.hash, err)
			}
			origParentTree = origParent.TreeHash
		}

		opts := mergeort.NewOptions("base", "upstream", "replayed")
		opts.Attrs = attrs.WithDefault(mergeort.MergeStructural)
		if err := opts.Start(); err != nil {
			return nil, fmt.Errorf("fast-rebase: %w", err)
		}
		res, err := mergeort.NonRecursive(r.Store, opts, origParentTree, newParentTree, c.commit.TreeHash)
		if err != nil {
			return nil, fmt.Errorf("fast-rebase: merge %s: %w", c.hash, err)
		}

		if !res.Clean {
			report.ConflictAt = c.hash
			report.ConflictReport = &MergeReport{HasConflicts: true, TotalConflicts: len(res.Unmerged)}
			return report, nil
		}

		newCommit := &object.CommitObj{
			TreeHash:  res.Tree,
			Parents:   []object.Hash{newParentHash},
			Author:    c.commit.Author,
			Timestamp: time.Now().Unix(),
			Message:   c.commit.Message,
		}
		newHash, err := r.Store.WriteCommit(newCommit)
		if err != nil {
			return nil, fmt.Errorf("fast-rebase: write replayed commit: %w", err)
		}
		report.Replayed = append(report.Replayed, newHash)
		newParentHash = newHash
		newParentTree = res.Tree
	}

	report.NewHead = newParentHash

	// Every commit replayed clean: now, and only now, update the branch
	// ref and sync the worktree/staging, mirroring switch_to_result.
	oldTip := branchHash
	ref := "refs/heads/" + branchName
	if err := r.UpdateRefCAS(ref, newParentHash, oldTip); err != nil {
		return nil, fmt.Errorf("fast-rebase: update ref %q: %w", ref, err)
	}

	oldTipCommit, err := r.Store.ReadCommit(oldTip)
	if err != nil {
		return nil, fmt.Errorf("fast-rebase: read old tip: %w", err)
	}
	finalRes := &mergeort.Result{Clean: true, Tree: newParentTree}
	if _, _, _, err := r.switchToResult(oldTipCommit.TreeHash, finalRes); err != nil {
		return nil, fmt.Errorf("fast-rebase: %w", err)
	}
	r.invalidateStatusCache()

	return report, nil
}

type chainCommit struct {
	hash   object.Hash
	commit *object.CommitObj
}

// collectFirstParentChain walks from tip's first-parent chain back to
// (but excluding) base, returning the chain oldest-first.
func (r *Repo) collectFirstParentChain(tip, base object.Hash) ([]chainCommit, error) {
	var chain []chainCommit
	current := tip
	for current != "" && current != base {
		c, err := r.Store.ReadCommit(current)
		if err != nil {
			return nil, fmt.Errorf("read commit %s: %w", current, err)
		}
		chain = append(chain, chainCommit{hash: current, commit: c})
		if len(c.Parents) == 0 {
			break
		}
		current = c.Parents[0]
	}
	// reverse to oldest-first
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// resolveBranchOrHash accepts either a branch name or a raw commit hash.
func (r *Repo) resolveBranchOrHash(name string) (object.Hash, error) {
	if h, err := r.ResolveRef(name); err == nil && h != "" {
		return h, nil
	}
	trimmed := object.Hash(strings.TrimSpace(name))
	if _, err := r.Store.ReadCommit(trimmed); err == nil {
		return trimmed, nil
	}
	return r.ResolveRef(name)
}

package mergeort

import "github.com/odvcencio/got/pkg/object"

// CommitGraphQuerier is the narrow ancestry-query surface the content
// merger needs to fast-forward submodule conflicts (spec §6
// in_merge_bases / commit_parents).
type CommitGraphQuerier interface {
	// InMergeBases reports whether ancestor is reachable from
	// descendant's commit graph.
	InMergeBases(ancestor, descendant object.Hash) (bool, error)
}

// DirectoryRenameMode controls how a directory-level rename inferred by
// majority vote is applied.
type DirectoryRenameMode int

const (
	// DirRenameNone disables directory rename detection.
	DirRenameNone DirectoryRenameMode = iota
	// DirRenameConflict detects directory renames but only emits a
	// CONFLICT advisory instead of rerouting paths.
	DirRenameConflict
	// DirRenameTrue silently reroutes new/renamed paths through the
	// inferred directory rename.
	DirRenameTrue
)

// RecursiveVariant is the tiebreaker used for symlink and otherwise
// unresolvable content when operating at a given recursion depth.
type RecursiveVariant int

const (
	VariantNormal RecursiveVariant = iota
	VariantOurs
	VariantTheirs
)

const (
	// DefaultRenameScore is the default similarity threshold (out of
	// MaxRenameScore) a (delete, add) pair must clear to be treated as
	// a rename.
	DefaultRenameScore = 50
	// MaxRenameScore is the maximum value RenameScore can take.
	MaxRenameScore = 100
	// DefaultRenameLimit is the soft cap on the number of candidate
	// (delete, add) pairs the similarity detector will score pairwise.
	DefaultRenameLimit = 1000
)

// XDLOpt is a bitmask of diff-algorithm flags. Only the algorithm
// selection bits are modeled; unknown bits are preserved but ignored.
type XDLOpt uint32

const (
	XDLHistogram XDLOpt = 1 << iota
	XDLPatience
	XDLMinimal
)

// Options configures a merge. Two merges on the same Options are
// serialized by contract: Start, then NonRecursive or Recursive, then
// either SwitchToResult or Finalize, in that order.
type Options struct {
	Ancestor string // label for the merge base in conflict markers
	Branch1  string // label for side 1
	Branch2  string // label for side 2

	DetectRenames           bool
	DetectDirectoryRenames  DirectoryRenameMode
	RenameLimit             int
	RenameScore             int
	RecursiveVariant        RecursiveVariant
	Renormalize             bool
	SubtreeShift            string
	XDLOpts                 XDLOpt

	// Attrs supplies per-path merge driver/attribute lookups (§ DOMAIN
	// STACK "attribute-aware renormalization"). Nil means "no attributes
	// configured": every path uses the default line-based ll-merge.
	Attrs *AttrIndex

	// CommitGraph resolves submodule fast-forward checks during content
	// merge (spec §4.4 "Submodules"). Nil means every submodule conflict
	// is reported without a fast-forward attempt.
	CommitGraph CommitGraphQuerier

	// needed is filled in by the rename detector when RenameLimit was
	// exceeded, surfaced to the caller as a diagnostic (spec §7,
	// RenameLimitExceeded).
	neededRenameLimit int

	started  bool
	finished bool

	// rename cache handshake (spec §9 "expose this as a thin handshake
	// on the result object"): valid for exactly one side per merge.
	cacheSide1 *renameCache
	cacheSide2 *renameCache
}

// NewOptions returns an Options populated with the defaults the spec
// calls out (histogram diff algorithm, DefaultRenameScore/-Limit).
func NewOptions(ancestor, branch1, branch2 string) *Options {
	return &Options{
		Ancestor:               ancestor,
		Branch1:                branch1,
		Branch2:                branch2,
		DetectRenames:          true,
		DetectDirectoryRenames: DirRenameConflict,
		RenameLimit:            DefaultRenameLimit,
		RenameScore:            DefaultRenameScore,
		XDLOpts:                XDLHistogram,
	}
}

// Start validates the options and marks the serialized-call contract as
// begun. Must be called exactly once before NonRecursive/Recursive.
func (o *Options) Start() error {
	if o.started && !o.finished {
		return inputInvalidErr("merge options already started; call Finalize before reuse")
	}
	if o.RenameScore < 0 || o.RenameScore > MaxRenameScore {
		return inputInvalidErr("rename score out of range")
	}
	if o.RenameLimit < 0 {
		return inputInvalidErr("rename limit must be non-negative")
	}
	o.started = true
	o.finished = false
	return nil
}

// NeededRenameLimit returns the rename-limit value that would have been
// required to avoid truncating rename detection, or 0 if the limit was
// never exceeded.
func (o *Options) NeededRenameLimit() int { return o.neededRenameLimit }

// Finalize ends the current merge call sequence, releasing per-merge
// state so the Options can be reused for another merge.
func (o *Options) Finalize(result *Result) error {
	if !o.started {
		return inputInvalidErr("finalize called before start")
	}
	o.finished = true
	o.neededRenameLimit = 0
	return nil
}

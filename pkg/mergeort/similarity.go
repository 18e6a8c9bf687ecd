package mergeort

import "github.com/odvcencio/got/pkg/diff3"

// similarityScore estimates how similar two file contents are, scaled to
// [0, MaxRenameScore], the way Git's diffcore-rename estimates
// similarity from the fraction of unchanged bytes. Lines are used here
// instead of bytes since the engine already works in terms of line-based
// diffs (pkg/diff3.LineDiff, the same Myers implementation used for
// content merging).
func similarityScore(a, b []byte) int {
	if len(a) == 0 && len(b) == 0 {
		return MaxRenameScore
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	ops := diff3.LineDiff(a, b)
	var common, total int
	for _, op := range ops {
		total += len(op.Content) + 1 // +1 approximates the line terminator
		if op.Type == diff3.Equal {
			common += len(op.Content) + 1
		}
	}
	if total == 0 {
		return MaxRenameScore
	}
	return (common * MaxRenameScore) / total
}

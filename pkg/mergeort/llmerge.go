package mergeort

import (
	"bytes"
	"strings"

	"github.com/odvcencio/got/pkg/diff3"
	"github.com/odvcencio/got/pkg/merge"
)

// LLMergeStatus mirrors the external ll-merge interface's status code:
// 0 clean, >0 conflict count, <0 error.
type LLMergeStatus int

// LLMergeOpts configures a single content-level merge call (spec §6).
type LLMergeOpts struct {
	Renormalize     bool
	ExtraMarkerSize int // extra '<'/'='/'>' characters beyond the base 7
	Variant         RecursiveVariant
}

const baseMarkerWidth = 7

// llMerge is the black-box three-way text merger the spec treats as an
// external collaborator; this is got's own implementation of that
// interface; process.go and renameapply.go only depend on this signature.
func llMerge(origBytes []byte, labelBase string, aBytes []byte, labelA string, bBytes []byte, labelB string, kind ContentMergeKind, opts LLMergeOpts) ([]byte, LLMergeStatus) {
	switch kind {
	case MergeBinary:
		return binaryMerge(origBytes, aBytes, bBytes)
	case MergeUnion:
		return unionMerge(origBytes, aBytes, bBytes)
	case MergeStructural:
		if out, status, ok := structuralMerge(origBytes, aBytes, bBytes); ok {
			return out, status
		}
		fallthrough
	default:
		return textMerge(origBytes, labelBase, aBytes, labelA, bBytes, labelB, opts)
	}
}

func binaryMerge(origBytes, aBytes, bBytes []byte) ([]byte, LLMergeStatus) {
	if bytes.Equal(aBytes, bBytes) {
		return aBytes, 0
	}
	if bytes.Equal(origBytes, aBytes) {
		return bBytes, 0
	}
	if bytes.Equal(origBytes, bBytes) {
		return aBytes, 0
	}
	return aBytes, 1
}

// unionMerge keeps every distinct line once, in first-seen order: ours'
// lines, then the lines only theirs has. A line repeated within or across
// the sides is kept only at its first occurrence. It never conflicts.
func unionMerge(_, aBytes, bBytes []byte) ([]byte, LLMergeStatus) {
	var out []string
	seen := make(map[string]bool)
	for _, l := range splitKeepEmpty(aBytes) {
		if !seen[l] {
			out = append(out, l)
			seen[l] = true
		}
	}
	for _, l := range splitKeepEmpty(bBytes) {
		if !seen[l] {
			out = append(out, l)
			seen[l] = true
		}
	}
	return []byte(strings.Join(out, "\n") + terminator(aBytes, bBytes)), 0
}

func terminator(a, b []byte) string {
	if len(a) > 0 && a[len(a)-1] == '\n' {
		return "\n"
	}
	if len(b) > 0 && b[len(b)-1] == '\n' {
		return "\n"
	}
	return ""
}

func splitKeepEmpty(b []byte) []string {
	s := string(b)
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}

// structuralMerge routes through pkg/merge's tree-sitter-aware structural
// merge. Returns ok=false when the language/shape isn't supported, so the
// caller can fall back to the text backend.
func structuralMerge(origBytes, aBytes, bBytes []byte) ([]byte, LLMergeStatus, bool) {
	result, err := merge.MergeFiles("", origBytes, aBytes, bBytes)
	if err != nil || result == nil {
		return nil, 0, false
	}
	if result.HasConflicts {
		return result.Merged, LLMergeStatus(result.ConflictCount), true
	}
	return result.Merged, 0, true
}

// textMerge renders git-style conflict markers sized by
// opts.ExtraMarkerSize, honoring custom branch labels.
func textMerge(origBytes []byte, labelBase string, aBytes []byte, labelA string, bBytes []byte, labelB string, opts LLMergeOpts) ([]byte, LLMergeStatus) {
	result := diff3.Merge(origBytes, aBytes, bBytes)
	if !result.HasConflicts {
		return result.Merged, 0
	}

	markerLen := baseMarkerWidth + opts.ExtraMarkerSize
	open := strings.Repeat("<", markerLen)
	mid := strings.Repeat("=", markerLen)
	close_ := strings.Repeat(">", markerLen)
	baseMark := strings.Repeat("|", markerLen)

	var buf bytes.Buffer
	conflicts := 0
	for _, h := range result.Hunks {
		if h.Type == diff3.HunkClean {
			buf.Write(h.Merged)
			continue
		}
		conflicts++
		buf.WriteString(open)
		buf.WriteByte(' ')
		buf.WriteString(labelA)
		buf.WriteByte('\n')
		buf.Write(h.Ours)
		if opts.Renormalize && len(h.Base) > 0 {
			buf.WriteString(baseMark)
			buf.WriteByte(' ')
			buf.WriteString(labelBase)
			buf.WriteByte('\n')
			buf.Write(h.Base)
		}
		buf.WriteString(mid)
		buf.WriteByte('\n')
		buf.Write(h.Theirs)
		buf.WriteString(close_)
		buf.WriteByte(' ')
		buf.WriteString(labelB)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), LLMergeStatus(conflicts)
}

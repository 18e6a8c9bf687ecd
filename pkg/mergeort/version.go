package mergeort

import "github.com/odvcencio/got/pkg/object"

// Version is the pair (oid, mode) that identifies a blob/tree/symlink at
// a single stage of a merge.
type Version struct {
	OID  object.Hash
	Mode Mode
}

// Null is the zero Version: an absent entry.
var Null = Version{}

// IsNull reports whether v denotes an absent entry.
func (v Version) IsNull() bool { return v.Mode == ModeAbsent }

// Equal reports whether two versions are identical (same oid and mode).
// Two absent versions are always equal regardless of OID.
func (v Version) Equal(o Version) bool {
	if v.IsNull() && o.IsNull() {
		return true
	}
	return v.OID == o.OID && v.Mode == o.Mode
}

// SameContent reports whether two versions carry the same OID, ignoring
// mode differences (used for the "100644 vs 100755" executable-bit-only
// change case).
func (v Version) SameContent(o Version) bool {
	if v.IsNull() || o.IsNull() {
		return v.IsNull() == o.IsNull()
	}
	return v.OID == o.OID
}

package mergeort

import "strconv"

// Mode is a filesystem-style mode word. Only a small set of logical kinds
// is meaningful: regular file (possibly executable), symbolic link,
// submodule (gitlink), directory, and absent.
type Mode uint32

// Logical kinds, expressed with the same digit pattern the object store's
// string-typed tree modes use (see pkg/object.TreeMode*).
const (
	ModeAbsent    Mode = 0
	ModeFile      Mode = 0o100644
	ModeExec      Mode = 0o100755
	ModeSymlink   Mode = 0o120000
	ModeSubmodule Mode = 0o160000
	ModeDir       Mode = 0o040000
)

// ModeFromString parses an object-store tree mode string (e.g. "100644",
// "40000") into a Mode.
func ModeFromString(s string) Mode {
	if s == "" {
		return ModeAbsent
	}
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return ModeAbsent
	}
	return Mode(v)
}

// String renders the mode the way the object store expects it.
func (m Mode) String() string {
	if m == ModeAbsent {
		return ""
	}
	return strconv.FormatUint(uint64(m), 8)
}

// IsFile reports whether m denotes a regular file (executable or not).
func (m Mode) IsFile() bool { return m == ModeFile || m == ModeExec }

// IsDir reports whether m denotes a directory.
func (m Mode) IsDir() bool { return m == ModeDir }

// IsSymlink reports whether m denotes a symbolic link.
func (m Mode) IsSymlink() bool { return m == ModeSymlink }

// IsSubmodule reports whether m denotes a submodule (gitlink).
func (m Mode) IsSubmodule() bool { return m == ModeSubmodule }

// IsAbsent reports whether m denotes "no entry here".
func (m Mode) IsAbsent() bool { return m == ModeAbsent }

// SameLogicalType reports whether a and b denote the same broad kind
// (file-like, dir, symlink, submodule) for the purposes of "distinct
// types" detection. Executable-vs-non-executable is not a type change.
func (m Mode) SameLogicalType(other Mode) bool {
	switch {
	case m.IsFile() && other.IsFile():
		return true
	case m.IsDir() && other.IsDir():
		return true
	case m.IsSymlink() && other.IsSymlink():
		return true
	case m.IsSubmodule() && other.IsSubmodule():
		return true
	default:
		return m == other
	}
}

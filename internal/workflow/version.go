package workflow

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
)

// Version is a major.minor document version with exactly one decimal
// digit, e.g. "0.1" or "2.3". It is stored as integer tenths so that
// bumping never picks up binary floating-point drift ("0.1"+"0.1" is
// exactly "0.2").
type Version int

// InitialVersion is the version assigned to a brand-new entity.
const InitialVersion Version = 1 // "0.1"

// BumpKind selects how a version advances on submission or revision.
type BumpKind string

const (
	BumpNone  BumpKind = "none"
	BumpMinor BumpKind = "minor"
	BumpMajor BumpKind = "major"
)

// ParseBumpKind validates a bump kind received from a request body.
// An empty string defaults to BumpNone.
func ParseBumpKind(s string) (BumpKind, error) {
	switch BumpKind(s) {
	case BumpNone, BumpMinor, BumpMajor:
		return BumpKind(s), nil
	case "":
		return BumpNone, nil
	}
	return "", NewValidationError(fmt.Sprintf("invalid version bump %q (want none, minor or major)", s))
}

// NewVersion builds a Version from its major and minor parts.
func NewVersion(major, minor int) Version {
	return Version(major*10 + minor)
}

// ParseVersion parses a "major.minor" string such as "2.3".
func ParseVersion(s string) (Version, error) {
	parts := strings.SplitN(s, ".", 2)
	major, err := strconv.Atoi(parts[0])
	if err != nil || major < 0 {
		return 0, fmt.Errorf("invalid version %q", s)
	}
	minor := 0
	if len(parts) == 2 {
		minor, err = strconv.Atoi(parts[1])
		if err != nil || minor < 0 || minor > 9 {
			return 0, fmt.Errorf("invalid version %q", s)
		}
	}
	return NewVersion(major, minor), nil
}

// Major returns the integer part of the version.
func (v Version) Major() int { return int(v) / 10 }

// Minor returns the single decimal digit of the version.
func (v Version) Minor() int { return int(v) % 10 }

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major(), v.Minor())
}

// MarshalJSON encodes the version as its decimal string, e.g. "2.3".
func (v Version) MarshalJSON() ([]byte, error) {
	return []byte(`"` + v.String() + `"`), nil
}

// UnmarshalJSON accepts both "2.3" (string) and 2.3 (number) forms.
func (v *Version) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	parsed, err := ParseVersion(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Value implements driver.Valuer; versions are persisted as NUMERIC(5,1).
func (v Version) Value() (driver.Value, error) {
	return v.String(), nil
}

// Scan implements sql.Scanner for NUMERIC(5,1) columns.
func (v *Version) Scan(src any) error {
	switch s := src.(type) {
	case nil:
		*v = 0
		return nil
	case []byte:
		parsed, err := ParseVersion(string(s))
		if err != nil {
			return err
		}
		*v = parsed
		return nil
	case string:
		parsed, err := ParseVersion(s)
		if err != nil {
			return err
		}
		*v = parsed
		return nil
	case float64:
		// Postgres numeric arrives as []byte through lib/pq, but accept
		// float64 for drivers that convert. Round to the nearest tenth.
		*v = Version(int(s*10 + 0.5))
		return nil
	case int64:
		*v = NewVersion(int(s), 0)
		return nil
	}
	return fmt.Errorf("cannot scan %T into workflow.Version", src)
}

// NextVersion computes the version a submission or revision moves to.
// A nil latest bootstraps a new entity at 0.1. BumpNone keeps the
// current number (legal for iterative re-submission before first
// approval). BumpMinor advances one tenth, carrying into the integer
// part (2.9 -> 3.0). BumpMajor moves to the next whole version
// (2.3 -> 3.0).
func NextVersion(latest *Version, bump BumpKind) Version {
	if latest == nil {
		return InitialVersion
	}
	switch bump {
	case BumpMajor:
		return NewVersion(latest.Major()+1, 0)
	case BumpMinor:
		return *latest + 1
	default:
		return *latest
	}
}

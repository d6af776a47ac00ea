// Package store implements the encrypted storage engine: the data model,
// tag-filter compiler, session state machine, and operations layer that
// sit between a caller and a SQL backend (PostgreSQL or SQLite).
package store

import (
	"ciphervault/internal/keys"
)

// EntryKind is a stable, persisted enumeration — values must never be
// renumbered once shipped, since they're stored in the items.kind column.
type EntryKind int16

const (
	KindGeneral EntryKind = 1
	KindKey     EntryKind = 2
	KindItem    EntryKind = 3
)

var registeredKinds = map[EntryKind]string{
	KindGeneral: "general",
	KindKey:     "key",
	KindItem:    "item",
}

// RegisterEntryKind lets a consuming application claim a further EntryKind
// value beyond the three built in ones. It does not change any query
// behavior; it exists purely so callers can give their own kinds a name
// for diagnostics.
func RegisterEntryKind(k EntryKind, label string) {
	registeredKinds[k] = label
}

func (k EntryKind) String() string {
	if s, ok := registeredKinds[k]; ok {
		return s
	}
	return "unknown"
}

// EntryOperation selects the kind of mutation Update performs.
type EntryOperation int

const (
	OpInsert EntryOperation = iota
	OpReplace
	OpRemove
)

// ProfileId is the database-assigned profile identifier. Defined as its
// own type so it can't be silently mixed with an unrelated int64 (a row
// count, a kind) without an explicit conversion.
type ProfileId = keys.ProfileId

// EntryTag is the plaintext tag form a caller passes to Update.
type EntryTag = keys.EntryTag

// Entry is the in-memory decrypted record returned by Fetch/Scan.
type Entry struct {
	Category string
	Name     string
	Value    []byte
	Tags     []EntryTag
}

// TagFilter is the Boolean expression AST compiled into a SQL EXISTS
// sub-clause by CompileTagFilter.
type TagFilter struct {
	Op    FilterOp
	Name  string // leaf: tag name
	Value string // leaf: comparand (Eq/Neq/Lt/Lte/Gt/Gte/Like)

	// Plaintext marks an ordering (Lt/Lte/Gt/Gte) or Like leaf as
	// comparing against a tag the caller stored plaintext (EntryTag.Plaintext
	// == true). CompileTagFilter rejects such a leaf with verrors.Input
	// when Plaintext is false, since an ordering comparison against a
	// deterministically-encrypted value is meaningless — there is no
	// order-preserving ciphertext to compare against the literal
	// comparand. Eq/Neq/In/Exist ignore this field; Eq/Neq/In always
	// target the deterministic encoding, and Exist matches the tag name
	// whether the tag is plaintext or not.
	Plaintext bool

	Values   []string // leaf: In
	Names    []string // leaf: Exist
	Children []*TagFilter
}

// FilterOp enumerates TagFilter node kinds.
type FilterOp int

const (
	FilterEq FilterOp = iota
	FilterNeq
	FilterLt
	FilterLte
	FilterGt
	FilterGte
	FilterLike
	FilterIn
	FilterExist
	FilterAnd
	FilterOr
	FilterNot
)

// Eq builds an equality leaf.
func Eq(name, value string) *TagFilter { return &TagFilter{Op: FilterEq, Name: name, Value: value} }

// Neq builds an inequality leaf.
func Neq(name, value string) *TagFilter { return &TagFilter{Op: FilterNeq, Name: name, Value: value} }

// Lt builds a less-than leaf. plaintext asserts that name was stored as a
// plaintext tag (EntryTag.Plaintext == true); CompileTagFilter rejects the
// leaf with verrors.Input when plaintext is false, since there is no
// order-preserving encoding to compare against an encrypted tag value.
func Lt(name, value string, plaintext bool) *TagFilter {
	return &TagFilter{Op: FilterLt, Name: name, Value: value, Plaintext: plaintext}
}

// Lte builds a less-than-or-equal leaf. See Lt for the plaintext argument.
func Lte(name, value string, plaintext bool) *TagFilter {
	return &TagFilter{Op: FilterLte, Name: name, Value: value, Plaintext: plaintext}
}

// Gt builds a greater-than leaf. See Lt for the plaintext argument.
func Gt(name, value string, plaintext bool) *TagFilter {
	return &TagFilter{Op: FilterGt, Name: name, Value: value, Plaintext: plaintext}
}

// Gte builds a greater-than-or-equal leaf. See Lt for the plaintext argument.
func Gte(name, value string, plaintext bool) *TagFilter {
	return &TagFilter{Op: FilterGte, Name: name, Value: value, Plaintext: plaintext}
}

// Like builds a LIKE leaf. See Lt for the plaintext argument.
func Like(name, value string, plaintext bool) *TagFilter {
	return &TagFilter{Op: FilterLike, Name: name, Value: value, Plaintext: plaintext}
}

// In builds a membership leaf.
func In(name string, values []string) *TagFilter {
	return &TagFilter{Op: FilterIn, Name: name, Values: values}
}

// Exist builds an existence leaf over one or more tag names.
func Exist(names []string) *TagFilter { return &TagFilter{Op: FilterExist, Names: names} }

// And composes children conjunctively; an empty And compiles to TRUE.
func And(children ...*TagFilter) *TagFilter { return &TagFilter{Op: FilterAnd, Children: children} }

// Or composes children disjunctively; an empty Or compiles to FALSE.
func Or(children ...*TagFilter) *TagFilter { return &TagFilter{Op: FilterOr, Children: children} }

// Not negates child.
func Not(child *TagFilter) *TagFilter { return &TagFilter{Op: FilterNot, Children: []*TagFilter{child}} }

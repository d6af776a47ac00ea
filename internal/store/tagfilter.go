package store

import (
	"fmt"
	"strings"

	"ciphervault/internal/keys"
	"ciphervault/internal/verrors"
)

// CompileTagFilter compiles filter into a SQL boolean expression
// correlated to items.id via EXISTS/NOT EXISTS sub-queries against
// items_tags, plus the ordered bind parameters it references. No
// user-supplied string ever becomes part of the SQL text — every
// comparand is pushed into params and referenced only via a placeholder.
//
// Equality-family comparisons (Eq, Neq, In) target tags stored under
// deterministic tag-value encryption (items_tags.plaintext = 0), matching
// how EncryptEntryTags encrypts a non-plaintext tag's value. Exist matches
// on the encrypted tag name alone, whether the tag is plaintext or not.
// Ordering comparisons and Like require the tag to have been stored
// plaintext (items_tags.plaintext = 1): the leaf's Plaintext field is the
// caller's assertion of that, and compilation fails with verrors.Input
// when it is false, since an ordering comparison has no meaning against a
// deterministically-encrypted value.
func CompileTagFilter(dialect Dialect, key *keys.StoreKey, filter *TagFilter, paramStart int64) (string, []any, error) {
	if filter == nil {
		return "", nil, nil
	}
	seq := paramStart
	var params []any
	push := func(v any) string {
		params = append(params, v)
		ph := dialect.Placeholder(seq)
		seq++
		return ph
	}
	sql, err := compileNode(dialect, key, filter, push)
	if err != nil {
		return "", nil, err
	}
	return sql, params, nil
}

func compileNode(dialect Dialect, key *keys.StoreKey, node *TagFilter, push func(any) string) (string, error) {
	switch node.Op {
	case FilterAnd:
		if len(node.Children) == 0 {
			return "TRUE", nil
		}
		return joinChildren(dialect, key, node.Children, " AND ", push)
	case FilterOr:
		if len(node.Children) == 0 {
			return "FALSE", nil
		}
		return joinChildren(dialect, key, node.Children, " OR ", push)
	case FilterNot:
		if len(node.Children) != 1 {
			return "", verrors.New(verrors.Input, "Not requires exactly one child")
		}
		inner, err := compileNode(dialect, key, node.Children[0], push)
		if err != nil {
			return "", err
		}
		return "NOT (" + inner + ")", nil
	case FilterEq, FilterNeq:
		return compileComparison(dialect, key, node, push)
	case FilterLt, FilterLte, FilterGt, FilterGte, FilterLike:
		return compilePlaintextComparison(dialect, key, node, push)
	case FilterIn:
		return compileIn(dialect, key, node, push)
	case FilterExist:
		return compileExist(dialect, key, node, push)
	default:
		return "", verrors.New(verrors.Input, "unknown tag filter operator")
	}
}

func joinChildren(dialect Dialect, key *keys.StoreKey, children []*TagFilter, sep string, push func(any) string) (string, error) {
	parts := make([]string, 0, len(children))
	for _, c := range children {
		s, err := compileNode(dialect, key, c, push)
		if err != nil {
			return "", err
		}
		parts = append(parts, "("+s+")")
	}
	return strings.Join(parts, sep), nil
}

func compileComparison(dialect Dialect, key *keys.StoreKey, node *TagFilter, push func(any) string) (string, error) {
	encName, err := key.EncryptTagName(node.Name)
	if err != nil {
		return "", verrors.Wrap(verrors.Encryption, "encrypt tag name", err)
	}
	encValue, err := key.EncryptTagValue(node.Value)
	if err != nil {
		return "", verrors.Wrap(verrors.Encryption, "encrypt tag value", err)
	}
	op := "="
	if node.Op == FilterNeq {
		op = "!="
	}
	return existsClause(push, encName, "0", op, encValue), nil
}

func compilePlaintextComparison(dialect Dialect, key *keys.StoreKey, node *TagFilter, push func(any) string) (string, error) {
	if !node.Plaintext {
		return "", verrors.New(verrors.Input,
			fmt.Sprintf("ordering comparison against tag %q requires a plaintext tag", node.Name))
	}
	encName, err := key.EncryptTagName(node.Name)
	if err != nil {
		return "", verrors.Wrap(verrors.Encryption, "encrypt tag name", err)
	}
	var op string
	switch node.Op {
	case FilterLt:
		op = "<"
	case FilterLte:
		op = "<="
	case FilterGt:
		op = ">"
	case FilterGte:
		op = ">="
	case FilterLike:
		op = "LIKE"
	default:
		return "", verrors.New(verrors.Input, "not a plaintext-only comparison operator")
	}
	// Plaintext tag values are stored as bytes, so the comparand is bound as
	// bytes too; SQLite never orders a TEXT value against a BLOB bytewise.
	return existsClause(push, encName, "1", op, []byte(node.Value)), nil
}

func compileIn(dialect Dialect, key *keys.StoreKey, node *TagFilter, push func(any) string) (string, error) {
	if len(node.Values) == 0 {
		return "FALSE", nil
	}
	encName, err := key.EncryptTagName(node.Name)
	if err != nil {
		return "", verrors.Wrap(verrors.Encryption, "encrypt tag name", err)
	}
	placeholders := make([]string, 0, len(node.Values))
	for _, v := range node.Values {
		encValue, err := key.EncryptTagValue(v)
		if err != nil {
			return "", verrors.Wrap(verrors.Encryption, "encrypt tag value", err)
		}
		placeholders = append(placeholders, push(encValue))
	}
	namePh := push(encName)
	return fmt.Sprintf(
		"EXISTS (SELECT 1 FROM items_tags it WHERE it.item_id = i.id AND it.plaintext = 0 AND it.name = %s AND it.value IN (%s))",
		namePh, strings.Join(placeholders, ", "),
	), nil
}

func compileExist(dialect Dialect, key *keys.StoreKey, node *TagFilter, push func(any) string) (string, error) {
	if len(node.Names) == 0 {
		return "FALSE", nil
	}
	parts := make([]string, 0, len(node.Names))
	for _, name := range node.Names {
		encName, err := key.EncryptTagName(name)
		if err != nil {
			return "", verrors.Wrap(verrors.Encryption, "encrypt tag name", err)
		}
		namePh := push(encName)
		parts = append(parts, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM items_tags it WHERE it.item_id = i.id AND it.name = %s)", namePh))
	}
	return strings.Join(parts, " AND "), nil
}

func existsClause(push func(any) string, encName []byte, plaintext string, op string, value any) string {
	namePh := push(encName)
	valuePh := push(value)
	return fmt.Sprintf(
		"EXISTS (SELECT 1 FROM items_tags it WHERE it.item_id = i.id AND it.plaintext = %s AND it.name = %s AND it.value %s %s)",
		plaintext, namePh, op, valuePh)
}

package store

import (
	"sort"
	"strings"

	"github.com/autom8ter/livequery"
	"github.com/autom8ter/livequery/errors"
	"github.com/autom8ter/livequery/util"
	"github.com/samber/lo"
	"github.com/spf13/cast"
)

type applyFunc func(doc *livequery.Document, path string, value any) error

var appliers = map[string]applyFunc{
	livequery.OpSet:         applySet,
	livequery.OpSetOnInsert: func(*livequery.Document, string, any) error { return nil },
	livequery.OpUnset:       applyUnset,
	livequery.OpInc:         applyInc,
	livequery.OpPush:        applyPush,
	livequery.OpPushAll:     applyPushAll,
	livequery.OpAddToSet:    applyAddToSet,
	livequery.OpPop:         applyPop,
	livequery.OpPull:        applyPull,
	livequery.OpPullAll:     applyPullAll,
	livequery.OpBit:         applyBit,
	livequery.OpRename:      applyRename,
}

// Apply applies the modifier to the document in place. Operators are applied in name order.
func Apply(doc *livequery.Document, modifier livequery.Modifier) error {
	ops := lo.Keys(modifier)
	sort.Strings(ops)
	for _, op := range ops {
		fn, ok := appliers[op]
		if !ok {
			return errors.New(errors.Validation, "unsupported modifier operator: '%s'", op)
		}
		paths := lo.Keys(modifier[op])
		sort.Strings(paths)
		for _, path := range paths {
			if livequery.TopLevelField(path) == livequery.IDField {
				return errors.New(errors.Validation, "%s: the '%s' field is immutable", op, livequery.IDField)
			}
			if err := fn(doc, path, modifier[op][path]); err != nil {
				return errors.Wrap(err, errors.Validation, "%s: failed to modify '%s'", op, path)
			}
		}
	}
	return nil
}

// ApplyInsert builds the document inserted by an upsert: the modifier's $setOnInsert values are set before the rest of the modifier is applied
func ApplyInsert(doc *livequery.Document, modifier livequery.Modifier) error {
	if err := doc.SetAll(modifier[livequery.OpSetOnInsert]); err != nil {
		return err
	}
	return Apply(doc, modifier)
}

func applySet(doc *livequery.Document, path string, value any) error {
	return doc.Set(path, value)
}

func applyUnset(doc *livequery.Document, path string, _ any) error {
	return doc.Del(path)
}

func applyInc(doc *livequery.Document, path string, value any) error {
	amount, err := cast.ToFloat64E(value)
	if err != nil {
		return errors.New(errors.Validation, "increment must be numeric")
	}
	if doc.Exists(path) && !isNumeric(doc.Get(path)) {
		return errors.New(errors.Validation, "cannot increment a non-numeric field")
	}
	return doc.Set(path, doc.GetFloat(path)+amount)
}

func applyPush(doc *livequery.Document, path string, value any) error {
	values := []any{value}
	if each, ok := eachValues(value); ok {
		values = each
	}
	return appendValues(doc, path, values)
}

func applyPushAll(doc *livequery.Document, path string, value any) error {
	return appendValues(doc, path, util.ToSlice(value))
}

func applyAddToSet(doc *livequery.Document, path string, value any) error {
	values := []any{value}
	if each, ok := eachValues(value); ok {
		values = each
	}
	current, err := arrayField(doc, path)
	if err != nil {
		return err
	}
	for _, v := range values {
		if !lo.ContainsBy(current, func(existing any) bool { return sameValue(existing, v) }) {
			current = append(current, v)
		}
	}
	return doc.Set(path, current)
}

func applyPop(doc *livequery.Document, path string, value any) error {
	current, err := arrayField(doc, path)
	if err != nil || len(current) == 0 {
		return err
	}
	if cast.ToInt(value) < 0 {
		return doc.Set(path, current[1:])
	}
	return doc.Set(path, current[:len(current)-1])
}

func applyPull(doc *livequery.Document, path string, value any) error {
	current, err := arrayField(doc, path)
	if err != nil {
		return err
	}
	match := func(elem any) bool { return sameValue(elem, value) }
	if condition, ok := value.(map[string]any); ok {
		selector, err := livequery.ParseSelector(condition)
		if err != nil {
			return err
		}
		match = func(elem any) bool {
			elemDoc, err := livequery.NewDocumentFrom(elem)
			return err == nil && selector.Matches(elemDoc)
		}
	}
	return doc.Set(path, lo.Reject(current, func(elem any, _ int) bool { return match(elem) }))
}

func applyPullAll(doc *livequery.Document, path string, value any) error {
	current, err := arrayField(doc, path)
	if err != nil {
		return err
	}
	values := util.ToSlice(value)
	return doc.Set(path, lo.Reject(current, func(elem any, _ int) bool {
		return lo.ContainsBy(values, func(v any) bool { return sameValue(elem, v) })
	}))
}

func applyBit(doc *livequery.Document, path string, value any) error {
	ops, ok := value.(map[string]any)
	if !ok {
		return errors.New(errors.Validation, "bitwise operation must be an object")
	}
	if doc.Exists(path) && !isNumeric(doc.Get(path)) {
		return errors.New(errors.Validation, "cannot apply a bitwise operation to a non-numeric field")
	}
	result := cast.ToInt64(doc.Get(path))
	for op, operand := range ops {
		n := cast.ToInt64(operand)
		switch strings.ToLower(op) {
		case "and":
			result &= n
		case "or":
			result |= n
		case "xor":
			result ^= n
		default:
			return errors.New(errors.Validation, "unsupported bitwise operation: '%s'", op)
		}
	}
	return doc.Set(path, result)
}

func applyRename(doc *livequery.Document, path string, value any) error {
	target := cast.ToString(value)
	if target == "" || target == path {
		return errors.New(errors.Validation, "invalid rename target")
	}
	if livequery.TopLevelField(target) == livequery.IDField {
		return errors.New(errors.Validation, "the '%s' field is immutable", livequery.IDField)
	}
	if !doc.Exists(path) {
		return nil
	}
	val := doc.Get(path)
	if err := doc.Del(path); err != nil {
		return err
	}
	return doc.Set(target, val)
}

func appendValues(doc *livequery.Document, path string, values []any) error {
	current, err := arrayField(doc, path)
	if err != nil {
		return err
	}
	return doc.Set(path, append(current, values...))
}

func arrayField(doc *livequery.Document, path string) ([]any, error) {
	if !doc.Exists(path) {
		return []any{}, nil
	}
	current, ok := doc.Get(path).([]any)
	if !ok {
		return nil, errors.New(errors.Validation, "field is not an array")
	}
	return current, nil
}

func eachValues(value any) ([]any, bool) {
	m, ok := value.(map[string]any)
	if !ok {
		return nil, false
	}
	each, ok := m["$each"]
	if !ok {
		return nil, false
	}
	return util.ToSlice(each), true
}

// sameValue compares two json values by their encoding so that numbers decoded from documents equal numbers from modifiers
func sameValue(a, b any) bool {
	if isNumeric(a) && isNumeric(b) {
		return cast.ToFloat64(a) == cast.ToFloat64(b)
	}
	return util.JSONString(a) == util.JSONString(b)
}

func isNumeric(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}

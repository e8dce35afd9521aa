package livequery

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/autom8ter/livequery/errors"
	"github.com/autom8ter/livequery/util"
	"github.com/samber/lo"
	"github.com/spf13/cast"
)

// WhereOp is an operator used to compare a document field to a value
type WhereOp string

const (
	WhereOpEq          WhereOp = "eq"
	WhereOpNeq         WhereOp = "neq"
	WhereOpLt          WhereOp = "lt"
	WhereOpLte         WhereOp = "lte"
	WhereOpGt          WhereOp = "gt"
	WhereOpGte         WhereOp = "gte"
	WhereOpIn          WhereOp = "in"
	WhereOpNin         WhereOp = "nin"
	WhereOpExists      WhereOp = "exists"
	WhereOpContains    WhereOp = "contains"
	WhereOpContainsAll WhereOp = "containsAll"
	WhereOpContainsAny WhereOp = "containsAny"
)

var selectorOps = map[string]WhereOp{
	"$eq":          WhereOpEq,
	"$ne":          WhereOpNeq,
	"$lt":          WhereOpLt,
	"$lte":         WhereOpLte,
	"$gt":          WhereOpGt,
	"$gte":         WhereOpGte,
	"$in":          WhereOpIn,
	"$nin":         WhereOpNin,
	"$exists":      WhereOpExists,
	"$contains":    WhereOpContains,
	"$all":         WhereOpContainsAll,
	"$containsAny": WhereOpContainsAny,
}

// Where is a filter against a single document field
type Where struct {
	// Field is the field to compare against. Dot notation is supported.
	Field string `json:"field" validate:"required"`
	// Op is the comparison operator
	Op WhereOp `json:"op" validate:"required"`
	// Value is the value to compare against
	Value any `json:"value"`
}

// Selector is a set of where clauses. A document matches the selector if it passes every clause.
// An empty selector matches every document.
type Selector []Where

// ParseSelector parses a document style selector.
// ex: {"status": "open", "age": {"$gt": 3}}
func ParseSelector(selector map[string]any) (Selector, error) {
	var wheres Selector
	for field, value := range selector {
		ops, ok := value.(map[string]any)
		if !ok || !isOperatorMap(ops) {
			wheres = append(wheres, Where{Field: field, Op: WhereOpEq, Value: value})
			continue
		}
		for name, operand := range ops {
			op, ok := selectorOps[name]
			if !ok {
				return nil, errors.New(errors.Validation, "unsupported selector operator: '%s'", name)
			}
			wheres = append(wheres, Where{Field: field, Op: op, Value: operand})
		}
	}
	for _, w := range wheres {
		if err := util.ValidateStruct(w); err != nil {
			return nil, err
		}
	}
	return wheres, nil
}

// MustParseSelector parses the selector and panics if it is invalid
func MustParseSelector(selector map[string]any) Selector {
	s, err := ParseSelector(selector)
	if err != nil {
		panic(err)
	}
	return s
}

func isOperatorMap(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return true
}

// Matches returns true if the document passes every where clause
func (s Selector) Matches(d *Document) bool {
	if d == nil {
		return false
	}
	for _, w := range s {
		if !w.matches(d) {
			return false
		}
	}
	return true
}

func (w Where) matches(d *Document) bool {
	switch w.Op {
	case WhereOpEq:
		return equalValues(d.Get(w.Field), w.Value)
	case WhereOpNeq:
		return !equalValues(d.Get(w.Field), w.Value)
	case WhereOpLt:
		return d.Exists(w.Field) && d.GetFloat(w.Field) < cast.ToFloat64(w.Value)
	case WhereOpLte:
		return d.Exists(w.Field) && d.GetFloat(w.Field) <= cast.ToFloat64(w.Value)
	case WhereOpGt:
		return d.Exists(w.Field) && d.GetFloat(w.Field) > cast.ToFloat64(w.Value)
	case WhereOpGte:
		return d.Exists(w.Field) && d.GetFloat(w.Field) >= cast.ToFloat64(w.Value)
	case WhereOpIn:
		return containsValue(util.ToSlice(w.Value), d.Get(w.Field))
	case WhereOpNin:
		return !containsValue(util.ToSlice(w.Value), d.Get(w.Field))
	case WhereOpExists:
		return d.Exists(w.Field) == cast.ToBool(w.Value)
	case WhereOpContains:
		switch fieldVal := d.Get(w.Field).(type) {
		case []any:
			return containsValue(fieldVal, w.Value)
		case string:
			return strings.Contains(fieldVal, cast.ToString(w.Value))
		default:
			return strings.Contains(util.JSONString(fieldVal), util.JSONString(w.Value))
		}
	case WhereOpContainsAll:
		fieldVal := cast.ToStringSlice(d.Get(w.Field))
		for _, v := range cast.ToStringSlice(w.Value) {
			if !lo.Contains(fieldVal, v) {
				return false
			}
		}
		return true
	case WhereOpContainsAny:
		fieldVal := cast.ToStringSlice(d.Get(w.Field))
		for _, v := range cast.ToStringSlice(w.Value) {
			if lo.Contains(fieldVal, v) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func containsValue(values []any, value any) bool {
	for _, v := range values {
		if equalValues(v, value) {
			return true
		}
	}
	return false
}

// equalValues compares json values; numbers compare by value regardless of their go type
func equalValues(a, b any) bool {
	if isNumber(a) && isNumber(b) {
		return cast.ToFloat64(a) == cast.ToFloat64(b)
	}
	if reflect.DeepEqual(a, b) {
		return true
	}
	switch b.(type) {
	case nil, string, bool, float64:
		return false
	}
	// normalize composite values through their json encoding
	var normalized any
	if err := json.Unmarshal([]byte(util.JSONString(b)), &normalized); err != nil {
		return false
	}
	return reflect.DeepEqual(a, normalized)
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		return true
	}
	return false
}

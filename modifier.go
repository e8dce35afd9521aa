package livequery

import (
	"sort"
)

// Modifier is an update expression: operator name -> field path -> operand.
// ex: {"$set": {"status": "closed"}, "$unset": {"meta.owner": ""}}
type Modifier map[string]map[string]any

// Effect describes how an update operator may affect the fields it names
type Effect int

const (
	// UpdateOnly operators may add or change a field
	UpdateOnly Effect = iota + 1
	// RemoveOnly operators may remove a field
	RemoveOnly
	// UpdateAndRemove operators may change or remove a field
	UpdateAndRemove
)

// String returns the name of the effect
func (e Effect) String() string {
	switch e {
	case UpdateOnly:
		return "update"
	case RemoveOnly:
		return "remove"
	case UpdateAndRemove:
		return "updateAndRemove"
	default:
		return "unknown"
	}
}

// update operator names
const (
	OpInc         = "$inc"
	OpSetOnInsert = "$setOnInsert"
	OpSet         = "$set"
	OpAddToSet    = "$addToSet"
	OpPop         = "$pop"
	OpPullAll     = "$pullAll"
	OpPull        = "$pull"
	OpPushAll     = "$pushAll"
	OpPush        = "$push"
	OpBit         = "$bit"
	OpUnset       = "$unset"
	OpRename      = "$rename"
)

var operatorEffects = func() map[string]Effect {
	effects := map[string]Effect{}
	for _, op := range []string{OpInc, OpSetOnInsert, OpSet, OpAddToSet, OpPop, OpPullAll, OpPull, OpPushAll, OpPush, OpBit} {
		effects[op] = UpdateOnly
	}
	effects[OpUnset] = RemoveOnly
	effects[OpRename] = UpdateAndRemove
	return effects
}()

// EffectOf returns the effect of the update operator. It returns false if the operator is unknown.
func EffectOf(operator string) (Effect, bool) {
	effect, ok := operatorEffects[operator]
	return effect, ok
}

// Classify maps the modifier to the top level fields it may update and the top level fields it may remove.
// Nested paths are collapsed to their first segment. Unknown operators are ignored.
func Classify(modifier Modifier) (update Fields, remove Fields) {
	update, remove = NewFields(), NewFields()
	for operator, command := range modifier {
		effect, ok := EffectOf(operator)
		if !ok {
			continue
		}
		for path := range command {
			field := TopLevelField(path)
			switch effect {
			case UpdateOnly:
				update.Add(field)
			case RemoveOnly:
				remove.Add(field)
			case UpdateAndRemove:
				update.Add(field)
				remove.Add(field)
			}
		}
	}
	return update, remove
}

// Fields is a set of top level field names
type Fields map[string]struct{}

// NewFields creates a field set holding the given names
func NewFields(names ...string) Fields {
	f := make(Fields, len(names))
	for _, n := range names {
		f[n] = struct{}{}
	}
	return f
}

// Add adds the names to the set
func (f Fields) Add(names ...string) {
	for _, n := range names {
		f[n] = struct{}{}
	}
}

// Has returns true if the name is in the set
func (f Fields) Has(name string) bool {
	_, ok := f[name]
	return ok
}

// Len returns the size of the set
func (f Fields) Len() int {
	return len(f)
}

// Clone copies the set
func (f Fields) Clone() Fields {
	c := make(Fields, len(f))
	for n := range f {
		c[n] = struct{}{}
	}
	return c
}

// Union returns a new set holding the names of both sets
func (f Fields) Union(other Fields) Fields {
	u := f.Clone()
	for n := range other {
		u[n] = struct{}{}
	}
	return u
}

// Without returns a new set holding the names that are not in other
func (f Fields) Without(other Fields) Fields {
	w := make(Fields, len(f))
	for n := range f {
		if !other.Has(n) {
			w[n] = struct{}{}
		}
	}
	return w
}

// Slice returns the names in sorted order
func (f Fields) Slice() []string {
	names := make([]string, 0, len(f))
	for n := range f {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

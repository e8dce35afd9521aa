package livequery_test

import (
	"testing"

	"github.com/autom8ter/livequery"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	t.Run("nested paths collapse to the top level field", func(t *testing.T) {
		update, remove := livequery.Classify(livequery.Modifier{"$set": {"a.b.c": 1}})
		assert.Equal(t, []string{"a"}, update.Slice())
		assert.Equal(t, 0, remove.Len())
	})
	t.Run("unset removes", func(t *testing.T) {
		update, remove := livequery.Classify(livequery.Modifier{"$unset": {"owner.email": "", "tags": ""}})
		assert.Equal(t, 0, update.Len())
		assert.Equal(t, []string{"owner", "tags"}, remove.Slice())
	})
	t.Run("rename updates and removes", func(t *testing.T) {
		update, remove := livequery.Classify(livequery.Modifier{"$rename": {"name": "title"}})
		assert.Equal(t, []string{"name"}, update.Slice())
		assert.Equal(t, []string{"name"}, remove.Slice())
	})
	t.Run("unknown operators are ignored", func(t *testing.T) {
		update, remove := livequery.Classify(livequery.Modifier{"$currentDate": {"updated": true}, "status": {"x": 1}})
		assert.Equal(t, 0, update.Len())
		assert.Equal(t, 0, remove.Len())
		_, ok := livequery.EffectOf("$currentDate")
		assert.False(t, ok)
	})
	t.Run("every update only operator", func(t *testing.T) {
		for _, op := range []string{"$inc", "$setOnInsert", "$set", "$addToSet", "$pop", "$pullAll", "$pull", "$pushAll", "$push", "$bit"} {
			effect, ok := livequery.EffectOf(op)
			assert.True(t, ok, op)
			assert.Equal(t, livequery.UpdateOnly, effect, op)
			update, remove := livequery.Classify(livequery.Modifier{op: {"counts.total": 1}})
			assert.Equal(t, []string{"counts"}, update.Slice(), op)
			assert.Equal(t, 0, remove.Len(), op)
		}
	})
	t.Run("mixed operators", func(t *testing.T) {
		update, remove := livequery.Classify(livequery.Modifier{
			"$set":   {"status": "closed", "owner.name": "bob"},
			"$inc":   {"priority": 1},
			"$unset": {"tags": ""},
		})
		assert.Equal(t, []string{"owner", "priority", "status"}, update.Slice())
		assert.Equal(t, []string{"tags"}, remove.Slice())
		assert.Equal(t, []string{"owner", "priority", "status", "tags"}, update.Union(remove).Slice())
	})
	t.Run("empty modifier", func(t *testing.T) {
		update, remove := livequery.Classify(nil)
		assert.Equal(t, 0, update.Len())
		assert.Equal(t, 0, remove.Len())
	})
}

func TestFields(t *testing.T) {
	f := livequery.NewFields("a", "b")
	assert.True(t, f.Has("a"))
	assert.False(t, f.Has("c"))
	f.Add("c", "a")
	assert.Equal(t, 3, f.Len())
	assert.Equal(t, []string{"b"}, f.Without(livequery.NewFields("a", "c")).Slice())
	clone := f.Clone()
	clone.Add("d")
	assert.False(t, f.Has("d"))
	assert.Equal(t, "updateAndRemove", livequery.UpdateAndRemove.String())
}

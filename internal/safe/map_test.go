package safe_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/autom8ter/livequery/internal/safe"
	"github.com/spf13/cast"
	"github.com/stretchr/testify/assert"
)

func Test(t *testing.T) {
	m := safe.Map[map[string]any]{}
	assert.False(t, m.Exists("1"))
	for i := 0; i < 10; i++ {
		m.Set(fmt.Sprint(i), map[string]any{
			"value": i,
		})
	}
	assert.Equal(t, 10, m.Len())
	for i := 0; i < 10; i++ {
		assert.True(t, m.Exists(fmt.Sprint(i)))
		entry := m.Get(fmt.Sprint(i))
		assert.Equal(t, entry["value"], i)
	}
	m.Range(func(key string, entry map[string]any) bool {
		assert.Equal(t, entry["value"], cast.ToInt(key))
		return true
	})

	for i := 0; i < 10; i++ {
		m.Del(fmt.Sprint(i))
	}
	for i := 0; i < 10; i++ {
		assert.False(t, m.Exists(fmt.Sprint(i)))
	}
	m.SetFunc("setFunc", func(_ map[string]any) map[string]any {
		return map[string]any{
			"message": "hello world",
		}
	})
	assert.Equal(t, "hello world", m.Get("setFunc")["message"])
}

func TestGetOrCreate(t *testing.T) {
	m := safe.NewMap[*int](nil)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		seen    = map[*int]struct{}{}
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			val := m.GetOrCreate("key", func() *int {
				mu.Lock()
				created++
				mu.Unlock()
				return new(int)
			})
			mu.Lock()
			seen[val] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
	assert.Len(t, seen, 1)
	_, ok := m.Lookup("missing")
	assert.False(t, ok)
}

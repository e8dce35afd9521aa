package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/autom8ter/livequery"
	"github.com/autom8ter/livequery/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatch(t *testing.T) {
	script := strings.Join([]string{
		`{"op":"insert","doc":{"_id":"1","status":"open","priority":1}}`,
		`{"op":"insert","doc":{"_id":"2","status":"closed"}}`,
		``,
		`{"op":"update","id":"1","modifier":{"$inc":{"priority":1}}}`,
		`{"op":"update","id":"1","modifier":{"$set":{"status":"closed"}}}`,
		`{"op":"upsert","id":"3","modifier":{"$setOnInsert":{"status":"open"}}}`,
		`{"op":"remove","id":"3"}`,
	}, "\n")
	out := bytes.NewBuffer(nil)
	err := watch(context.Background(), watchOpts{
		provider:   "badger",
		collection: "items",
		selector:   livequery.MustParseSelector(map[string]any{"status": "open"}),
	}, strings.NewReader(script), out)
	require.NoError(t, err)

	var got []notification
	scanner := bufio.NewScanner(out)
	for scanner.Scan() {
		var n notification
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &n))
		got = append(got, n)
	}
	require.Len(t, got, 5)
	assert.Equal(t, "added", got[0].Callback)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "changed", got[1].Callback)
	assert.Equal(t, map[string]any{"priority": float64(2)}, got[1].Fields)
	assert.Equal(t, "removed", got[2].Callback)
	assert.Equal(t, "1", got[2].ID)
	assert.Equal(t, "added", got[3].Callback)
	assert.Equal(t, "3", got[3].ID)
	assert.Equal(t, "removed", got[4].Callback)
}

func TestWatchInvalidScript(t *testing.T) {
	for name, script := range map[string]string{
		"malformed json":  `{"op":`,
		"unknown op":      `{"op":"truncate"}`,
		"missing doc":     `{"op":"update","id":"missing","modifier":{"$set":{"a":1}}}`,
		"unknown provider": "",
	} {
		t.Run(name, func(t *testing.T) {
			provider := "badger"
			if name == "unknown provider" {
				provider = "nope"
			}
			err := watch(context.Background(), watchOpts{
				provider:   provider,
				collection: "items",
			}, strings.NewReader(script), bytes.NewBuffer(nil))
			assert.Error(t, err)
			if name == "missing doc" {
				assert.True(t, errors.Is(err, errors.NotFound))
			}
		})
	}
}

func TestVersion(t *testing.T) {
	out := bytes.NewBuffer(nil)
	cmd := versionCmd()
	cmd.SetOut(out)
	require.NoError(t, cmd.Execute())
	assert.Equal(t, version+"\n", out.String())
}

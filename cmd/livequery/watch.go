package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/autom8ter/livequery"
	"github.com/autom8ter/livequery/errors"
	_ "github.com/autom8ter/livequery/kv/badger"
	"github.com/autom8ter/livequery/kv/registry"
	"github.com/autom8ter/livequery/store"
	"github.com/autom8ter/livequery/util"
	"github.com/spf13/cobra"
)

// write is a single line of a watch script
type write struct {
	Op       string             `json:"op" validate:"required,oneof=insert update upsert remove"`
	ID       string             `json:"id"`
	Doc      map[string]any     `json:"doc"`
	Modifier livequery.Modifier `json:"modifier"`
}

// notification is a printed callback
type notification struct {
	Callback string              `json:"callback"`
	ID       string              `json:"id"`
	Document *livequery.Document `json:"document,omitempty"`
	Fields   map[string]any      `json:"fields,omitempty"`
}

func watchCmd() *cobra.Command {
	var (
		configPath  string
		provider    string
		storagePath string
		collection  string
		selector    string
		scriptPath  string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "observe a collection while replaying a json-lines write script, printing each callback",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := livequery.Config{}
			if configPath != "" {
				bits, err := os.ReadFile(configPath)
				if err != nil {
					return err
				}
				cfg, err = livequery.LoadConfig(bits)
				if err != nil {
					return err
				}
			}
			sel := map[string]any{}
			if err := json.Unmarshal([]byte(selector), &sel); err != nil {
				return errors.Wrap(err, errors.Validation, "invalid selector")
			}
			parsed, err := livequery.ParseSelector(sel)
			if err != nil {
				return err
			}
			var script io.Reader = cmd.InOrStdin()
			if scriptPath != "" && scriptPath != "-" {
				f, err := os.Open(scriptPath)
				if err != nil {
					return err
				}
				defer f.Close()
				script = f
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return watch(ctx, watchOpts{
				config:      cfg,
				provider:    provider,
				storagePath: storagePath,
				collection:  collection,
				selector:    parsed,
			}, script, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a yaml or json config file")
	cmd.Flags().StringVar(&provider, "provider", "badger", "kv provider")
	cmd.Flags().StringVar(&storagePath, "storage-path", "", "kv storage path (empty for in-memory)")
	cmd.Flags().StringVar(&collection, "collection", "items", "collection to observe")
	cmd.Flags().StringVarP(&selector, "selector", "s", "{}", "selector of the observed query (json)")
	cmd.Flags().StringVarP(&scriptPath, "script", "f", "-", "json-lines write script (- for stdin)")
	return cmd
}

type watchOpts struct {
	config      livequery.Config
	provider    string
	storagePath string
	collection  string
	selector    livequery.Selector
}

func watch(ctx context.Context, opts watchOpts, script io.Reader, out io.Writer) error {
	db, err := registry.Open(opts.provider, map[string]interface{}{
		"storage_path": opts.storagePath,
	})
	if err != nil {
		return err
	}
	defer db.Close(ctx)
	inv, err := livequery.New(opts.config)
	if err != nil {
		return err
	}
	defer inv.Close(ctx)
	coll, err := store.Open(opts.collection, db, inv)
	if err != nil {
		return err
	}

	var mu sync.Mutex
	enc := json.NewEncoder(out)
	emit := func(n notification) {
		mu.Lock()
		defer mu.Unlock()
		_ = enc.Encode(n)
	}
	h, err := coll.Observe(ctx, opts.selector, livequery.ObserveCallbacks{
		Added: func(doc *livequery.Document) {
			emit(notification{Callback: "added", ID: doc.ID(), Document: doc})
		},
		Removed: func(id string) {
			emit(notification{Callback: "removed", ID: id})
		},
		Changed: func(id string, fields map[string]any) {
			emit(notification{Callback: "changed", ID: id, Fields: fields})
		},
	})
	if err != nil {
		return err
	}
	defer h.Stop()
	return replay(ctx, coll, inv, script)
}

// replay applies each write of the script in order. Update refreshes are awaited before the next write.
func replay(ctx context.Context, coll *store.Collection, inv *livequery.Invalidator, script io.Reader) error {
	scanner := bufio.NewScanner(script)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var w write
		if err := json.Unmarshal(scanner.Bytes(), &w); err != nil {
			return errors.Wrap(err, errors.Validation, "line %d: invalid write", line)
		}
		if err := util.ValidateStruct(w); err != nil {
			return errors.Wrap(err, errors.Validation, "line %d: invalid write", line)
		}
		if err := apply(ctx, coll, w); err != nil {
			return errors.Wrap(err, 0, "line %d", line)
		}
		inv.Wait()
	}
	return scanner.Err()
}

func apply(ctx context.Context, coll *store.Collection, w write) error {
	switch w.Op {
	case "insert":
		doc, err := livequery.NewDocumentFrom(w.Doc)
		if err != nil {
			return err
		}
		_, err = coll.Insert(ctx, doc)
		return err
	case "update":
		return coll.Update(ctx, w.ID, w.Modifier)
	case "upsert":
		_, err := coll.Upsert(ctx, w.ID, w.Modifier)
		return err
	default:
		return coll.Remove(ctx, w.ID)
	}
}

package livequery

import "context"

type ctxKey int

const (
	metadataKey ctxKey = 0
)

// SetMetadataValues sets metadata key value pairs in the context. Metadata is attached to every log line
// written while invalidating on behalf of the context, including after the fetch completes.
func SetMetadataValues(ctx context.Context, data map[string]any) context.Context {
	m := ExtractMetadata(ctx).Clone()
	_ = m.SetAll(data)
	return context.WithValue(ctx, metadataKey, m)
}

// GetMetadataValue gets a metadata value from the context if it exists
func GetMetadataValue(ctx context.Context, key string) any {
	m, ok := ctx.Value(metadataKey).(*Document)
	if !ok {
		return nil
	}
	return m.Get(key)
}

// ExtractMetadata extracts metadata from the context and returns it
func ExtractMetadata(ctx context.Context) *Document {
	m, ok := ctx.Value(metadataKey).(*Document)
	if ok {
		return m
	}
	return NewDocument()
}

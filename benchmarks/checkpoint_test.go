package benchmarks

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/epirlabs/bqanalyst/pkg/bqanalyst/checkpoint"
	"github.com/epirlabs/bqanalyst/pkg/bqanalyst/docstore"
)

// largeTranscript builds a realistic conversation payload.
func largeTranscript(turns int) []any {
	msgs := make([]any, 0, turns)
	for i := 0; i < turns; i++ {
		msgs = append(msgs, map[string]any{
			"role":    "assistant",
			"content": fmt.Sprintf("turn %d: aggregated 50 rows from sales.orders grouped by region", i),
		})
	}
	return msgs
}

func benchmarkPut(b *testing.B, client docstore.Client) {
	saver := checkpoint.New(client)
	ctx := context.Background()
	values := map[string]any{"messages": largeTranscript(20)}

	version, _ := checkpoint.NextVersion("")
	parent := checkpoint.Ref{ThreadID: "bench"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cp := &checkpoint.Checkpoint{
			ID:              checkpoint.NewID(),
			Timestamp:       time.Now().UTC(),
			ChannelValues:   values,
			ChannelVersions: checkpoint.ChannelVersions{"messages": version},
		}
		ref, err := saver.Put(ctx, parent, cp, checkpoint.Metadata{"step": i},
			checkpoint.ChannelVersions{"messages": version})
		if err != nil {
			b.Fatal(err)
		}
		parent = ref
		version, _ = checkpoint.NextVersion(version)
	}
}

func benchmarkGetTuple(b *testing.B, client docstore.Client) {
	saver := checkpoint.New(client)
	ctx := context.Background()

	version, _ := checkpoint.NextVersion("")
	cp := &checkpoint.Checkpoint{
		ID:              checkpoint.NewID(),
		Timestamp:       time.Now().UTC(),
		ChannelValues:   map[string]any{"messages": largeTranscript(20)},
		ChannelVersions: checkpoint.ChannelVersions{"messages": version},
	}
	ref, err := saver.Put(ctx, checkpoint.Ref{ThreadID: "bench"}, cp, nil,
		checkpoint.ChannelVersions{"messages": version})
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := saver.GetTuple(ctx, ref); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSaverPut_Memory(b *testing.B) {
	client := docstore.NewMemoryClient()
	defer client.Close()
	benchmarkPut(b, client)
}

func BenchmarkSaverPut_SQLite(b *testing.B) {
	client, err := docstore.NewSQLiteClient(":memory:")
	if err != nil {
		b.Fatal(err)
	}
	defer client.Close()
	benchmarkPut(b, client)
}

func BenchmarkSaverGetTuple_Memory(b *testing.B) {
	client := docstore.NewMemoryClient()
	defer client.Close()
	benchmarkGetTuple(b, client)
}

func BenchmarkSaverGetTuple_SQLite(b *testing.B) {
	client, err := docstore.NewSQLiteClient(":memory:")
	if err != nil {
		b.Fatal(err)
	}
	defer client.Close()
	benchmarkGetTuple(b, client)
}

func BenchmarkFieldsEncodeDecode(b *testing.B) {
	fields := docstore.Fields{
		"thread_id":       docstore.String("bench-thread"),
		"checkpoint_ns":   docstore.String(""),
		"checkpoint_id":   docstore.String(checkpoint.NewID()),
		"checkpoint_data": docstore.Bytes(make([]byte, 4096)),
		"idx":             docstore.Int(3),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		data, err := docstore.EncodeFields(fields)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := docstore.DecodeFields(data); err != nil {
			b.Fatal(err)
		}
	}
}

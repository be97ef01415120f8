package checkpoint_test

import (
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epirlabs/bqanalyst/pkg/bqanalyst/checkpoint"
)

func TestNewID_SortsInCreationOrder(t *testing.T) {
	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		ids = append(ids, checkpoint.NewID())
		time.Sleep(time.Millisecond)
	}

	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	assert.Equal(t, ids, sorted)
}

func TestNewID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := checkpoint.NewID()
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestNextVersion(t *testing.T) {
	v1, err := checkpoint.NextVersion("")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%032d", 1), v1)

	v2, err := checkpoint.NextVersion(v1)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%032d", 2), v2)
	assert.Greater(t, v2, v1)
}

func TestNextVersion_ToleratesSuffix(t *testing.T) {
	v, err := checkpoint.NextVersion("00000000000000000000000000000005.abc123")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%032d", 6), v)
}

func TestNextVersion_InvalidToken(t *testing.T) {
	_, err := checkpoint.NextVersion("not-a-number")
	assert.Error(t, err)
}

func TestNextVersion_SortsLexically(t *testing.T) {
	v := ""
	var err error
	prev := ""
	for i := 0; i < 100; i++ {
		v, err = checkpoint.NextVersion(v)
		require.NoError(t, err)
		if prev != "" {
			assert.Greater(t, v, prev)
		}
		prev = v
	}
}

func TestJSONCodec_RoundTrip(t *testing.T) {
	codec := checkpoint.JSONCodec{}

	in := map[string]any{"role": "user", "count": float64(3)}
	typeTag, data, err := codec.Encode(in)
	require.NoError(t, err)
	assert.NotEqual(t, checkpoint.BlobTypeEmpty, typeTag)

	var out map[string]any
	require.NoError(t, codec.Decode(typeTag, data, &out))
	assert.Equal(t, in, out)
}

func TestJSONCodec_UnknownTypeTag(t *testing.T) {
	codec := checkpoint.JSONCodec{}

	var out any
	err := codec.Decode("msgpack", []byte("{}"), &out)
	assert.Error(t, err)
}

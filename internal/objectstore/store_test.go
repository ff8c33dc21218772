package objectstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_PutGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Put(ctx, "queries/foo/videos/a.mp4", []byte("data"), ""))

	data, err := s.Get(ctx, "queries/foo/videos/a.mp4")
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), data)
}

func TestMemoryStore_GetMissingIsNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.Get(ctx, "queries/foo/videos/missing.mp4")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestMemoryStore_List(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Put(ctx, "queries/foo/videos/a.mp4", []byte("1"), ""))
	require.NoError(t, s.Put(ctx, "queries/foo/videos/b.mp4", []byte("2"), ""))
	require.NoError(t, s.Put(ctx, "queries/bar/videos/c.mp4", []byte("3"), ""))

	keys, err := s.List(ctx, "queries/foo/videos/")
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "queries/foo/videos/a.mp4", keys[0].Key)
	assert.Equal(t, "queries/foo/videos/b.mp4", keys[1].Key)
}

func TestMemoryStore_Copy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Put(ctx, "src", []byte("payload"), ""))
	require.NoError(t, s.Copy(ctx, "src", "dst"))

	data, err := s.Get(ctx, "dst")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	err = s.Copy(ctx, "does-not-exist", "dst2")
	assert.True(t, IsNotFound(err))
}

func TestMemoryStore_Exists(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	ok, err := s.Exists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "present", []byte("x"), ""))
	ok, err = s.Exists(ctx, "present")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStore_JSONRoundtrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	type payload struct {
		Name string `json:"name"`
	}
	require.NoError(t, s.PutJSON(ctx, "manifest.json", payload{Name: "anti-gravity"}))

	var out payload
	require.NoError(t, s.GetJSON(ctx, "manifest.json", &out))
	assert.Equal(t, "anti-gravity", out.Name)
}

func TestContentTypeForKey(t *testing.T) {
	assert.Equal(t, "application/json", ContentTypeForKey("queries/foo/manifest.json"))
	assert.Equal(t, "video/mp4", ContentTypeForKey("queries/foo/videos/a.mp4"))
	assert.Equal(t, "text/plain; charset=utf-8", ContentTypeForKey("queries/foo/combined/combined-transcription.txt"))
	assert.Equal(t, "application/octet-stream", ContentTypeForKey("queries/foo/misc/data.bin"))
}

func TestGetWithLegacyFallback(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Put(ctx, "videos/foo.mp4", []byte("legacy"), ""))

	before := LegacyFallbackCount()
	data, err := GetWithLegacyFallback(ctx, s, "queries/x/videos/foo.mp4", "videos/foo.mp4")
	require.NoError(t, err)
	assert.Equal(t, []byte("legacy"), data)
	assert.Equal(t, before+1, LegacyFallbackCount())

	_, err = GetWithLegacyFallback(ctx, s, "queries/x/videos/bar.mp4", "videos/bar.mp4")
	assert.True(t, IsNotFound(err))
}

func TestGetWithLegacyFallback_CanonicalPreferred(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Put(ctx, "queries/x/videos/foo.mp4", []byte("canonical"), ""))
	require.NoError(t, s.Put(ctx, "videos/foo.mp4", []byte("legacy"), ""))

	before := LegacyFallbackCount()
	data, err := GetWithLegacyFallback(ctx, s, "queries/x/videos/foo.mp4", "videos/foo.mp4")
	require.NoError(t, err)
	assert.Equal(t, []byte("canonical"), data)
	assert.Equal(t, before, LegacyFallbackCount())
}

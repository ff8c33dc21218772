package manifest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxbowlabs/vqueryd/internal/objectstore"
	"github.com/oxbowlabs/vqueryd/internal/platform/logger"
)

func newTestStore() *Store {
	return NewStore(objectstore.NewMemoryStore(), NewInMemoryLocker(), logger.Nop())
}

func TestUpsert_CreatesManifestWhenMissing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	m, err := s.Upsert(ctx, "anti-gravity", Partial{
		Query: "anti gravity",
		Videos: []VideoRecord{
			{URL: "https://example.com/a", ObjectKey: "queries/anti-gravity/videos/a.mp4", Status: StatusDiscovered},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "anti-gravity", m.Slug)
	assert.Equal(t, "anti gravity", m.Query)
	require.Len(t, m.Videos, 1)
	assert.Equal(t, StatusDiscovered, m.Videos[0].Status)
}

func TestUpsert_MergesByObjectKey_UnionOfDisjointFields(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	key := "queries/anti-gravity/videos/a.mp4"

	_, err := s.Upsert(ctx, "anti-gravity", Partial{
		Query:  "anti gravity",
		Videos: []VideoRecord{{URL: "https://example.com/a", ObjectKey: key, Status: StatusDiscovered}},
	})
	require.NoError(t, err)

	m, err := s.Upsert(ctx, "anti-gravity", Partial{
		Videos: []VideoRecord{{ObjectKey: key, TranscriptKey: "queries/anti-gravity/transcripts/a.json", Status: StatusTranscribed}},
	})
	require.NoError(t, err)

	require.Len(t, m.Videos, 1)
	v := m.Videos[0]
	assert.Equal(t, "https://example.com/a", v.URL, "fields from the first upsert survive")
	assert.Equal(t, "queries/anti-gravity/transcripts/a.json", v.TranscriptKey, "fields from the second upsert are added")
	assert.Equal(t, StatusTranscribed, v.Status, "conflicting field takes the later value")
}

func TestUpsert_UnknownObjectKeyAppended(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	_, err := s.Upsert(ctx, "anti-gravity", Partial{
		Videos: []VideoRecord{{ObjectKey: "queries/anti-gravity/videos/a.mp4", Status: StatusDiscovered}},
	})
	require.NoError(t, err)

	m, err := s.Upsert(ctx, "anti-gravity", Partial{
		Videos: []VideoRecord{{ObjectKey: "queries/anti-gravity/videos/b.mp4", Status: StatusDiscovered}},
	})
	require.NoError(t, err)
	assert.Len(t, m.Videos, 2)
}

func TestUpsert_CombinedShallowMerge(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	_, err := s.Upsert(ctx, "anti-gravity", Partial{
		Combined: &CombinedBlock{OutputKey: "queries/anti-gravity/combined/combined-output.json"},
	})
	require.NoError(t, err)

	m, err := s.Upsert(ctx, "anti-gravity", Partial{
		Combined: &CombinedBlock{KeywordsKey: "queries/anti-gravity/combined/combined-keywords.json"},
	})
	require.NoError(t, err)
	assert.Equal(t, "queries/anti-gravity/combined/combined-output.json", m.Combined.OutputKey)
	assert.Equal(t, "queries/anti-gravity/combined/combined-keywords.json", m.Combined.KeywordsKey)
}

func TestUpsert_ConcurrentWritersSerialize(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := objectKeyFor(i)
			_, err := s.Upsert(ctx, "anti-gravity", Partial{
				Videos: []VideoRecord{{ObjectKey: key, Status: StatusDiscovered}},
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	m, err := s.Get(ctx, "anti-gravity")
	require.NoError(t, err)
	assert.Len(t, m.Videos, 20, "every concurrent upsert's record must survive the lock serialization")
}

func objectKeyFor(i int) string {
	return "queries/anti-gravity/videos/" + string(rune('a'+i)) + ".mp4"
}

func TestGet_MissingManifestReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	m, err := s.Get(ctx, "never-upserted")
	require.NoError(t, err)
	assert.Equal(t, "never-upserted", m.Slug)
	assert.Empty(t, m.Videos)
}

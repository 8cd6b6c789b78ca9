package artifact

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saibing/cjlscore/internal/model"
)

func TestLRUEvictsOldestAndNotifies(t *testing.T) {
	var evicted []model.PackageID
	c := New(2, nil, func(p model.PackageID) { evicted = append(evicted, p) })

	c.Set("a", &Artifact{Package: "a"})
	c.Set("b", &Artifact{Package: "b"})
	c.Set("c", &Artifact{Package: "c"}) // evicts "a"

	require.Len(t, evicted, 1)
	assert.Equal(t, model.PackageID("a"), evicted[0])
	assert.False(t, c.Has("a"))
	assert.True(t, c.Has("b"))
	assert.True(t, c.Has("c"))
}

func TestLeaseDefersEviction(t *testing.T) {
	var evicted []model.PackageID
	c := New(1, nil, func(p model.PackageID) { evicted = append(evicted, p) })

	c.Set("a", &Artifact{Package: "a"})
	lease := c.Get("a")
	require.NotNil(t, lease)

	// Evict "a" by adding a second entry over capacity 1.
	c.Set("b", &Artifact{Package: "b"})
	assert.Empty(t, evicted, "eviction must be deferred while a lease is outstanding")

	lease.Release()
	assert.Equal(t, []model.PackageID{"a"}, evicted)
}

func TestSetIfExistsOnlyUpdatesExistingEntries(t *testing.T) {
	c := New(2, nil, nil)
	ok := c.SetIfExists("a", &Artifact{Package: "a"})
	assert.False(t, ok)
	assert.False(t, c.Has("a"))

	c.Set("a", &Artifact{Package: "a"})
	ok = c.SetIfExists("a", &Artifact{Package: "a", BI: []byte("v2")})
	assert.True(t, ok)
	lease := c.Get("a")
	require.NotNil(t, lease)
	assert.Equal(t, []byte("v2"), lease.Artifact().BI)
	lease.Release()
}

func TestDiskStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDiskStore(dir)
	require.NoError(t, err)

	digest := Digest("/src/a")
	require.NoError(t, store.Save("a", digest, []byte("bi-bytes"), []byte("shard-bytes")))

	bi, shard, gotDigest, ok := store.Load("a")
	require.True(t, ok)
	assert.Equal(t, []byte("bi-bytes"), bi)
	assert.Equal(t, []byte("shard-bytes"), shard)
	assert.Equal(t, digest, gotDigest)

	assert.False(t, store.IsStale("a", digest))
	assert.True(t, store.IsStale("a", Digest("/src/other")))

	_, err = os.Stat(dir + "/.cache/valid.txt")
	assert.NoError(t, err)
}

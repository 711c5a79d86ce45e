package fs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

var testNow = time.Unix(1_700_000_000, 0)

func newTestStore(t *testing.T, options ...Option) *Store {
	t.Helper()
	s, err := New(Config{Root: t.TempDir()}, options...)
	require.NoError(t, err)
	return s
}

func writeTemp(t *testing.T, s *Store, data string) string {
	t.Helper()
	p, err := s.Spool(context.Background(), strings.NewReader(data))
	require.NoError(t, err)
	return p
}

func TestComputeHash(t *testing.T) {
	digest, err := ComputeHash(bytes.NewReader([]byte("hello")))
	require.NoError(t, err)
	assert.Equal(t, "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d", digest)
}

func TestShardPath(t *testing.T) {
	digest := "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d"
	month := MonthBucket(testNow)
	assert.Equal(t, int64(655), month)

	tests := []struct {
		name  string
		base  string
		level int
		want  string
	}{
		{"default level", "photos", 4, "/photos/655/aa/f4/c6/1d/dcc5e8a2dabede0f3b482cd9aea9434d"},
		{"level two", "/upload/photo", 2, "/upload/photo/655/aa/f4/c61ddcc5e8a2dabede0f3b482cd9aea9434d"},
		{"zero level falls back", "photos", 0, "/photos/655/aa/f4/c6/1d/dcc5e8a2dabede0f3b482cd9aea9434d"},
		{"level longer than digest falls back", "photos", 30, "/photos/655/aa/f4/c6/1d/dcc5e8a2dabede0f3b482cd9aea9434d"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShardPath(tt.base, digest, tt.level, testNow))
		})
	}
}

func TestShardPath_Deterministic(t *testing.T) {
	a := ShardPath("p", "0123456789abcdef", 4, testNow)
	b := ShardPath("p", "0123456789abcdef", 4, testNow.Add(time.Hour))
	assert.Equal(t, a, b)

	c := ShardPath("p", "0199456789abcdef", 4, testNow)
	aSegs := strings.Split(a, "/")
	cSegs := strings.Split(c, "/")
	assert.Equal(t, aSegs[:4], cSegs[:4])
	assert.NotEqual(t, aSegs[4], cSegs[4])
}

func TestShardPath_RemainderContainingPrefixIsKept(t *testing.T) {
	// The prefix "abab" reappears later in the digest; only the leading copy is consumed.
	got := ShardPath("p", "ababcdabab", 2, testNow)
	assert.Equal(t, "/p/655/ab/ab/cdabab", got)
}

func TestAllocateUniqueName_SkipsExisting(t *testing.T) {
	names := []string{"taken1", "taken2", "free"}
	i := 0
	s := newTestStore(t, WithNameFunc(func(time.Time) string {
		n := names[i]
		i++
		return n
	}))
	dir := filepath.Join(s.Root(), "d")
	require.NoError(t, os.MkdirAll(dir, 0755))
	for _, n := range []string{"taken1", "taken2"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n+".jpg"), []byte("x"), 0644))
	}

	name, err := s.AllocateUniqueName(context.Background(), dir, "jpg", testNow)
	require.NoError(t, err)
	assert.Equal(t, "free", name)
	assert.Equal(t, 3, i)
}

func TestAllocateUniqueName_Exhausted(t *testing.T) {
	calls := 0
	s := newTestStore(t, WithNameFunc(func(time.Time) string {
		calls++
		return "same"
	}))
	dir := filepath.Join(s.Root(), "d")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "same.png"), []byte("x"), 0644))

	_, err := s.AllocateUniqueName(context.Background(), dir, "png", testNow)
	require.Error(t, err)
	assert.ErrorIs(t, err, simplemedia.ErrStorageExhausted)
	assert.True(t, simplemedia.IsStorage(err))
	assert.Equal(t, DefaultNameAttempts, calls)
}

func TestAllocateUniqueName_ManyCollisions(t *testing.T) {
	seq := 0
	s := newTestStore(t, WithNameFunc(func(time.Time) string {
		seq++
		return fmt.Sprintf("n%d", seq%60)
	}))
	dir := filepath.Join(s.Root(), "d")
	require.NoError(t, os.MkdirAll(dir, 0755))
	for k := 1; k < 50; k++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, fmt.Sprintf("n%d.gif", k)), []byte("x"), 0644))
	}

	name, err := s.AllocateUniqueName(context.Background(), dir, "gif", testNow)
	require.NoError(t, err)
	_, statErr := os.Stat(filepath.Join(dir, name+".gif"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestUniqueName_Format(t *testing.T) {
	n := UniqueName(testNow)
	parts := strings.SplitN(n, ".", 2)
	require.Len(t, parts, 2)
	assert.Equal(t, "1700000000", parts[0])
	assert.Len(t, parts[1], 32)
	assert.NotEqual(t, n, UniqueName(testNow))
}

func TestPut_CommitsIntoShard(t *testing.T) {
	s := newTestStore(t)
	tmp := writeTemp(t, s, "hello")
	digest, err := s.Hash(tmp)
	require.NoError(t, err)

	stored, err := s.Put(context.Background(), tmp, "photos", digest, "jpg", 4, testNow)
	require.NoError(t, err)

	assert.Equal(t, "/photos/655/aa/f4/c6/1d/dcc5e8a2dabede0f3b482cd9aea9434d/", stored.Dir)
	assert.Equal(t, "jpg", stored.Ext)

	data, err := os.ReadFile(s.Abs(stored.Dir + stored.Name + ".jpg"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = os.Stat(tmp)
	assert.True(t, os.IsNotExist(err), "temp file should be moved")

	info, err := os.Stat(s.Abs(stored.Dir))
	require.NoError(t, err)
	assert.Equal(t, DefaultDirMode, info.Mode().Perm())
}

func TestPut_IdenticalContentIsNotDeduplicated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var stored []*simplemedia.StoredFile
	for i := 0; i < 2; i++ {
		tmp := writeTemp(t, s, "same bytes")
		digest, err := s.Hash(tmp)
		require.NoError(t, err)
		f, err := s.Put(ctx, tmp, "photos", digest, "png", 4, testNow)
		require.NoError(t, err)
		stored = append(stored, f)
	}

	assert.Equal(t, stored[0].Dir, stored[1].Dir)
	assert.NotEqual(t, stored[0].Name, stored[1].Name)
	entries, err := os.ReadDir(s.Abs(stored[0].Dir))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestCommit_MissingSource(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Commit(filepath.Join(s.Root(), "nope"), filepath.Join(s.Root(), "a/b"), "x.jpg")
	require.Error(t, err)
	assert.True(t, simplemedia.IsStorage(err))
}

func TestRemoveAndRename(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(s.Abs("/a/b"), 0755))
	require.NoError(t, os.WriteFile(s.Abs("/a/b/f.jpg"), []byte("x"), 0644))

	require.NoError(t, s.Rename("/a/b/f.jpg", "/a/b/_1.f.jpg"))
	_, err := os.Stat(s.Abs("/a/b/_1.f.jpg"))
	require.NoError(t, err)

	require.NoError(t, s.Rename("/a/b/missing.jpg", "/a/b/_1.missing.jpg"), "missing source is ignored")

	require.NoError(t, s.Remove("/a/b/_1.f.jpg"))
	require.NoError(t, s.Remove("/a/b/_1.f.jpg"), "missing file counts as deleted")
}

func TestRemove_PrunesEmptyDirectories(t *testing.T) {
	root := t.TempDir()
	s, err := New(Config{Root: root, PruneDirs: true})
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(s.Abs("/a/b/c"), 0755))
	require.NoError(t, os.WriteFile(s.Abs("/a/b/c/f.jpg"), []byte("x"), 0644))

	require.NoError(t, s.Remove("/a/b/c/f.jpg"))

	_, err = os.Stat(s.Abs("/a"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(root)
	assert.NoError(t, err)
}

func TestRelAbsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	rel := "/photos/1/aa/f.jpg"
	assert.Equal(t, rel, s.Rel(s.Abs(rel)))
}

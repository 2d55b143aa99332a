package cache

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zundamotion/zundamotion/internal/config"
)

func newTestManager(t *testing.T, mode Mode) *Manager {
	t.Helper()
	dir := t.TempDir()
	m, err := New(config.CacheConfig{
		Dir:      filepath.Join(dir, "cache"),
		MaxSize:  config.ByteSize(1 << 20),
		TTLHours: 240,
	}, filepath.Join(dir, "scratch"), mode, nil)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "scratch"), 0755))
	return m
}

func TestKeyHashStable(t *testing.T) {
	a := Key{"speaker": 1, "text": "hello", "params": map[string]any{"speed": 1.0, "pitch": 0.0}}
	b := Key{"params": map[string]any{"pitch": 0.0, "speed": 1.0}, "text": "hello", "speaker": 1}

	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)
	assert.Equal(t, ha, hb, "key order must not affect the hash")
	assert.Len(t, ha, 64)

	c := Key{"speaker": 2, "text": "hello", "params": map[string]any{"speed": 1.0, "pitch": 0.0}}
	hc, err := c.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, ha, hc, "changed parameter must change the hash")
}

func TestKeyHashYAMLMaps(t *testing.T) {
	k := Key{"layout": map[any]any{"fit": "contain", "anchor": "middle_center"}}
	h, err := k.Hash()
	require.NoError(t, err)
	assert.Len(t, h, 64)
}

func TestGetOrCreate(t *testing.T) {
	m := newTestManager(t, ModeNormal)
	key := Key{"text": "hi", "speaker": 1}

	calls := 0
	create := func(_ context.Context, tmp string) error {
		calls++
		return os.WriteFile(tmp, []byte("audio"), 0644)
	}

	path, hit, err := m.GetOrCreate(context.Background(), "voice", key, "wav", create)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1, calls)
	assert.True(t, strings.HasSuffix(path, ".wav"))
	assert.Contains(t, filepath.Base(path), "voice_")

	// second call is a hit, create not invoked again
	path2, hit, err := m.GetOrCreate(context.Background(), "voice", key, "wav", create)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, path, path2)
	assert.Equal(t, 1, calls)
}

func TestGetOrCreateFailureLeavesNothing(t *testing.T) {
	m := newTestManager(t, ModeNormal)
	key := Key{"text": "boom"}

	_, _, err := m.GetOrCreate(context.Background(), "voice", key, "wav",
		func(_ context.Context, tmp string) error {
			_ = os.WriteFile(tmp, []byte("partial"), 0644)
			return assert.AnError
		})
	require.Error(t, err)

	path, err := m.Path("voice", key, "wav")
	require.NoError(t, err)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "failed creation must not leave a cache entry")
}

func TestGetOrCreateConcurrentDedupe(t *testing.T) {
	m := newTestManager(t, ModeNormal)
	key := Key{"text": "same"}

	var mu sync.Mutex
	calls := 0
	create := func(_ context.Context, tmp string) error {
		mu.Lock()
		calls++
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		return os.WriteFile(tmp, []byte("x"), 0644)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := m.GetOrCreate(context.Background(), "clip", key, "mp4", create)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, calls, "concurrent identical keys must share one creation")
}

func TestModeDisabled(t *testing.T) {
	m := newTestManager(t, ModeDisabled)
	key := Key{"text": "hi"}

	calls := 0
	create := func(_ context.Context, tmp string) error {
		calls++
		return os.WriteFile(tmp, []byte("x"), 0644)
	}

	p1, hit, err := m.GetOrCreate(context.Background(), "voice", key, "wav", create)
	require.NoError(t, err)
	assert.False(t, hit)
	p2, hit, err := m.GetOrCreate(context.Background(), "voice", key, "wav", create)
	require.NoError(t, err)
	assert.False(t, hit)

	assert.Equal(t, 2, calls)
	assert.NotEqual(t, p1, p2, "disabled mode must produce unique scratch files")
	assert.Contains(t, p1, "scratch")
}

func TestModeRefresh(t *testing.T) {
	m := newTestManager(t, ModeNormal)
	key := Key{"text": "hi"}
	write := func(content string) CreateFunc {
		return func(_ context.Context, tmp string) error {
			return os.WriteFile(tmp, []byte(content), 0644)
		}
	}

	path, _, err := m.GetOrCreate(context.Background(), "voice", key, "wav", write("old"))
	require.NoError(t, err)

	m.mode = ModeRefresh
	path2, hit, err := m.GetOrCreate(context.Background(), "voice", key, "wav", write("new"))
	require.NoError(t, err)
	assert.False(t, hit, "refresh mode must rebuild despite an existing entry")
	assert.Equal(t, path, path2)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestSave(t *testing.T) {
	m := newTestManager(t, ModeNormal)
	src := filepath.Join(t.TempDir(), "mixed.wav")
	require.NoError(t, os.WriteFile(src, []byte("pcm"), 0644))

	path, err := m.Save(src, "mix", Key{"n": 1}, "wav")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "pcm", string(data))

	// the copy is a first-class entry
	got, hit, err := m.Lookup("mix", Key{"n": 1}, "wav")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, path, got)

	// the source is untouched
	_, err = os.Stat(src)
	assert.NoError(t, err)
}

func TestSaveDisabledGoesToScratch(t *testing.T) {
	m := newTestManager(t, ModeDisabled)
	src := filepath.Join(t.TempDir(), "mixed.wav")
	require.NoError(t, os.WriteFile(src, []byte("pcm"), 0644))

	path, err := m.Save(src, "mix", Key{"n": 1}, "wav")
	require.NoError(t, err)
	assert.Contains(t, path, "scratch")
}

func TestStoreTriggersEviction(t *testing.T) {
	dir := t.TempDir()
	m, err := New(config.CacheConfig{
		Dir:      filepath.Join(dir, "cache"),
		MaxSize:  config.ByteSize(10),
		TTLHours: 240,
	}, dir, ModeNormal, nil)
	require.NoError(t, err)

	write := func(name string) string {
		path, _, err := m.GetOrCreate(context.Background(), name, Key{"n": name}, "bin",
			func(_ context.Context, tmp string) error {
				return os.WriteFile(tmp, []byte("12345678"), 0644)
			})
		require.NoError(t, err)
		return path
	}

	first := write("a")
	require.NoError(t, m.ix.db.Model(&Entry{}).Where("path = ?", first).
		Update("accessed_at", time.Now().Add(-time.Minute)).Error)

	// the second store itself must push the cache back under its cap
	second := write("b")

	_, err = os.Stat(first)
	assert.True(t, os.IsNotExist(err), "store must evict without an explicit call")
	_, err = os.Stat(second)
	assert.NoError(t, err, "the entry being written survives its own eviction pass")
}

func TestEvictTTLThenSize(t *testing.T) {
	dir := t.TempDir()
	m, err := New(config.CacheConfig{
		Dir:      filepath.Join(dir, "cache"),
		MaxSize:  config.ByteSize(10), // tiny cap to force size eviction
		TTLHours: 1,
	}, dir, ModeNormal, nil)
	require.NoError(t, err)

	write := func(name string) string {
		path, _, err := m.GetOrCreate(context.Background(), name, Key{"n": name}, "bin",
			func(_ context.Context, tmp string) error {
				return os.WriteFile(tmp, []byte("12345678"), 0644)
			})
		require.NoError(t, err)
		return path
	}

	oldPath := write("old")
	// age the first entry past the TTL
	require.NoError(t, m.ix.db.Model(&Entry{}).Where("path = ?", oldPath).
		Update("accessed_at", time.Now().Add(-2*time.Hour)).Error)

	newPath := write("new")

	require.NoError(t, m.Evict())

	_, err = os.Stat(oldPath)
	assert.True(t, os.IsNotExist(err), "expired entry must be evicted")
	_, err = os.Stat(newPath)
	assert.NoError(t, err, "fresh entry within the size cap must survive")
}

func TestEvictSkipsInflight(t *testing.T) {
	m := newTestManager(t, ModeNormal)
	m.maxSize = 1

	path, _, err := m.GetOrCreate(context.Background(), "busy", Key{"n": 1}, "bin",
		func(_ context.Context, tmp string) error {
			return os.WriteFile(tmp, []byte("data"), 0644)
		})
	require.NoError(t, err)

	m.setInflight(path, true)
	require.NoError(t, m.Evict())
	_, err = os.Stat(path)
	assert.NoError(t, err, "in-flight entries must not be evicted")

	m.setInflight(path, false)
	require.NoError(t, m.Evict())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

package results

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/harmony/internal/game/grid"
)

func victory(username string, moves int) Record {
	return Record{
		RecordedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Username:   username,
		Source:     SourceVictory,
		RoomID:     "room-1",
		Players:    []string{"alice", "bob", "carol", "dave"},
		PlayerPos:  &grid.Position{4, 4},
		TargetPos:  &grid.Position{4, 4},
		Status:     StatusWon,
		MovesCount: &moves,
	}
}

func TestFileLog_AppendAndRead(t *testing.T) {
	log, err := NewFileLog(filepath.Join(t.TempDir(), "results"))
	require.NoError(t, err)

	require.NoError(t, log.Append(context.Background(), victory("alice", 12)))
	require.NoError(t, log.Append(context.Background(), Record{
		RecordedAt: time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC),
		Username:   "alice",
		Source:     SourceClient,
		Status:     "abandoned",
	}))

	recs, err := log.Read("alice")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, victory("alice", 12), recs[0])
	assert.Equal(t, SourceClient, recs[1].Source)
	assert.Nil(t, recs[1].PlayerPos)
	assert.Nil(t, recs[1].MovesCount)
}

func TestFileLog_HumanReadable(t *testing.T) {
	log, err := NewFileLog(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, log.Append(context.Background(), victory("bob", 7)))

	data, err := os.ReadFile(log.Path("bob"))
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.HasPrefix(text, "---\n"))
	assert.Contains(t, text, "player_pos: [4, 4]")
	assert.Contains(t, text, "moves_count: 7")
	assert.Contains(t, text, "status: won")
}

func TestFileLog_ReadMissing(t *testing.T) {
	log, err := NewFileLog(t.TempDir())
	require.NoError(t, err)
	recs, err := log.Read("nobody")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestFileLog_PathStaysInsideDir(t *testing.T) {
	dir := t.TempDir()
	log, err := NewFileLog(dir)
	require.NoError(t, err)

	for _, name := range []string{"../../etc/passwd", "a/b", "", "Ирина", "x y"} {
		path := log.Path(name)
		assert.Equal(t, dir, filepath.Dir(path), "username %q", name)
	}
	assert.Equal(t, filepath.Join(dir, "alice_results.log"), log.Path("alice"))
}

func TestFileLog_SameLengthNonASCIINamesKeepSeparateLogs(t *testing.T) {
	log, err := NewFileLog(t.TempDir())
	require.NoError(t, err)

	assert.NotEqual(t, log.Path("Иван"), log.Path("Петр"))

	ctx := context.Background()
	require.NoError(t, log.Append(ctx, victory("Иван", 3)))
	require.NoError(t, log.Append(ctx, victory("Петр", 5)))

	ivan, err := log.Read("Иван")
	require.NoError(t, err)
	require.Len(t, ivan, 1)
	assert.Equal(t, "Иван", ivan[0].Username)

	petr, err := log.Read("Петр")
	require.NoError(t, err)
	require.Len(t, petr, 1)
	assert.Equal(t, "Петр", petr[0].Username)
}

func TestFileLog_HashedNameCannotShadowPlainName(t *testing.T) {
	log, err := NewFileLog(t.TempDir())
	require.NoError(t, err)
	assert.NotEqual(t, log.Path("a_b"), log.Path("a b"))
	assert.NotEqual(t, log.Path("_"), log.Path(""))
}

func TestFileLog_ConcurrentAppends(t *testing.T) {
	log, err := NewFileLog(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, log.Append(context.Background(), victory("carol", i)))
		}(i)
	}
	wg.Wait()

	recs, err := log.Read("carol")
	require.NoError(t, err)
	assert.Len(t, recs, 20)
}

type failingSink struct{ err error }

func (f failingSink) Append(context.Context, Record) error { return f.err }

type countingSink struct {
	mu sync.Mutex
	n  int
}

func (c *countingSink) Append(context.Context, Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return nil
}

func TestMulti_AttemptsEverySink(t *testing.T) {
	boom := errors.New("boom")
	counter := &countingSink{}
	m := Multi{failingSink{err: boom}, counter}

	err := m.Append(context.Background(), victory("dave", 1))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, counter.n)
}

func TestMulti_Empty(t *testing.T) {
	assert.NoError(t, Multi{}.Append(context.Background(), Record{}))
}

func TestPropertyFileLogPathIsSafe(t *testing.T) {
	dir := t.TempDir()
	log, err := NewFileLog(dir)
	require.NoError(t, err)
	rapid.Check(t, func(t *rapid.T) {
		name := rapid.String().Draw(t, "username")
		path := log.Path(name)
		if filepath.Dir(path) != dir {
			t.Fatalf("username %q escaped to %s", name, path)
		}
	})
}

func TestPropertyFileLogPathIsInjective(t *testing.T) {
	log, err := NewFileLog(t.TempDir())
	require.NoError(t, err)
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.String().Draw(t, "a")
		b := rapid.String().Draw(t, "b")
		if a != b && log.Path(a) == log.Path(b) {
			t.Fatalf("usernames %q and %q share %s", a, b, log.Path(a))
		}
	})
}

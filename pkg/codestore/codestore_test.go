package codestore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyLayout(t *testing.T) {
	assert.Equal(t, "duel_d1_python_code", Key("d1", "python"))
	assert.Equal(t, "duel_d1_opponent_code", OpponentKey("d1"))
}

func TestMemory_SetGetDelete(t *testing.T) {
	s := NewMemory()

	s.Set(Key("d1", "python"), "print(1)")
	v, ok := s.Get(Key("d1", "python"))
	require.True(t, ok)
	assert.Equal(t, "print(1)", v)

	s.Delete(Key("d1", "python"))
	_, ok = s.Get(Key("d1", "python"))
	assert.False(t, ok)
}

func TestClearDuel_RemovesOnlyThatDuel(t *testing.T) {
	s := NewMemory()
	s.Set(Key("d1", "python"), "a")
	s.Set(Key("d1", "go"), "b")
	s.Set(OpponentKey("d1"), "c")
	s.Set(Key("d2", "python"), "keep")

	ClearDuel(s, "d1")

	assert.Empty(t, s.Keys("duel_d1_"))
	v, ok := s.Get(Key("d2", "python"))
	require.True(t, ok)
	assert.Equal(t, "keep", v)
}

func TestLRU_BehavesLikeStore(t *testing.T) {
	s := NewLRU(16, time.Minute)
	s.Set(Key("d1", "python"), "x")
	s.Set(OpponentKey("d1"), "y")

	assert.Len(t, s.Keys("duel_d1_"), 2)

	ClearDuel(s, "d1")
	assert.Empty(t, s.Keys("duel_d1_"))
}

func TestSaver_DebounceLastWriteWins(t *testing.T) {
	store := NewMemory()
	saver := NewSaver(store, 20*time.Millisecond)
	defer saver.Close()

	key := Key("d1", "python")
	saver.Save(key, "a")
	saver.Save(key, "ab")
	saver.Save(key, "abc")

	// Nothing lands before the window lapses.
	_, ok := store.Get(key)
	assert.False(t, ok)

	require.Eventually(t, func() bool {
		v, ok := store.Get(key)
		return ok && v == "abc"
	}, time.Second, 5*time.Millisecond)
}

func TestSaver_FlushWritesImmediately(t *testing.T) {
	store := NewMemory()
	saver := NewSaver(store, time.Hour)
	defer saver.Close()

	saver.Save(Key("d1", "python"), "draft")
	saver.Flush()

	v, ok := store.Get(Key("d1", "python"))
	require.True(t, ok)
	assert.Equal(t, "draft", v)
}

func TestSaver_CloseDropsPending(t *testing.T) {
	store := NewMemory()
	saver := NewSaver(store, 10*time.Millisecond)

	saver.Save(Key("d1", "python"), "never")
	saver.Close()

	time.Sleep(30 * time.Millisecond)
	_, ok := store.Get(Key("d1", "python"))
	assert.False(t, ok)

	// Saves after Close are ignored.
	saver.Save(Key("d1", "python"), "late")
	time.Sleep(30 * time.Millisecond)
	_, ok = store.Get(Key("d1", "python"))
	assert.False(t, ok)
}

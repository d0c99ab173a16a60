// Package codestore caches in-progress duel code under namespaced keys,
// the way the web client keeps drafts in browser storage. The store sits
// behind an interface so an in-memory map, an expiring LRU, or anything
// server-backed can be swapped in.
package codestore

import (
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Key layout: duel_<duelID>_<language>_code, duel_<duelID>_opponent_code.

func Key(duelID, language string) string {
	return "duel_" + duelID + "_" + language + "_code"
}

func OpponentKey(duelID string) string {
	return "duel_" + duelID + "_opponent_code"
}

func duelPrefix(duelID string) string {
	return "duel_" + duelID + "_"
}

type Store interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
	// Keys returns every stored key with the given prefix.
	Keys(prefix string) []string
}

// ClearDuel removes every cached key for a duel, draft and opponent code
// alike. Called when the duel completes.
func ClearDuel(s Store, duelID string) {
	for _, k := range s.Keys(duelPrefix(duelID)) {
		s.Delete(k)
	}
}

// Memory is a plain map store, safe for concurrent use.
type Memory struct {
	mu sync.RWMutex
	m  map[string]string
}

func NewMemory() *Memory {
	return &Memory{m: make(map[string]string)}
}

func (s *Memory) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok
}

func (s *Memory) Set(key, value string) {
	s.mu.Lock()
	s.m[key] = value
	s.mu.Unlock()
}

func (s *Memory) Delete(key string) {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
}

func (s *Memory) Keys(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for k := range s.m {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out
}

// LRU bounds the cache and expires stale drafts, so an abandoned duel
// does not pin its code forever.
type LRU struct {
	lru *expirable.LRU[string, string]
}

func NewLRU(size int, ttl time.Duration) *LRU {
	return &LRU{lru: expirable.NewLRU[string, string](size, nil, ttl)}
}

func (s *LRU) Get(key string) (string, bool) {
	return s.lru.Get(key)
}

func (s *LRU) Set(key, value string) {
	s.lru.Add(key, value)
}

func (s *LRU) Delete(key string) {
	s.lru.Remove(key)
}

func (s *LRU) Keys(prefix string) []string {
	var out []string
	for _, k := range s.lru.Keys() {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out
}

package db

import (
	"hash/fnv"
)

const (
	loadFactor = 0.7
)

type Entry[K comparable, V any] struct {
	Key   K
	Value V
	Next  *Entry[K, V]
}

// HashTable is a chained hash table that doubles its bucket array once the load factor passes 0.7.
// It is not safe for concurrent use.
type HashTable[K comparable, V any] struct {
	table []*Entry[K, V]
	count int
	hash  func(K) uint32
}

func NewHashTable[K comparable, V any](initSize int, hash func(K) uint32) *HashTable[K, V] {
	if initSize < 1 {
		initSize = 1
	}
	return &HashTable[K, V]{
		table: make([]*Entry[K, V], initSize),
		hash:  hash,
	}
}

// StringHash is FNV-1a over the key bytes.
func StringHash[K ~string](key K) uint32 {
	hasher := fnv.New32a()
	hasher.Write([]byte(key))
	return hasher.Sum32()
}

func (h *HashTable[K, V]) bucket(key K) int {
	return int(h.hash(key) % uint32(len(h.table)))
}

// Set inserts or replaces key and reports whether the key was new.
func (h *HashTable[K, V]) Set(key K, value V) bool {
	if float64(h.count+1)/float64(len(h.table)) > loadFactor {
		h.resize()
	}

	index := h.bucket(key)
	for curr := h.table[index]; curr != nil; curr = curr.Next {
		if curr.Key == key {
			curr.Value = value
			return false
		}
	}
	h.table[index] = &Entry[K, V]{Key: key, Value: value, Next: h.table[index]}
	h.count++
	return true
}

func (h *HashTable[K, V]) resize() {
	oldTable := h.table
	h.table = make([]*Entry[K, V], len(oldTable)*2)
	for _, entry := range oldTable {
		for entry != nil {
			next := entry.Next
			index := h.bucket(entry.Key)
			entry.Next = h.table[index]
			h.table[index] = entry
			entry = next
		}
	}
}

// Delete removes key and returns the value it held.
func (h *HashTable[K, V]) Delete(key K) (V, bool) {
	index := h.bucket(key)
	var prev *Entry[K, V]
	for curr := h.table[index]; curr != nil; prev, curr = curr, curr.Next {
		if curr.Key != key {
			continue
		}
		if prev == nil {
			h.table[index] = curr.Next
		} else {
			prev.Next = curr.Next
		}
		h.count--
		return curr.Value, true
	}
	var zero V
	return zero, false
}

func (h *HashTable[K, V]) Get(key K) (V, bool) {
	for curr := h.table[h.bucket(key)]; curr != nil; curr = curr.Next {
		if curr.Key == key {
			return curr.Value, true
		}
	}
	var zero V
	return zero, false
}

// Range calls fn for every entry until fn returns false. fn must not modify the table.
func (h *HashTable[K, V]) Range(fn func(K, V) bool) {
	for _, entry := range h.table {
		for ; entry != nil; entry = entry.Next {
			if !fn(entry.Key, entry.Value) {
				return
			}
		}
	}
}

// Len returns the number of elements in the hash table
func (h *HashTable[K, V]) Len() int {
	return h.count
}

// Buckets returns the size of the bucket array.
func (h *HashTable[K, V]) Buckets() int {
	return len(h.table)
}

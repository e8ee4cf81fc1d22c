package db

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestTable(size int) *HashTable[string, int] {
	return NewHashTable[string, int](size, StringHash[string])
}

func TestHashTableSetAndGet(t *testing.T) {
	ht := newTestTable(10)
	assert.True(t, ht.Set("one", 1))
	assert.True(t, ht.Set("two", 2))

	value, exists := ht.Get("one")
	assert.True(t, exists, "Key 'one' should exist")
	assert.Equal(t, 1, value)

	value, exists = ht.Get("two")
	assert.True(t, exists, "Key 'two' should exist")
	assert.Equal(t, 2, value)

	_, exists = ht.Get("three")
	assert.False(t, exists, "Key 'three' should not exist")

	assert.False(t, ht.Set("one", 11), "overwrite is not a new key")
	value, _ = ht.Get("one")
	assert.Equal(t, 11, value)
	assert.Equal(t, 2, ht.Len())
}

func TestHashTableDelete(t *testing.T) {
	ht := newTestTable(10)
	ht.Set("one", 1)
	ht.Set("two", 2)

	old, ok := ht.Delete("one")
	assert.True(t, ok)
	assert.Equal(t, 1, old)
	assert.Equal(t, 1, ht.Len())

	_, exists := ht.Get("one")
	assert.False(t, exists, "Expected key 'one' to be deleted")

	_, ok = ht.Delete("one")
	assert.False(t, ok)
	assert.Equal(t, 1, ht.Len())
}

func TestHashTableResize(t *testing.T) {
	ht := newTestTable(2)

	for i := 0; i < 100; i++ {
		ht.Set(fmt.Sprintf("key%d", i), i)
	}
	assert.Equal(t, 100, ht.Len())
	assert.Greater(t, ht.Buckets(), 100)

	for i := 0; i < 100; i++ {
		value, exists := ht.Get(fmt.Sprintf("key%d", i))
		assert.True(t, exists)
		assert.Equal(t, i, value)
	}
}

func TestHashTableRange(t *testing.T) {
	ht := newTestTable(4)
	for i := 0; i < 10; i++ {
		ht.Set(fmt.Sprintf("k%d", i), i)
	}
	sum := 0
	ht.Range(func(_ string, v int) bool {
		sum += v
		return true
	})
	assert.Equal(t, 45, sum)

	seen := 0
	ht.Range(func(string, int) bool {
		seen++
		return seen < 3
	})
	assert.Equal(t, 3, seen)
}

package db

import (
	"sync/atomic"
	"unsafe"

	"github.com/fzft/go-mock-kv/proto"
)

var (
	entryOverhead = int64(unsafe.Sizeof(Entry[proto.Key, *Object]{})) + int64(unsafe.Sizeof(Object{}))
	nodeOverhead  = int64(unsafe.Sizeof(ListNode[[]byte]{}))
	listOverhead  = int64(unsafe.Sizeof(List[[]byte]{}))
)

// memoryCounter tracks an estimate of the bytes held by a keyspace.
type memoryCounter struct {
	used atomic.Int64
}

func (m *memoryCounter) alloc(n int64) {
	m.used.Add(n)
}

func (m *memoryCounter) free(n int64) {
	m.used.Add(-n)
}

func (m *memoryCounter) load() int64 {
	return m.used.Load()
}

func estimateEntry(key proto.Key, obj *Object) int64 {
	n := entryOverhead + int64(len(key))
	switch obj.Type {
	case ScalarType:
		n += int64(len(obj.Value))
	case QueueType:
		n += listOverhead
		for node := obj.Queue.Head; node != nil; node = node.Next {
			n += estimateQueueItem(node.Value)
		}
	}
	return n
}

func estimateQueueItem(v []byte) int64 {
	return nodeOverhead + int64(len(v))
}

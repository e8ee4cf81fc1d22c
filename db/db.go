package db

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fzft/go-mock-kv/proto"
)

const (
	initialDBSize = 16
)

var (
	ErrNoKey     = errors.New("no such key")
	ErrWrongType = errors.New("operation against a key holding the wrong kind of value")
	ErrEmpty     = errors.New("queue is empty")
)

// Store is the keyspace. One mutex serialises every operation; it is never held across I/O.
type Store struct {
	mu      sync.Mutex
	dict    *HashTable[proto.Key, *Object]
	ttl     *TTLHeap
	mem     memoryCounter
	expired atomic.Int64
	now     func() time.Time
}

func New() *Store {
	return &Store{
		dict: NewHashTable[proto.Key, *Object](initialDBSize, StringHash[proto.Key]),
		ttl:  NewTTLHeap(),
		now:  time.Now,
	}
}

// lookup returns the live object for key, dropping it first if its deadline has already passed.
// Callers hold mu.
func (s *Store) lookup(key proto.Key) (*Object, bool) {
	obj, ok := s.dict.Get(key)
	if !ok {
		return nil, false
	}
	if !obj.ExpireAt.IsZero() && !s.now().Before(obj.ExpireAt) {
		s.remove(key, obj)
		s.expired.Add(1)
		return nil, false
	}
	return obj, true
}

func (s *Store) remove(key proto.Key, obj *Object) {
	s.dict.Delete(key)
	s.mem.free(estimateEntry(key, obj))
	if !obj.ExpireAt.IsZero() {
		s.ttl.Invalidate(key)
	}
}

func (s *Store) replace(key proto.Key, obj *Object) {
	if old, ok := s.dict.Get(key); ok {
		s.remove(key, old)
	}
	s.dict.Set(key, obj)
	s.mem.alloc(estimateEntry(key, obj))
}

// Get returns the encoded value stored under key. The slice must not be modified.
func (s *Store) Get(key proto.Key) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.lookup(key)
	if !ok {
		return nil, ErrNoKey
	}
	if obj.Type != ScalarType {
		return nil, ErrWrongType
	}
	return obj.Value, nil
}

func (s *Store) Put(key proto.Key, value []byte) error {
	return s.PutWithTTL(key, value, 0)
}

// PutWithTTL stores a copy of value. Any previous deadline is dropped; a positive ttl sets a new one.
func (s *Store) PutWithTTL(key proto.Key, value []byte, ttl time.Duration) error {
	obj := newScalar(append([]byte(nil), value...))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.replace(key, obj)
	if ttl > 0 {
		s.setDeadline(key, obj, s.now().Add(ttl))
	}
	return nil
}

func (s *Store) setDeadline(key proto.Key, obj *Object, at time.Time) {
	obj.ExpireAt = at
	s.ttl.Put(key, at)
}

func (s *Store) Del(key proto.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.lookup(key)
	if !ok {
		return ErrNoKey
	}
	s.remove(key, obj)
	return nil
}

// SetTTL gives an existing key a new deadline ttl from now. A non-positive ttl removes the key.
func (s *Store) SetTTL(key proto.Key, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.lookup(key)
	if !ok {
		return ErrNoKey
	}
	if ttl <= 0 {
		s.remove(key, obj)
		s.expired.Add(1)
		return nil
	}
	s.setDeadline(key, obj, s.now().Add(ttl))
	return nil
}

// TTL reports the time left before key expires. ok is false for missing keys and keys without a deadline.
func (s *Store) TTL(key proto.Key) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.lookup(key)
	if !ok || obj.ExpireAt.IsZero() {
		return 0, false
	}
	return obj.ExpireAt.Sub(s.now()), true
}

// Queue creates an empty FIFO under key, replacing whatever was there.
func (s *Store) Queue(key proto.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replace(key, newQueue())
	return nil
}

// Push appends a copy of the encoded item to the queue under key. Collections cannot be queued.
func (s *Store) Push(key proto.Key, item []byte) error {
	if len(item) > 0 && item[0] == proto.TypeList {
		return proto.ErrEmbeddedCollection
	}
	item = append([]byte(nil), item...)

	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.lookup(key)
	if !ok {
		return ErrNoKey
	}
	if obj.Type != QueueType {
		return ErrWrongType
	}
	obj.Queue.PushTail(item)
	s.mem.alloc(estimateQueueItem(item))
	return nil
}

// Pop removes and returns the oldest item of the queue under key.
func (s *Store) Pop(key proto.Key) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.lookup(key)
	if !ok {
		return nil, ErrNoKey
	}
	if obj.Type != QueueType {
		return nil, ErrWrongType
	}
	item, ok := obj.Queue.PopHead()
	if !ok {
		return nil, ErrEmpty
	}
	s.mem.free(estimateQueueItem(item))
	return item, nil
}

// ExpireNext blocks until the next deadline passes and removes that key if the deadline still applies
// to it. It reports the key and whether anything was removed.
func (s *Store) ExpireNext(ctx context.Context) (proto.Key, bool, error) {
	key, at, err := s.ttl.Get(ctx)
	if err != nil {
		return "", false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.dict.Get(key)
	if !ok || !obj.ExpireAt.Equal(at) {
		return key, false, nil
	}
	s.remove(key, obj)
	s.expired.Add(1)
	return key, true, nil
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dict.Len()
}

// UsedMemory is an estimate of the bytes held by keys and values.
func (s *Store) UsedMemory() int64 {
	return s.mem.load()
}

// Expired counts keys removed because their deadline passed.
func (s *Store) Expired() int64 {
	return s.expired.Load()
}

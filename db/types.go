package db

import "time"

type ObjectType uint8

const (
	ScalarType ObjectType = iota
	QueueType
)

func (t ObjectType) String() string {
	switch t {
	case ScalarType:
		return "scalar"
	case QueueType:
		return "queue"
	default:
		return "unknown"
	}
}

// Object is one keyspace entry. Values are kept in their wire encoding.
type Object struct {
	Type  ObjectType
	Value []byte
	Queue *List[[]byte]

	// ExpireAt is zero when the key has no TTL. It matches the live TTL record so that a record popped
	// after the key was rewritten can be told apart.
	ExpireAt time.Time
}

func newScalar(value []byte) *Object {
	return &Object{Type: ScalarType, Value: value}
}

func newQueue() *Object {
	return &Object{Type: QueueType, Queue: NewList[[]byte]()}
}

package db

type ListNode[T any] struct {
	Prev  *ListNode[T]
	Next  *ListNode[T]
	Value T
}

// List is a doubly linked list. The queue commands use it as a FIFO: push at the tail, pop at the head.
type List[T any] struct {
	Head   *ListNode[T]
	Tail   *ListNode[T]
	Length int
}

func NewList[T any]() *List[T] {
	return &List[T]{}
}

// Empty the list
func (l *List[T]) Empty() {
	l.Head, l.Tail = nil, nil
	l.Length = 0
}

func (l *List[T]) PushHead(value T) {
	node := &ListNode[T]{Value: value}
	if l.Head == nil {
		l.Head, l.Tail = node, node
	} else {
		node.Next, l.Head.Prev, l.Head = l.Head, node, node
	}
	l.Length++
}

func (l *List[T]) PushTail(value T) {
	node := &ListNode[T]{Value: value}
	if l.Tail == nil {
		l.Head, l.Tail = node, node
	} else {
		node.Prev, l.Tail.Next, l.Tail = l.Tail, node, node
	}
	l.Length++
}

// PopHead removes and returns the first value.
func (l *List[T]) PopHead() (T, bool) {
	if l.Head == nil {
		var zero T
		return zero, false
	}
	node := l.Head
	l.Remove(node)
	return node.Value, true
}

// PopTail removes and returns the last value.
func (l *List[T]) PopTail() (T, bool) {
	if l.Tail == nil {
		var zero T
		return zero, false
	}
	node := l.Tail
	l.Remove(node)
	return node.Value, true
}

// Remove unlinks node, which must belong to l.
func (l *List[T]) Remove(node *ListNode[T]) {
	if node.Prev != nil {
		node.Prev.Next = node.Next
	} else {
		l.Head = node.Next
	}
	if node.Next != nil {
		node.Next.Prev = node.Prev
	} else {
		l.Tail = node.Prev
	}
	node.Next, node.Prev = nil, nil
	l.Length--
}

// Values copies the list contents from head to tail.
func (l *List[T]) Values() []T {
	out := make([]T, 0, l.Length)
	for n := l.Head; n != nil; n = n.Next {
		out = append(out, n.Value)
	}
	return out
}

func (l *List[T]) Len() int {
	return l.Length
}

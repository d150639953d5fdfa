package task

import "container/list"

// Queue is a FIFO of task ids awaiting a worker slot. An id appears at most once.
// Queue is not safe for concurrent use; the Scheduler guards it with its mutex.
type Queue struct {
	order *list.List
	index map[string]*list.Element
}

// NewQueue creates an empty queue
func NewQueue() *Queue {
	return &Queue{
		order: list.New(),
		index: make(map[string]*list.Element),
	}
}

// Push appends id unless it is already queued. It reports whether id was added.
func (q *Queue) Push(id string) bool {
	if _, ok := q.index[id]; ok {
		return false
	}
	q.index[id] = q.order.PushBack(id)
	return true
}

// Pop removes and returns the oldest id.
func (q *Queue) Pop() (string, bool) {
	front := q.order.Front()
	if front == nil {
		return "", false
	}
	id := q.order.Remove(front).(string)
	delete(q.index, id)
	return id, true
}

// Remove drops id from anywhere in the queue.
func (q *Queue) Remove(id string) bool {
	el, ok := q.index[id]
	if !ok {
		return false
	}
	q.order.Remove(el)
	delete(q.index, id)
	return true
}

// Contains reports whether id is queued.
func (q *Queue) Contains(id string) bool {
	_, ok := q.index[id]
	return ok
}

// Len returns the number of queued ids.
func (q *Queue) Len() int {
	return q.order.Len()
}

// IDs returns the queued ids, oldest first.
func (q *Queue) IDs() []string {
	ids := make([]string, 0, q.order.Len())
	for el := q.order.Front(); el != nil; el = el.Next() {
		ids = append(ids, el.Value.(string))
	}
	return ids
}

package recovery

import "time"

type item struct {
	identity      string
	nextAttemptAt time.Time
	attempts      int
	index         int
}

// attemptQueue is a min-heap on nextAttemptAt for container/heap.
type attemptQueue []*item

func (q attemptQueue) Len() int { return len(q) }

func (q attemptQueue) Less(i, j int) bool {
	return q[i].nextAttemptAt.Before(q[j].nextAttemptAt)
}

func (q attemptQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *attemptQueue) Push(x interface{}) {
	it := x.(*item)
	it.index = len(*q)
	*q = append(*q, it)
}

func (q *attemptQueue) Pop() interface{} {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*q = old[:n-1]
	return it
}

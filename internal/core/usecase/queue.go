package usecase

import "github.com/kirillkom/records-archive/internal/core/domain"

// BatchQueue is the ordered work list of one sync batch: added items first,
// then modified items, each in snapshot order. It is drained by one goroutine.
type BatchQueue struct {
	items []domain.ChangeItem
	next  int
}

func NewBatchQueue(set domain.ChangeSet) *BatchQueue {
	items := make([]domain.ChangeItem, 0, len(set.Added)+len(set.Modified))
	items = append(items, set.Added...)
	items = append(items, set.Modified...)
	return &BatchQueue{items: items}
}

// Next pops the next item.
func (q *BatchQueue) Next() (domain.ChangeItem, bool) {
	if q.next >= len(q.items) {
		return domain.ChangeItem{}, false
	}
	item := q.items[q.next]
	q.next++
	return item, true
}

// Total is the number of items the queue was built with.
func (q *BatchQueue) Total() int {
	return len(q.items)
}

// Done is the number of items already handed out.
func (q *BatchQueue) Done() int {
	return q.next
}

// Remaining is the number of items not yet handed out.
func (q *BatchQueue) Remaining() int {
	return len(q.items) - q.next
}

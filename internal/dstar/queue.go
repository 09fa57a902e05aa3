package dstar

// Key orders the open list: K1 ascending, ties broken by K2 ascending.
type Key struct {
	K1 int
	K2 int
}

// Less reports whether k sorts strictly before o.
func (k Key) Less(o Key) bool {
	if k.K1 != o.K1 {
		return k.K1 < o.K1
	}
	return k.K2 < o.K2
}

type queueItem struct {
	node         int
	key          Key // key at insertion time; may be stale after km moves
	IndexInQueue int
}

// openList is a container/heap of node indices. It holds at most one entry per
// node; position tracks where each node sits so updateVertex can remove it.
type openList struct {
	items    []*queueItem
	position []int // node index → heap index, -1 when absent
}

func newOpenList(size int) *openList {
	pos := make([]int, size)
	for i := range pos {
		pos[i] = -1
	}
	return &openList{position: pos}
}

func (q *openList) Len() int { return len(q.items) }

func (q *openList) Less(i, j int) bool { return q.items[i].key.Less(q.items[j].key) }

func (q *openList) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].IndexInQueue = i
	q.items[j].IndexInQueue = j
	q.position[q.items[i].node] = i
	q.position[q.items[j].node] = j
}

func (q *openList) Push(x any) {
	item := x.(*queueItem)
	item.IndexInQueue = len(q.items)
	q.position[item.node] = item.IndexInQueue
	q.items = append(q.items, item)
}

func (q *openList) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	q.items = old[:n-1]
	q.position[item.node] = -1
	item.IndexInQueue = -1
	return item
}

func (q *openList) contains(node int) bool {
	return q.position[node] >= 0
}

func (q *openList) top() *queueItem {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

func (q *openList) reset() {
	for _, it := range q.items {
		q.position[it.node] = -1
	}
	q.items = q.items[:0]
}

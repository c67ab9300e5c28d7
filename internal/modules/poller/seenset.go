package poller

import "container/list"

// seenSet remembers which item IDs a feed has already reported, with a
// capacity cap so long-lived feeds don't grow without bound. Adding an
// existing ID refreshes its age; at capacity the oldest entry is evicted.
type seenSet struct {
	capacity int
	order    *list.List
	ids      map[string]*list.Element
}

func newSeenSet(capacity int) *seenSet {
	return &seenSet{
		capacity: capacity,
		order:    list.New(),
		ids:      make(map[string]*list.Element),
	}
}

func (s *seenSet) Has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

func (s *seenSet) Add(id string) {
	if el, ok := s.ids[id]; ok {
		s.order.MoveToBack(el)
		return
	}

	s.ids[id] = s.order.PushBack(id)

	if s.order.Len() > s.capacity {
		oldest := s.order.Front()
		s.order.Remove(oldest)
		delete(s.ids, oldest.Value.(string))
	}
}

func (s *seenSet) Len() int {
	return s.order.Len()
}

package highlight

// GroupAllocator hands out group ids. Ids must be positive and never reused.
type GroupAllocator interface {
	NextGroupID() int
}

// Counter is a monotonically increasing GroupAllocator. Next is exported so
// the counter can be persisted with the rest of a session.
type Counter struct {
	Next int `json:"next"`
}

// NextGroupID returns the next unused id.
func (c *Counter) NextGroupID() int {
	if c.Next < 1 {
		c.Next = 1
	}
	id := c.Next
	c.Next++
	return id
}

// Observe moves the counter past id so that restored highlights carrying id
// can never collide with a future allocation.
func (c *Counter) Observe(id int) {
	if id >= c.Next {
		c.Next = id + 1
	}
}

// MergeAdjacentGroups folds highlights at consecutive indices (difference of
// exactly one) into a single group and returns how many tokens changed group.
//
// For each adjacent pair, scanned in index order:
//   - both grouped under different ids: every token with the higher id moves
//     to the lower id
//   - one grouped: the ungrouped token joins that group
//   - neither grouped: both receive a fresh id from alloc
//
// Running it again without intervening changes mutates nothing.
func (s *Store) MergeAdjacentGroups(alloc GroupAllocator) int {
	indices := s.Indices()
	changed := 0

	for i := 1; i < len(indices); i++ {
		if indices[i]-indices[i-1] != 1 {
			continue
		}
		a := s.tokens[indices[i-1]]
		b := s.tokens[indices[i]]

		switch {
		case a.Grouped() && b.Grouped():
			if a.GroupID == b.GroupID {
				continue
			}
			lo, hi := a.GroupID, b.GroupID
			if hi < lo {
				lo, hi = hi, lo
			}
			changed += s.regroup(hi, lo)
		case a.Grouped():
			s.setGroup(b.Index, a.GroupID)
			changed++
		case b.Grouped():
			s.setGroup(a.Index, b.GroupID)
			changed++
		default:
			id := alloc.NextGroupID()
			s.setGroup(a.Index, id)
			s.setGroup(b.Index, id)
			changed += 2
		}
	}
	return changed
}

// regroup moves every token in group from into group to.
func (s *Store) regroup(from, to int) int {
	n := 0
	for idx, tok := range s.tokens {
		if tok.GroupID == from {
			tok.GroupID = to
			s.tokens[idx] = tok
			n++
		}
	}
	return n
}

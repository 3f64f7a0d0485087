package kernel

import "fmt"

// slot returns the arena entry for id, or nil.
func (s *Scheduler) slot(id TaskID) *Task {
	if id == 0 || int(id) > s.count {
		return nil
	}
	return &s.tasks[id-1]
}

// link inserts id into the ready ring just before head, at the tail of the
// rotation. An empty ring gets id as its self-linked head.
func (s *Scheduler) link(id TaskID) {
	t := s.slot(id)
	if s.head == 0 {
		t.prev, t.next = id, id
		s.head = id
		return
	}
	h := s.slot(s.head)
	tail := s.slot(h.prev)
	t.prev, t.next = tail.id, h.id
	tail.next = id
	h.prev = id
}

// unlink removes id from the ready ring and clears its links.
func (s *Scheduler) unlink(id TaskID) {
	t := s.slot(id)
	if t.next == id {
		s.head = 0
	} else {
		s.slot(t.prev).next = t.next
		s.slot(t.next).prev = t.prev
		if s.head == id {
			s.head = t.next
		}
	}
	t.prev, t.next = 0, 0
}

// ring returns the ready ring starting at head.
func (s *Scheduler) ring() []TaskID {
	if s.head == 0 {
		return nil
	}
	var ids []TaskID
	id := s.head
	for {
		ids = append(ids, id)
		id = s.slot(id).next
		if id == s.head || len(ids) > s.count {
			return ids
		}
	}
}

// checkRing verifies the ring is circular and doubly linked, that head is a
// member, and that exactly the members carry links.
func (s *Scheduler) checkRing() error {
	members := 0
	if s.head != 0 {
		id := s.head
		for {
			t := s.slot(id)
			if t == nil {
				return fmt.Errorf("ready ring: dangling link to %d", id)
			}
			if id == s.idle {
				return fmt.Errorf("ready ring: idle task %d is queued", id)
			}
			n, p := s.slot(t.next), s.slot(t.prev)
			if n == nil || p == nil {
				return fmt.Errorf("ready ring: task %d has links prev=%d next=%d", id, t.prev, t.next)
			}
			if n.prev != id {
				return fmt.Errorf("ready ring: task %d next %d points back to %d", id, t.next, n.prev)
			}
			if p.next != id {
				return fmt.Errorf("ready ring: task %d prev %d points on to %d", id, t.prev, p.next)
			}
			members++
			if members > s.count {
				return fmt.Errorf("ready ring: not circular through head %d", s.head)
			}
			id = t.next
			if id == s.head {
				break
			}
		}
	}

	linked := 0
	for i := 0; i < s.count; i++ {
		t := &s.tasks[i]
		if (t.prev == 0) != (t.next == 0) {
			return fmt.Errorf("ready ring: task %d half linked prev=%d next=%d", t.id, t.prev, t.next)
		}
		if t.next != 0 {
			linked++
		}
	}
	if linked != members {
		return fmt.Errorf("ready ring: %d tasks linked, %d reachable from head", linked, members)
	}
	return nil
}

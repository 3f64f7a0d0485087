package kernel

// waitQueue is a fixed ring of blocked tasks in arrival order.
type waitQueue struct {
	head  uint32
	tail  uint32
	slots [MaxTasks]TaskID
}

func (q *waitQueue) push(id TaskID) bool {
	if q.head-q.tail >= MaxTasks {
		return false
	}
	q.slots[q.head%MaxTasks] = id
	q.head++
	return true
}

func (q *waitQueue) pop() (TaskID, bool) {
	if q.tail == q.head {
		return 0, false
	}
	id := q.slots[q.tail%MaxTasks]
	q.tail++
	return id, true
}

func (q *waitQueue) len() int { return int(q.head - q.tail) }

// Semaphore is a counting semaphore whose blocked waiters are woken in
// FIFO order. A Signal with a waiter present hands the permit straight to
// the oldest waiter instead of raising the count.
type Semaphore struct {
	s       *Scheduler
	count   int
	limit   int
	waiters waitQueue
}

// NewSemaphore returns a semaphore holding initial permits.
func (s *Scheduler) NewSemaphore(initial int) *Semaphore {
	return s.NewBoundedSemaphore(initial, 0)
}

// NewBoundedSemaphore returns a semaphore whose count may not exceed limit.
// Signalling a full semaphore is fatal. A zero limit means unbounded.
func (s *Scheduler) NewBoundedSemaphore(initial, limit int) *Semaphore {
	if initial < 0 || (limit > 0 && initial > limit) {
		s.fatalf("semaphore: initial count %d outside [0, %d]", initial, limit)
	}
	return &Semaphore{s: s, count: initial, limit: limit}
}

// Wait takes a permit, blocking the running task until one is handed to it.
func (sem *Semaphore) Wait() {
	s := sem.s
	defer s.unlock(s.lock())

	if sem.count > 0 {
		sem.count--
		return
	}
	cur := s.current
	if cur == 0 || cur == s.idle {
		s.fatalf("semaphore wait: task %d cannot block", cur)
	}
	if !sem.waiters.push(cur) {
		s.fatalf("semaphore wait: waiter queue full")
	}
	s.Dequeue(cur)
}

// TryWait takes a permit if one is available.
func (sem *Semaphore) TryWait() bool {
	s := sem.s
	defer s.unlock(s.lock())

	if sem.count == 0 {
		return false
	}
	sem.count--
	return true
}

// Signal releases a permit. It never switches, so it is safe from
// interrupt context.
func (sem *Semaphore) Signal() {
	s := sem.s
	defer s.unlock(s.lock())

	if id, ok := sem.waiters.pop(); ok {
		s.Queue(id)
		return
	}
	if sem.limit > 0 && sem.count >= sem.limit {
		s.fatalf("semaphore signal: count %d at limit", sem.count)
	}
	sem.count++
}

// Count returns the available permits.
func (sem *Semaphore) Count() int {
	s := sem.s
	defer s.unlock(s.lock())
	return sem.count
}

// Waiters returns the number of blocked tasks.
func (sem *Semaphore) Waiters() int {
	s := sem.s
	defer s.unlock(s.lock())
	return sem.waiters.len()
}

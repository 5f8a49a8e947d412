// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package executor

import (
	"container/heap"
	"sync"
	"time"
)

// entry is one scheduled block keyed by its work wake time.
type entry struct {
	wake  time.Time
	notif *Notification
	index int // heap position
}

type entryHeap []*entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].wake.Before(h[j].wake) }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *entryHeap) Push(x any)         { e := x.(*entry); e.index = len(*h); *h = append(*h, e) }
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// schedule is a wake-time priority queue of pending block work, safe for
// concurrent use. A block index appears at most once; rescheduling an index
// overwrites its notification and wake time.
type schedule struct {
	mu      sync.Mutex
	heap    entryHeap
	byIndex map[uint32]*entry
}

func newSchedule() *schedule {
	return &schedule{byIndex: make(map[uint32]*entry)}
}

// set inserts or overwrites the entry of the notification's block index and
// reports whether an existing entry was replaced.
func (s *schedule) set(n *Notification, wake time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.byIndex[n.BlockIndex]; ok {
		e.notif = n
		e.wake = wake
		heap.Fix(&s.heap, e.index)
		return true
	}
	e := &entry{wake: wake, notif: n}
	heap.Push(&s.heap, e)
	s.byIndex[n.BlockIndex] = e
	return false
}

// peek returns the earliest wake time without removing it.
func (s *schedule) peek() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.heap) == 0 {
		return time.Time{}, false
	}
	return s.heap[0].wake, true
}

// popDue removes and returns every entry due at now, earliest first.
func (s *schedule) popDue(now time.Time) []*Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*Notification
	for len(s.heap) > 0 && !s.heap[0].wake.After(now) {
		e := heap.Pop(&s.heap).(*entry)
		delete(s.byIndex, e.notif.BlockIndex)
		due = append(due, e.notif)
	}
	return due
}

func (s *schedule) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.heap)
}

package ring

import "github.com/fixkme/corekit/ids"

// submission is one outstanding multishot timeout, threaded into exactly one
// wheel slot's intrusive doubly-linked list at a time. Adapted from the
// teacher's clock._Timer; the map/slot key is the caller-minted URingId
// (user_data) instead of a self-generated id, since the ring never mints ids
// itself — the timer service does.
type submission struct {
	userData   ids.URingId
	whenMs     int64 // absolute deadline, ms
	periodMs   int64 // re-arm interval after each fire; multishot semantics
	cancelled  bool
	prev, next *submission
}

func (s *submission) removeFromList() bool {
	if s.prev == nil || s.next == nil {
		return false
	}
	s.prev.next = s.next
	s.next.prev = s.prev
	s.prev = nil
	s.next = nil
	return true
}

// submissionList is a sentinel-rooted doubly-linked list, identical in shape
// to clock._List.
type submissionList struct {
	root *submission
}

func newSubmissionList() *submissionList {
	l := new(submissionList)
	l.root = new(submission)
	l.root.prev = l.root
	l.root.next = l.root
	return l
}

func (l *submissionList) PushBack(s *submission) {
	tail := l.root.prev
	tail.next = s
	s.prev = tail
	s.next = l.root
	l.root.prev = s
}

func (l *submissionList) Remove(s *submission) bool {
	if s == l.root {
		return false
	}
	s.prev.next = s.next
	s.next.prev = s.prev
	s.prev = nil
	s.next = nil
	return true
}

func (l *submissionList) IsEmpty() bool {
	return l.root.next == l.root
}

// PopRange walks the list front-to-back, detaching each node before calling
// fn so fn is free to re-insert it elsewhere (needed for wheel cascading and
// for multishot re-arm).
func (l *submissionList) PopRange(fn func(s *submission) bool) {
	for !l.IsEmpty() {
		s := l.root.next
		l.Remove(s)
		if !fn(s) {
			break
		}
	}
}

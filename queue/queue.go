package queue

import (
	"errors"
	"sync"
)

// ErrNothingToUndo is returned by RemoveLastIfNotOnlyEntry when the queue
// holds at most the song that is currently playing.
var ErrNothingToUndo = errors.New("queue is already empty")

// Queue is the ordered list of songs for one output channel. The front
// entry is the song that is playing (or about to play); everything behind
// it is pending.
//
// A single mutex guards the whole list. It is never held across I/O.
type Queue struct {
	mu    sync.Mutex
	songs []Song
}

// New creates an empty Queue.
func New() *Queue {
	return &Queue{}
}

// Enqueue appends a song to the back of the queue.
func (q *Queue) Enqueue(song Song) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.songs = append(q.songs, song)
}

// Front returns the currently playing song, if any.
func (q *Queue) Front() (Song, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.songs) == 0 {
		return Song{}, false
	}
	return q.songs[0], true
}

// PopFront removes the front song. It is called when a track ends, fails
// mid-stream or is skipped.
func (q *Queue) PopFront() (Song, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.songs) == 0 {
		return Song{}, false
	}
	song := q.songs[0]
	q.songs[0] = Song{}
	q.songs = q.songs[1:]
	return song, true
}

// RemoveLastIfNotOnlyEntry removes the most recently queued song. The front
// entry is never removed, so a queue of length one or less yields
// ErrNothingToUndo.
func (q *Queue) RemoveLastIfNotOnlyEntry() (Song, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.songs) <= 1 {
		return Song{}, ErrNothingToUndo
	}
	last := len(q.songs) - 1
	song := q.songs[last]
	q.songs[last] = Song{}
	q.songs = q.songs[:last]
	return song, nil
}

// SnapshotPending returns a copy of every entry behind the front.
func (q *Queue) SnapshotPending() []Song {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.songs) <= 1 {
		return nil
	}
	return append([]Song(nil), q.songs[1:]...)
}

// Len returns the number of songs including the front.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.songs)
}

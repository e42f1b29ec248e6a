package logger

import (
	"io"
	"sync"
)

// Broadcaster is an io.Writer that copies output to an underlying writer and
// to every subscribed channel. Slow subscribers miss lines; writers never block.
type Broadcaster struct {
	out io.Writer

	mu          sync.Mutex
	subscribers map[chan string]struct{}
}

func NewBroadcaster(out io.Writer) *Broadcaster {
	return &Broadcaster{
		out:         out,
		subscribers: make(map[chan string]struct{}),
	}
}

func (b *Broadcaster) Write(p []byte) (int, error) {
	msg := string(p)

	n, err := b.out.Write(p)

	b.mu.Lock()
	for ch := range b.subscribers {
		select {
		case ch <- msg:
		default:
		}
	}
	b.mu.Unlock()

	return n, err
}

// Subscribe returns a buffered channel receiving every line written from now on.
func (b *Broadcaster) Subscribe() chan string {
	ch := make(chan string, 100)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe stops delivery and closes ch.
func (b *Broadcaster) Unsubscribe(ch chan string) {
	b.mu.Lock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Subscribers reports how many channels are attached.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

package chat

import (
	"context"
	"sync"
)

// chatQueue runs a Handler with at most one in-flight message per chat, in
// arrival order. Different chats are handled concurrently. A chat's worker
// goroutine exits once its queue drains.
type chatQueue struct {
	handler Handler

	mu      sync.Mutex
	pending map[string][]InboundMessage
	wg      sync.WaitGroup
}

func newChatQueue(handler Handler) *chatQueue {
	return &chatQueue{handler: handler, pending: make(map[string][]InboundMessage)}
}

// push enqueues msg behind any earlier messages from the same chat.
func (q *chatQueue) push(ctx context.Context, msg InboundMessage) {
	key := msg.ChatID

	q.mu.Lock()
	queued, running := q.pending[key]
	q.pending[key] = append(queued, msg)
	q.mu.Unlock()

	if running {
		return
	}
	q.wg.Add(1)
	go q.drain(ctx, key)
}

func (q *chatQueue) drain(ctx context.Context, key string) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		queued := q.pending[key]
		if len(queued) == 0 {
			delete(q.pending, key)
			q.mu.Unlock()
			return
		}
		msg := queued[0]
		q.pending[key] = queued[1:]
		q.mu.Unlock()

		q.handler(ctx, msg)
	}
}

// wait blocks until every queued message has been handled.
func (q *chatQueue) wait() {
	q.wg.Wait()
}

package agent

import (
	"context"
	"sync"

	"github.com/tombee/referral-agent/pkg/llm"
)

// MemoryStore keeps conversation history in memory, keyed by context ID.
// History is lost on restart.
type MemoryStore struct {
	mu    sync.Mutex
	convs map[string]*conversation
}

type conversation struct {
	// sem is a one-slot semaphore that serializes turns on the conversation.
	sem      chan struct{}
	messages []llm.Message
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{convs: make(map[string]*conversation)}
}

// lock returns the conversation for contextID, creating it if needed, and
// holds it until unlock is called. It gives up when ctx is done.
func (s *MemoryStore) lock(ctx context.Context, contextID string) (*conversation, error) {
	s.mu.Lock()
	c, ok := s.convs[contextID]
	if !ok {
		c = &conversation{sem: make(chan struct{}, 1)}
		s.convs[contextID] = c
	}
	s.mu.Unlock()

	select {
	case c.sem <- struct{}{}:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *conversation) unlock() {
	<-c.sem
}

// History returns a copy of the stored messages for contextID. It waits for
// any turn in progress on that context to finish.
func (s *MemoryStore) History(ctx context.Context, contextID string) ([]llm.Message, error) {
	s.mu.Lock()
	_, ok := s.convs[contextID]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}

	c, err := s.lock(ctx, contextID)
	if err != nil {
		return nil, err
	}
	defer c.unlock()

	out := make([]llm.Message, len(c.messages))
	copy(out, c.messages)
	return out, nil
}

// Delete forgets a conversation.
func (s *MemoryStore) Delete(contextID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.convs, contextID)
}

// Len returns the number of conversations held.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.convs)
}

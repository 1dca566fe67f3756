package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/referral-agent/pkg/llm"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	c, err := s.lock(ctx, "a")
	require.NoError(t, err)
	c.messages = append(c.messages, llm.Message{Role: llm.MessageRoleUser, Content: "hi"})
	c.unlock()

	history, err := s.History(ctx, "a")
	require.NoError(t, err)
	require.Len(t, history, 1)

	history[0].Content = "changed"
	again, _ := s.History(ctx, "a")
	assert.Equal(t, "hi", again[0].Content, "History must return a copy")

	assert.Equal(t, 1, s.Len())
	s.Delete("a")
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStore_LockHonoursContext(t *testing.T) {
	s := NewMemoryStore()
	c, err := s.lock(context.Background(), "a")
	require.NoError(t, err)
	defer c.unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.lock(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
}

package devserver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryUserStore_EnsureSeedsOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryUserStore()

	_, err := s.Get(ctx, "u1")
	assert.ErrorIs(t, err, ErrUserNotFound)

	u, err := s.Ensure(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, 1, u.Level)

	again, err := s.Ensure(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, u, again)
}

func TestExpUp_LevelUpGrantsTickets(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryUserStore()
	_, err := s.Ensure(ctx, "u1")
	require.NoError(t, err)

	out, err := s.ExpUp(ctx, "u1", 20)
	require.NoError(t, err)
	assert.Equal(t, 20, out.CurExp)
	assert.Equal(t, 1, out.UserLevel)
	assert.Equal(t, 100, out.ExpToNextLevel)
	assert.InDelta(t, 20.0, out.ExpProgress, 0.001)

	// 110 more crosses level 1's bar and carries the overflow into level 2.
	out, err = s.ExpUp(ctx, "u1", 110)
	require.NoError(t, err)
	assert.Equal(t, 2, out.UserLevel)
	assert.Equal(t, 30, out.CurExp)
	assert.Equal(t, 200, out.ExpToNextLevel)

	tickets, err := s.Ticket(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, levelUpTickets, tickets)
}

func TestExpUp_MultiLevelJump(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryUserStore()
	_, err := s.Ensure(ctx, "u1")
	require.NoError(t, err)

	// 100 (level 1) + 200 (level 2) + 50 spare.
	out, err := s.ExpUp(ctx, "u1", 350)
	require.NoError(t, err)
	assert.Equal(t, 3, out.UserLevel)
	assert.Equal(t, 50, out.CurExp)

	tickets, err := s.Ticket(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2*levelUpTickets, tickets)
}

func TestFriends_EveryoneButOwner(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryUserStore()
	for _, id := range []string{"u1", "u2", "u3"} {
		_, err := s.Ensure(ctx, id)
		require.NoError(t, err)
	}

	friends, err := s.Friends(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, friends, 2)
	for _, f := range friends {
		assert.NotEqual(t, "u1", f.ID)
	}
}

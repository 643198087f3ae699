package reward

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tankmates/tankmates/internal/rest"
)

func expServer(t *testing.T, calls *int32, userLevel int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/exp-up":
			atomic.AddInt32(calls, 1)
			var req struct {
				UserID    string `json:"userId"`
				EarnedExp int    `json:"earnedExp"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			json.NewEncoder(w).Encode(rest.ExpResult{
				CurExp:    req.EarnedExp,
				UserLevel: userLevel,
			})
		case "/fish/ticket/me":
			json.NewEncoder(w).Encode(rest.TicketBalance{UserID: "me", FishTicket: 9})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestExpByRank(t *testing.T) {
	assert.Equal(t, 20, ExpByRank(1))
	assert.Equal(t, 10, ExpByRank(2))
	assert.Equal(t, 5, ExpByRank(3))
	assert.Equal(t, 3, ExpByRank(4))
	assert.Equal(t, 3, ExpByRank(6))
}

func TestSettle_RankFromFinishOrder(t *testing.T) {
	var calls int32
	srv := expServer(t, &calls, 5)
	defer srv.Close()

	s := NewSettler(rest.NewClient(srv.URL, zap.NewNop()), zap.NewNop())
	res, err := s.Settle(context.Background(), "sess1", "me", []string{"u2", "me", "u3"}, 5)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 2, res.Rank)
	assert.Equal(t, 10, res.EarnedExp)
	assert.False(t, res.LeveledUp)
}

func TestSettle_AtMostOncePerSession(t *testing.T) {
	var calls int32
	srv := expServer(t, &calls, 5)
	defer srv.Close()

	s := NewSettler(rest.NewClient(srv.URL, zap.NewNop()), zap.NewNop())
	order := []string{"me"}

	res, err := s.Settle(context.Background(), "sess1", "me", order, 5)
	require.NoError(t, err)
	require.NotNil(t, res)

	// Duplicate end notice: no second request, no second result.
	res, err = s.Settle(context.Background(), "sess1", "me", order, 5)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	// A new session settles again.
	res, err = s.Settle(context.Background(), "sess2", "me", order, 5)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestSettle_AbsentFromFinishOrder(t *testing.T) {
	var calls int32
	srv := expServer(t, &calls, 5)
	defer srv.Close()

	s := NewSettler(rest.NewClient(srv.URL, zap.NewNop()), zap.NewNop())
	res, err := s.Settle(context.Background(), "sess1", "me", []string{"u2", "u3"}, 5)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.EqualValues(t, 0, atomic.LoadInt32(&calls))
}

func TestSettle_LevelUpDetected(t *testing.T) {
	var calls int32
	srv := expServer(t, &calls, 6)
	defer srv.Close()

	s := NewSettler(rest.NewClient(srv.URL, zap.NewNop()), zap.NewNop())
	res, err := s.Settle(context.Background(), "sess1", "me", []string{"me"}, 5)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.LeveledUp)

	bal, err := s.ConfirmLevelUp(context.Background(), "me")
	require.NoError(t, err)
	assert.Equal(t, 9, bal.FishTicket)
}

func TestSettle_ErrorDoesNotReturnResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewSettler(rest.NewClient(srv.URL, zap.NewNop()), zap.NewNop())
	res, err := s.Settle(context.Background(), "sess1", "me", []string{"me"}, 5)
	assert.ErrorIs(t, err, rest.ErrStatus)
	assert.Nil(t, res)
}

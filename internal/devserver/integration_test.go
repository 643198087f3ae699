package devserver

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tankmates/tankmates/internal/rest"
	"github.com/tankmates/tankmates/internal/reward"
	"github.com/tankmates/tankmates/internal/room"
	"github.com/tankmates/tankmates/internal/screen"
	"github.com/tankmates/tankmates/internal/transport"
	"github.com/tankmates/tankmates/pkg/protocol"
)

// waitFor polls a condition so tests track the async pipeline without sleeps.
func waitFor(t *testing.T, within time.Duration, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type harness struct {
	srv   *httptest.Server
	wsURL string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	users := NewMemoryUserStore()
	h := NewHub(context.Background(), users, zap.NewNop())
	t.Cleanup(h.Shutdown)
	srv := httptest.NewServer(SetupRoutes(h, users, zap.NewNop()))
	t.Cleanup(srv.Close)
	return &harness{
		srv:   srv,
		wsURL: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
	}
}

func (h *harness) client(t *testing.T, userID, roomCode string) *room.Room {
	t.Helper()
	ctx := context.Background()
	restClient := rest.NewClient(h.srv.URL, zap.NewNop())
	me, err := restClient.User(ctx, userID)
	if err != nil {
		t.Fatalf("identity fetch: %v", err)
	}
	r := room.New(room.Config{
		RoomID:   roomCode,
		Identity: room.Identity{ID: me.ID, Nickname: me.Nickname, Level: me.Level},
		Transport: transport.Config{
			URL:            h.wsURL + "?room=" + roomCode,
			ReconnectDelay: 20 * time.Millisecond,
			MaxReconnects:  3,
		},
		Screen: screen.Config{TickInterval: 10 * time.Millisecond},
	}, restClient, nil, zap.NewNop())
	t.Cleanup(func() { r.Leave() })
	if err := r.Enter(ctx); err != nil {
		t.Fatalf("enter: %v", err)
	}
	return r
}

func TestIntegration_LobbyFlow(t *testing.T) {
	h := newHarness(t)

	alice := h.client(t, "alice", "GAME42")
	waitFor(t, 2*time.Second, func() bool {
		ps := alice.Participants()
		return len(ps) == 1 && ps[0].Host
	}, "alice to become host")

	bob := h.client(t, "bob", "GAME42")
	waitFor(t, 2*time.Second, func() bool { return len(alice.Participants()) == 2 }, "alice to see bob")
	waitFor(t, 2*time.Second, func() bool { return len(bob.Participants()) == 2 }, "bob to see the roster")

	if alice.AllNonHostReady() {
		t.Fatal("bob has not readied yet")
	}
	if err := bob.SetReady(true); err != nil {
		t.Fatalf("ready: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return alice.AllNonHostReady() }, "ready flag to propagate")

	// Only the host selects the game.
	if err := bob.SelectVariant(protocol.VariantDodge); err == nil {
		t.Fatal("non-host game selection should be rejected")
	}
	if err := alice.SelectVariant(protocol.VariantSequence); err != nil {
		t.Fatalf("select: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		return bob.SelectedVariant() == protocol.VariantSequence
	}, "selection to mirror")

	if err := bob.SendChat("hello"); err != nil {
		t.Fatalf("chat: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		for _, m := range alice.Transcript() {
			if m.Sender == "bob" && m.Content == "hello" {
				return true
			}
		}
		return false
	}, "chat to arrive")
}

func TestIntegration_TapRaceWithRewards(t *testing.T) {
	h := newHarness(t)

	alice := h.client(t, "alice", "RACE01")
	waitFor(t, 2*time.Second, func() bool {
		ps := alice.Participants()
		return len(ps) == 1 && ps[0].Host
	}, "alice to become host")
	bob := h.client(t, "bob", "RACE01")
	waitFor(t, 2*time.Second, func() bool { return len(alice.Participants()) == 2 }, "roster to settle")

	if err := alice.StartGame(); err != room.ErrNotReady {
		t.Fatalf("start before ready: want ErrNotReady, got %v", err)
	}
	if err := bob.SetReady(true); err != nil {
		t.Fatalf("ready: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return alice.AllNonHostReady() }, "ready to propagate")

	if err := alice.StartGame(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return alice.ScreenState() == screen.StateActive }, "alice active")
	waitFor(t, 2*time.Second, func() bool { return bob.ScreenState() == screen.StateActive }, "bob active")

	// Input during the countdown was impossible; now race to the target.
	for i := 0; i < 100; i++ {
		if _, err := alice.Tap(); err != nil {
			t.Fatalf("alice tap %d: %v", i, err)
		}
	}
	waitFor(t, 2*time.Second, func() bool {
		e := alice.Engine()
		return e != nil && e.HasArrived()
	}, "alice to arrive")

	for i := 0; i < 100; i++ {
		if _, err := bob.Tap(); err != nil {
			t.Fatalf("bob tap %d: %v", i, err)
		}
	}
	waitFor(t, 2*time.Second, func() bool { return alice.ScreenState() == screen.StateEnded }, "alice ended")
	waitFor(t, 2*time.Second, func() bool { return bob.ScreenState() == screen.StateEnded }, "bob ended")

	var aliceRes, bobRes *reward.Result
	waitFor(t, 2*time.Second, func() bool {
		aliceRes, bobRes = alice.LastResult(), bob.LastResult()
		return aliceRes != nil && bobRes != nil
	}, "settlements")
	if aliceRes.Rank != 1 || aliceRes.EarnedExp != 20 {
		t.Fatalf("alice: want rank 1 / 20 exp, got %+v", aliceRes)
	}
	if bobRes.Rank != 2 || bobRes.EarnedExp != 10 {
		t.Fatalf("bob: want rank 2 / 10 exp, got %+v", bobRes)
	}

	e := alice.Engine()
	if e == nil || e.Winner() != "alice" {
		t.Fatalf("want alice as broker-declared winner")
	}

	// Back to the lobby; the engine is discarded with the standings.
	if err := alice.AcknowledgeResult(context.Background()); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if alice.ScreenState() != screen.StateLobby {
		t.Fatalf("want lobby after ack, got %v", alice.ScreenState())
	}
	if alice.Engine() != nil {
		t.Fatal("engine should be gone after ack")
	}
}

func TestIntegration_KickRemovesGuest(t *testing.T) {
	h := newHarness(t)

	alice := h.client(t, "alice", "KICK01")
	waitFor(t, 2*time.Second, func() bool {
		ps := alice.Participants()
		return len(ps) == 1 && ps[0].Host
	}, "alice to become host")
	bob := h.client(t, "bob", "KICK01")
	waitFor(t, 2*time.Second, func() bool { return len(alice.Participants()) == 2 }, "roster to settle")

	removed := make(chan struct{}, 1)
	bob.OnRemoved(func() { removed <- struct{}{} })

	if err := bob.Kick("alice"); err == nil {
		t.Fatal("guest kick attempt should be rejected locally")
	}
	if err := alice.Kick("bob"); err != nil {
		t.Fatalf("kick: %v", err)
	}

	select {
	case <-removed:
	case <-time.After(2 * time.Second):
		t.Fatal("bob never learned about the eject")
	}
	waitFor(t, 2*time.Second, func() bool { return len(alice.Participants()) == 1 }, "roster to shrink")
}

package devserver

import (
	"math/rand"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/tankmates/tankmates/pkg/protocol"
)

// roomGame is the broker-side state of one minigame: the authoritative
// per-participant counters the clients render from.
type roomGame struct {
	variant     protocol.Variant
	order       []string
	scores      map[string]int
	stunUntil   map[string]time.Time
	sequence    []int
	finishOrder []string
	ended       bool
}

const sequenceLength = 100

func (r *Room) startGame(gameType string) {
	v, ok := protocol.ParseVariant(gameType)
	if !ok {
		v = r.variant
	}
	if len(r.members) == 0 {
		return
	}
	g := &roomGame{
		variant:   v,
		scores:    make(map[string]int),
		stunUntil: make(map[string]time.Time),
	}
	for _, m := range r.members {
		g.order = append(g.order, m.ID)
		g.scores[m.ID] = 0
	}
	if v == protocol.VariantSequence {
		g.sequence = randomSequence(sequenceLength)
	}
	r.game = g
	r.variant = v
	r.log.Info("game started", zap.String("variant", string(v)), zap.Int("players", len(g.order)))
	r.broadcastRoom(protocol.GameStarted{
		RoomID:   r.code,
		Variant:  v,
		Players:  r.gamePlayers(),
		Sequence: g.sequence,
	})
}

func randomSequence(n int) []int {
	seq := make([]int, n)
	for i := range seq {
		seq[i] = rand.Intn(4)
	}
	return seq
}

func (r *Room) gamePlayers() []protocol.Player {
	g := r.game
	now := time.Now()
	players := make([]protocol.Player, 0, len(g.order))
	for _, id := range g.order {
		players = append(players, protocol.Player{
			ID:        id,
			Nickname:  r.nickname(id),
			FishImage: r.fishImage(id),
			Progress:  g.scores[id],
			Stunned:   now.Before(g.stunUntil[id]),
		})
	}
	return players
}

func (r *Room) fishImage(userID string) string {
	for _, m := range r.members {
		if m.ID == userID {
			return m.FishImage
		}
	}
	return ""
}

func (r *Room) gamePress(in protocol.PressIntent) {
	g := r.game
	if g == nil || g.ended || g.variant != protocol.VariantTapRace {
		return
	}
	if _, ok := g.scores[in.UserName]; !ok {
		return
	}
	if g.scores[in.UserName] >= 100 {
		return
	}
	g.scores[in.UserName] += in.PressCount
	r.checkFinish(in.UserName)
	r.afterProgress()
}

func (r *Room) gameAdvance(in protocol.AdvanceIntent) {
	g := r.game
	if g == nil || g.ended || g.variant != protocol.VariantSequence {
		return
	}
	score, ok := g.scores[in.UserName]
	if !ok || score >= 100 {
		return
	}
	if time.Now().Before(g.stunUntil[in.UserName]) {
		return
	}
	if score >= len(g.sequence) || g.sequence[score] != in.Direction {
		// The client only publishes on a local match, but re-validate.
		g.stunUntil[in.UserName] = time.Now().Add(time.Second)
		return
	}
	g.scores[in.UserName]++
	r.checkFinish(in.UserName)
	r.afterProgress()
}

func (r *Room) gameEat(in protocol.EatIntent) {
	g := r.game
	if g == nil || g.ended || g.variant != protocol.VariantDodge {
		return
	}
	if _, ok := g.scores[in.UserName]; !ok {
		return
	}
	if time.Now().Before(g.stunUntil[in.UserName]) {
		return
	}
	switch in.ItemType {
	case protocol.ItemFeed:
		g.scores[in.UserName]++
	case protocol.ItemStone:
		g.stunUntil[in.UserName] = time.Now().Add(time.Second)
	default:
		return
	}
	r.afterProgress()
}

// checkFinish records target crossings in arrival order. The dodge variant
// has no target.
func (r *Room) checkFinish(userID string) {
	g := r.game
	if g.variant == protocol.VariantDodge {
		return
	}
	if g.scores[userID] < 100 {
		return
	}
	for _, id := range g.finishOrder {
		if id == userID {
			return
		}
	}
	g.finishOrder = append(g.finishOrder, userID)
}

func (r *Room) afterProgress() {
	g := r.game
	if g.variant != protocol.VariantDodge && len(g.finishOrder) == len(g.order) {
		r.endGame()
		return
	}
	r.broadcastRoom(protocol.ProgressUpdated{RoomID: r.code, Variant: g.variant, Players: r.gamePlayers()})
}

// endGame closes the game and broadcasts the authoritative result. Both the
// natural end and a client's end request land here; a second call is a no-op.
func (r *Room) endGame() {
	g := r.game
	if g == nil || g.ended {
		return
	}
	g.ended = true

	final := append([]string{}, g.finishOrder...)
	remaining := make([]string, 0, len(g.order))
	for _, id := range g.order {
		if !contains(final, id) {
			remaining = append(remaining, id)
		}
	}
	// Ties keep join order.
	sort.SliceStable(remaining, func(i, j int) bool {
		return g.scores[remaining[i]] > g.scores[remaining[j]]
	})
	final = append(final, remaining...)

	winner := ""
	if len(final) > 0 {
		winner = final[0]
	}
	r.log.Info("game ended", zap.String("winner", winner))
	r.broadcastRoom(protocol.GameEnded{
		RoomID:      r.code,
		Players:     r.gamePlayers(),
		Winner:      winner,
		FinishOrder: final,
	})
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

package devserver

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

func CreateRoom(h *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var code string
		for {
			c, err := GenerateCode()
			if err != nil {
				http.Error(w, "failed to generate code", http.StatusInternalServerError)
				return
			}
			if h.Get(c) == nil {
				code = c
				break
			}
		}
		h.Ensure(code)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(struct {
			Code string `json:"code"`
		}{Code: code})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func GetUser(users UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := users.Ensure(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "user lookup failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

func ExpUp(users UserStore, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID    string `json:"userId"`
			EarnedExp int    `json:"earnedExp"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		out, err := users.ExpUp(r.Context(), req.UserID, req.EarnedExp)
		if errors.Is(err, ErrUserNotFound) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "exp update failed", http.StatusInternalServerError)
			return
		}
		log.Info("exp awarded",
			zap.String("user", req.UserID),
			zap.Int("earnedExp", req.EarnedExp),
			zap.Int("level", out.UserLevel))
		writeJSON(w, http.StatusOK, out)
	}
}

func GetTicket(users UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		tickets, err := users.Ticket(r.Context(), id)
		if errors.Is(err, ErrUserNotFound) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "ticket lookup failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			UserID     string `json:"userId"`
			FishTicket int    `json:"fishTicket"`
		}{id, tickets})
	}
}

func GetRoomMembers(h *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rm := h.Get(chi.URLParam(r, "id"))
		if rm == nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		view := rm.View()
		type memberOut struct {
			ID        string `json:"userId"`
			Nickname  string `json:"nickname"`
			FishImage string `json:"mainFishImage"`
			Host      bool   `json:"isHost"`
			Level     int    `json:"level"`
		}
		out := make([]memberOut, 0, len(view.Members))
		for _, m := range view.Members {
			out = append(out, memberOut{m.ID, m.Nickname, m.FishImage, m.Host, m.Level})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func GetFriends(users UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := users.Friends(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "friends lookup failed", http.StatusInternalServerError)
			return
		}
		type friendOut struct {
			ID       string `json:"friendId"`
			Nickname string `json:"nickname"`
		}
		out := make([]friendOut, 0, len(list))
		for _, f := range list {
			out = append(out, friendOut{f.ID, f.Nickname})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// Invite acknowledges the request; the dev broker delivers no push
// notification, the guest joins by entering the room code.
func Invite(h *Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			HostID  string `json:"hostId"`
			GuestID string `json:"guestId"`
			RoomID  string `json:"roomId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RoomID == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if h.Get(req.RoomID) == nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		log.Info("invite",
			zap.String("host", req.HostID),
			zap.String("guest", req.GuestID),
			zap.String("room", req.RoomID))
		w.WriteHeader(http.StatusOK)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

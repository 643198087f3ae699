package devserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func SetupRoutes(h *Hub, users UserStore, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Post("/rooms", CreateRoom(h))
	r.Get("/healthz", Healthz)
	r.Get("/ws", WSHandler(h, log))

	r.Get("/users/{id}", GetUser(users))
	r.Post("/users/exp-up", ExpUp(users, log))
	r.Get("/fish/ticket/{id}", GetTicket(users))
	r.Get("/chatrooms/{id}", GetRoomMembers(h))
	r.Post("/chatrooms/invite", Invite(h, log))
	r.Get("/friends/{id}", GetFriends(users))
	return r
}

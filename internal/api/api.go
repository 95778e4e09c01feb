package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/susu3304/warikan/internal/config"
	"github.com/susu3304/warikan/internal/room"
)

type API struct {
	router    *mux.Router
	rooms     *room.Manager
	config    *config.Config
	jwtSecret []byte
	log       *zap.Logger
}

func New(cfg *config.Config, rooms *room.Manager, log *zap.Logger) *API {
	api := &API{
		router:    mux.NewRouter(),
		rooms:     rooms,
		config:    cfg,
		jwtSecret: []byte(cfg.JWTSecret),
		log:       log,
	}

	api.setupRoutes()
	return api
}

func (a *API) setupRoutes() {
	protected := a.router.PathPrefix("/api").Subrouter()
	protected.Use(a.authMiddleware)

	protected.HandleFunc("/rooms", a.handleCreateRoom).Methods("POST")
	protected.HandleFunc("/rooms/{room_id}", a.handleSnapshot).Methods("GET")
	protected.HandleFunc("/rooms/{room_id}/members", a.handleJoinRoom).Methods("POST")
	protected.HandleFunc("/rooms/{room_id}/leave", a.handleLeaveRoom).Methods("POST")
	protected.HandleFunc("/rooms/{room_id}/transactions", a.handleCreateTransaction).Methods("POST")
	protected.HandleFunc("/rooms/{room_id}/transactions/group", a.handleCreateGroup).Methods("POST")
	protected.HandleFunc("/rooms/{room_id}/expenses", a.handleCreateExpense).Methods("POST")
	protected.HandleFunc("/rooms/{room_id}/transactions/{transaction_id}", a.handleDeleteTransaction).Methods("DELETE")
	protected.HandleFunc("/rooms/{room_id}/groups/{group_id}", a.handleDeleteGroup).Methods("DELETE")
	protected.HandleFunc("/rooms/{room_id}/simplify", a.handleSimplify).Methods("POST")
	protected.HandleFunc("/rooms/{room_id}/stream", a.handleStream).Methods("GET")
}

// Handler returns the routed handler, for tests.
func (a *API) Handler() http.Handler {
	return a.router
}

func (a *API) Start() error {
	corsOptions := cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}

	handler := cors.New(corsOptions).Handler(a.router)

	a.log.Info("API server listening", zap.String("bind", a.config.Bind))
	return http.ListenAndServe(a.config.Bind, handler)
}

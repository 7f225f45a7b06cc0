// Copyright 2025 Smart Transaction
//
// HTTP server for the blockclock backend: attestation ingress, user
// bookkeeping endpoints and the metrics route.

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/smart-transaction/blockclock-backend/pkg/chronicle"
	"github.com/smart-transaction/blockclock-backend/pkg/metrics"
)

// Store is the database surface the handlers need.
type Store interface {
	IsWhitelisted(ctx context.Context, addr common.Address) (bool, error)
	StoreUserData(ctx context.Context, addr common.Address, avatar, referralCode string) error
	UpdateAvatar(ctx context.Context, addr common.Address, avatar string) error
	UpdateReferralCode(ctx context.Context, addr common.Address, referralCode string) error
	UpdateReferredFrom(ctx context.Context, addr common.Address, referredFrom string) error
	IsAvatarAvailable(ctx context.Context, addr common.Address, avatar string) (bool, error)
	IsReferralCodeAvailable(ctx context.Context, addr common.Address, referralCode string) (bool, error)
	TimeKeeperCount(ctx context.Context) (uint64, error)
	RepairLegacyAddress(ctx context.Context, addr common.Address) (int64, error)
	ReadReferral(ctx context.Context, refKey string) (string, error)
	WriteReferral(ctx context.Context, refKey, refValue string) error
}

// Server owns the router and the HTTP listener.
type Server struct {
	handlers *Handlers
	srv      *http.Server
	logger   *log.Logger
}

// New builds the server on the given port.
func New(port int, pool *chronicle.Pool, store Store, timeWindow time.Duration, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.Writer(), "[Server] ", log.LstdFlags)
	}
	handlers := NewHandlers(pool, store, timeWindow, logger)

	router := mux.NewRouter()
	router.Use(requestIDMiddleware)

	router.HandleFunc("/", handlers.HandleRoot).Methods(http.MethodGet)
	router.HandleFunc("/add_time_sig", handlers.HandleAddTimeSig).Methods(http.MethodPost)
	router.HandleFunc("/list_time_sigs", handlers.HandleListTimeSigs).Methods(http.MethodGet)
	router.HandleFunc("/get_time_margin", handlers.HandleGetTimeMargin).Methods(http.MethodGet)
	router.HandleFunc("/onboard", handlers.HandleOnboard).Methods(http.MethodPost)
	router.HandleFunc("/claim_avatar", handlers.HandleClaimAvatar).Methods(http.MethodPost)
	router.HandleFunc("/update_referral_code", handlers.HandleUpdateReferralCode).Methods(http.MethodPost)
	router.HandleFunc("/update_referred_from", handlers.HandleUpdateReferredFrom).Methods(http.MethodPost)
	router.HandleFunc("/get_time_keepers", handlers.HandleGetTimeKeepers).Methods(http.MethodGet)
	router.HandleFunc("/read_referral", handlers.HandleReadReferral).Methods(http.MethodGet)
	router.HandleFunc("/write_referral", handlers.HandleWriteReferral).Methods(http.MethodPost)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	return &Server{
		handlers: handlers,
		srv: &http.Server{
			Addr:         fmt.Sprintf("0.0.0.0:%d", port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.logger.Printf("Starting server at %s", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

func writeJSONError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, value interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(value); err != nil {
		// Headers are gone at this point; nothing to do but log.
		log.Printf("Error encoding response: %v", err)
	}
}

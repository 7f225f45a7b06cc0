// Copyright 2025 Smart Transaction
//
// HTTP handlers: attestation ingress plus the onboarding, avatar and
// referral bookkeeping endpoints.

package server

import (
	"encoding/hex"
	"encoding/json"
	"log"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smart-transaction/blockclock-backend/pkg/chronicle"
	"github.com/smart-transaction/blockclock-backend/pkg/metrics"
)

// Handlers carries the shared state of all routes.
type Handlers struct {
	pool       *chronicle.Pool
	store      Store
	timeWindow time.Duration
	logger     *log.Logger
}

// NewHandlers wires the handler set.
func NewHandlers(pool *chronicle.Pool, store Store, timeWindow time.Duration, logger *log.Logger) *Handlers {
	if logger == nil {
		logger = log.New(log.Writer(), "[Server] ", log.LstdFlags)
	}
	return &Handlers{
		pool:       pool,
		store:      store,
		timeWindow: timeWindow,
		logger:     logger,
	}
}

// TimeSigInput is the attestation ingress payload; all fields arrive as
// strings and are parsed strictly.
type TimeSigInput struct {
	Epoch      string `json:"epoch"`
	TimeKeeper string `json:"time_keeper"`
	Signature  string `json:"signature"`
}

// UserData is the payload of the onboarding and avatar endpoints.
type UserData struct {
	TimeKeeper   string `json:"time_keeper"`
	Avatar       string `json:"avatar"`
	ReferralCode string `json:"referral_code,omitempty"`
	ReferredFrom string `json:"referred_from,omitempty"`
}

// ReferralData is the front-end referral key-value payload.
type ReferralData struct {
	RefKey   string `json:"refkey"`
	RefValue string `json:"refvalue"`
}

// HandleRoot serves the service banner.
func (h *Handlers) HandleRoot(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("Blockclock Backend"))
}

// HandleAddTimeSig validates one attestation and appends it to the pool.
// Parse failures are 400; an unknown keeper or a bad signature is 401.
func (h *Handlers) HandleAddTimeSig(w http.ResponseWriter, r *http.Request) {
	var input TimeSigInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		metrics.AttestationsTotal.WithLabelValues("malformed").Inc()
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	epoch, ok := new(big.Int).SetString(input.Epoch, 10)
	if !ok || epoch.Sign() < 0 || epoch.BitLen() > 256 {
		h.logger.Printf("Error extracting epoch: %q", input.Epoch)
		metrics.AttestationsTotal.WithLabelValues("malformed").Inc()
		writeJSONError(w, "epoch must be a base-10 uint256", http.StatusBadRequest)
		return
	}
	if !common.IsHexAddress(input.TimeKeeper) {
		h.logger.Printf("Error extracting time keeper: %q", input.TimeKeeper)
		metrics.AttestationsTotal.WithLabelValues("malformed").Inc()
		writeJSONError(w, "time_keeper must be a hex address", http.StatusBadRequest)
		return
	}
	timeKeeper := common.HexToAddress(input.TimeKeeper)
	signature, err := hex.DecodeString(strings.TrimPrefix(input.Signature, "0x"))
	if err != nil {
		h.logger.Printf("Error extracting signature: %v", err)
		metrics.AttestationsTotal.WithLabelValues("malformed").Inc()
		writeJSONError(w, "signature must be hex bytes", http.StatusBadRequest)
		return
	}

	whitelisted, err := h.store.IsWhitelisted(r.Context(), timeKeeper)
	if err != nil {
		h.logger.Printf("Error checking the whitelist: %v", err)
		metrics.AttestationsTotal.WithLabelValues("backend_error").Inc()
		writeJSONError(w, "whitelist check failed", http.StatusInternalServerError)
		return
	}
	if !whitelisted {
		metrics.AttestationsTotal.WithLabelValues("unauthorized").Inc()
		writeJSONError(w, "time keeper is not whitelisted", http.StatusUnauthorized)
		return
	}

	sig := chronicle.New(epoch, timeKeeper, signature)
	if !sig.Verify() {
		metrics.AttestationsTotal.WithLabelValues("unauthorized").Inc()
		writeJSONError(w, "signature verification failed", http.StatusUnauthorized)
		return
	}

	h.pool.Append(sig)
	metrics.AttestationsTotal.WithLabelValues("admitted").Inc()
	metrics.PoolSize.Set(float64(h.pool.Len()))
	w.WriteHeader(http.StatusOK)
}

// HandleListTimeSigs dumps the pending pool.
func (h *Handlers) HandleListTimeSigs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.pool.Snapshot())
}

// HandleGetTimeMargin reports the sliding window size in nanoseconds.
func (h *Handlers) HandleGetTimeMargin(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"time_margin": big.NewInt(int64(h.timeWindow)).String(),
	})
}

// HandleOnboard whitelists a new time keeper. Legacy truncated rows for
// the account are repaired to the canonical form first.
func (h *Handlers) HandleOnboard(w http.ResponseWriter, r *http.Request) {
	input, addr, ok := h.decodeUserData(w, r)
	if !ok {
		return
	}
	if repaired, err := h.store.RepairLegacyAddress(r.Context(), addr); err != nil {
		h.logger.Printf("Error repairing legacy address: %v", err)
	} else if repaired > 0 {
		h.logger.Printf("Repaired %d legacy row(s) for %s", repaired, addr.Hex())
	}
	if err := h.store.StoreUserData(r.Context(), addr, input.Avatar, input.ReferralCode); err != nil {
		h.logger.Printf("Error storing whitelisted address: %v", err)
		writeJSONError(w, "failed to store user", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HandleClaimAvatar assigns an avatar when no other account holds it.
func (h *Handlers) HandleClaimAvatar(w http.ResponseWriter, r *http.Request) {
	input, addr, ok := h.decodeUserData(w, r)
	if !ok {
		return
	}
	available, err := h.store.IsAvatarAvailable(r.Context(), addr, input.Avatar)
	if err != nil {
		h.logger.Printf("Error checking the avatar: %v", err)
		writeJSONError(w, "failed to check avatar", http.StatusInternalServerError)
		return
	}
	if !available {
		h.logger.Printf("The avatar %s is already in use", input.Avatar)
		writeJSONError(w, "avatar is already in use", http.StatusConflict)
		return
	}
	if err := h.store.UpdateAvatar(r.Context(), addr, input.Avatar); err != nil {
		h.logger.Printf("Error updating the avatar: %v", err)
		writeJSONError(w, "failed to update avatar", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HandleUpdateReferralCode assigns the account's own referral code when
// no other account holds it.
func (h *Handlers) HandleUpdateReferralCode(w http.ResponseWriter, r *http.Request) {
	input, addr, ok := h.decodeUserData(w, r)
	if !ok {
		return
	}
	available, err := h.store.IsReferralCodeAvailable(r.Context(), addr, input.ReferralCode)
	if err != nil {
		h.logger.Printf("Error checking the referral code: %v", err)
		writeJSONError(w, "failed to check referral code", http.StatusInternalServerError)
		return
	}
	if !available {
		h.logger.Printf("The referral code %s is already in use", input.ReferralCode)
		writeJSONError(w, "referral code is already in use", http.StatusConflict)
		return
	}
	if err := h.store.UpdateReferralCode(r.Context(), addr, input.ReferralCode); err != nil {
		h.logger.Printf("Error updating referral code: %v", err)
		writeJSONError(w, "failed to update referral code", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HandleUpdateReferredFrom records which code referred the account.
func (h *Handlers) HandleUpdateReferredFrom(w http.ResponseWriter, r *http.Request) {
	input, addr, ok := h.decodeUserData(w, r)
	if !ok {
		return
	}
	if err := h.store.UpdateReferredFrom(r.Context(), addr, input.ReferredFrom); err != nil {
		h.logger.Printf("Error updating referred from: %v", err)
		writeJSONError(w, "failed to update referred from", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HandleGetTimeKeepers reports the whitelist size.
func (h *Handlers) HandleGetTimeKeepers(w http.ResponseWriter, r *http.Request) {
	count, err := h.store.TimeKeeperCount(r.Context())
	if err != nil {
		h.logger.Printf("Error getting time keepers: %v", err)
		writeJSONError(w, "failed to count time keepers", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]uint64{"count": count})
}

// HandleReadReferral returns the stored referral code for a front-end key.
func (h *Handlers) HandleReadReferral(w http.ResponseWriter, r *http.Request) {
	refKey := r.URL.Query().Get("ref_key")
	if refKey == "" {
		writeJSONError(w, "ref_key is required", http.StatusBadRequest)
		return
	}
	value, err := h.store.ReadReferral(r.Context(), refKey)
	if err != nil {
		h.logger.Printf("Error reading the referral: %v", err)
		writeJSONError(w, "failed to read referral", http.StatusInternalServerError)
		return
	}
	writeJSON(w, ReferralData{RefKey: refKey, RefValue: value})
}

// HandleWriteReferral stores a front-end referral pair; first write wins.
func (h *Handlers) HandleWriteReferral(w http.ResponseWriter, r *http.Request) {
	var input ReferralData
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.RefKey == "" {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.store.WriteReferral(r.Context(), input.RefKey, input.RefValue); err != nil {
		h.logger.Printf("Error storing the referral: %v", err)
		writeJSONError(w, "failed to store referral", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) decodeUserData(w http.ResponseWriter, r *http.Request) (UserData, common.Address, bool) {
	var input UserData
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return input, common.Address{}, false
	}
	if !common.IsHexAddress(input.TimeKeeper) {
		writeJSONError(w, "time_keeper must be a hex address", http.StatusBadRequest)
		return input, common.Address{}, false
	}
	return input, common.HexToAddress(input.TimeKeeper), true
}

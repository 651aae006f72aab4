package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/punchamoorthee/promoledger/internal/auth"
	"github.com/punchamoorthee/promoledger/internal/domain"
	"github.com/punchamoorthee/promoledger/internal/service"
	log "github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	ledger   *service.LedgerService
	accounts *service.AccountService
	payments *service.PaymentService
	tokens   *auth.Issuer
}

func NewHandler(ledger *service.LedgerService, accounts *service.AccountService, payments *service.PaymentService, tokens *auth.Issuer) *Handler {
	return &Handler{ledger: ledger, accounts: accounts, payments: payments, tokens: tokens}
}

// NewRouter mounts /health, /metrics and the /api/v1 surface.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware, recoverMiddleware, instrumentMiddleware)
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.Health).Methods("GET")

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.Use(h.authenticate)

	v1.HandleFunc("/auth/login", h.Login).Methods("POST")
	v1.HandleFunc("/me/route", h.MyRoute).Methods("GET")
	v1.HandleFunc("/me/password", h.ChangeMyPassword).Methods("POST")

	v1.HandleFunc("/signups", h.RegisterSignup).Methods("POST")
	v1.HandleFunc("/referral-links/{token}", h.ResolveReferralLink).Methods("GET")
	v1.HandleFunc("/influencer/dashboard", h.InfluencerDashboard).Methods("GET")

	v1.HandleFunc("/admin/influencers", h.ListInfluencers).Methods("GET")
	v1.HandleFunc("/admin/influencers/export", h.ExportInfluencers).Methods("GET")
	v1.HandleFunc("/admin/influencers", h.CreateInfluencer).Methods("POST")
	v1.HandleFunc("/admin/influencers/{id}", h.DeleteInfluencer).Methods("DELETE")
	v1.HandleFunc("/admin/influencers/{id}/signups", h.AddInfluencerSignup).Methods("POST")
	v1.HandleFunc("/admin/signups/{id}/promo-code", h.MoveSignup).Methods("PUT")
	v1.HandleFunc("/admin/signups/{id}/status", h.SetSignupStatus).Methods("PUT")
	v1.HandleFunc("/admin/signups/{id}", h.DeleteSignup).Methods("DELETE")
	v1.HandleFunc("/admin/signups/{id}/history", h.SignupHistory).Methods("GET")
	v1.HandleFunc("/admin/admins", h.CreateAdmin).Methods("POST")
	v1.HandleFunc("/admin/users", h.UpsertUser).Methods("POST")
	v1.HandleFunc("/admin/users/{id}/password", h.ResetUserPassword).Methods("POST")

	v1.HandleFunc("/payments/orders", h.CreateOrder).Methods("POST")
	v1.HandleFunc("/payments/capture", h.CaptureOrder).Methods("POST")
	return r
}

// statusFor maps the domain error classes onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondServiceError writes err with its mapped status. Unclassified errors
// are logged and hidden behind a generic message.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		log.WithFields(log.Fields{
			"error":      err,
			"request_id": requestIDFromContext(r.Context()),
			"path":       r.URL.Path,
		}).Error("Request failed")
		respondError(w, code, "Internal Server Error")
		return
	}
	respondError(w, code, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "Malformed JSON body")
		return false
	}
	return true
}

func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, map[string]string{"error": message})
}

func respondJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/punchamoorthee/promoledger/internal/domain"
	"github.com/punchamoorthee/promoledger/internal/ledger"
	"github.com/punchamoorthee/promoledger/internal/models"
)

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- accounts ---

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := h.accounts.Login(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) MyRoute(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if !actor.Authenticated() {
		respondError(w, http.StatusUnauthorized, "sign in required")
		return
	}
	respondJSON(w, http.StatusOK, models.RouteResponse{Route: h.accounts.RouteFor(r.Context(), actor.UserID)})
}

func (h *Handler) ChangeMyPassword(w http.ResponseWriter, r *http.Request) {
	var req models.PasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.accounts.ChangePassword(r.Context(), actorFrom(r), req.Password); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAdminRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.accounts.CreateAdmin(r.Context(), actorFrom(r), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (h *Handler) UpsertUser(w http.ResponseWriter, r *http.Request) {
	var req models.UpsertUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := h.accounts.AdminUpsertUser(r.Context(), actorFrom(r), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	code := http.StatusOK
	if resp.Created {
		code = http.StatusCreated
	}
	respondJSON(w, code, resp)
}

func (h *Handler) ResetUserPassword(w http.ResponseWriter, r *http.Request) {
	var req models.PasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.accounts.ResetPassword(r.Context(), actorFrom(r), mux.Vars(r)["id"], req.Password); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- signups ---

func (h *Handler) RegisterSignup(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterSignupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Ref == "" {
		req.Ref = r.URL.Query().Get("ref")
	}
	s, err := h.ledger.RegisterSignup(r.Context(), actorFrom(r), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	signupsRegistered.WithLabelValues("public", strconv.FormatBool(s.PromoCode != nil)).Inc()
	w.Header().Set("Location", fmt.Sprintf("/api/v1/signups/%s", s.ID))
	respondJSON(w, http.StatusCreated, s)
}

func (h *Handler) ResolveReferralLink(w http.ResponseWriter, r *http.Request) {
	code, err := h.ledger.ResolveReferralToken(r.Context(), mux.Vars(r)["token"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, models.ReferralLinkResponse{PromoCode: code})
}

func (h *Handler) InfluencerDashboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	window, err := ledger.ParseWindow(q.Get("range"), q.Get("start"), q.Get("end"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	d, err := h.ledger.Dashboard(r.Context(), actorFrom(r), window)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

// --- admin ---

func (h *Handler) ListInfluencers(w http.ResponseWriter, r *http.Request) {
	lb, err := h.ledger.Leaderboard(r.Context(), actorFrom(r), r.URL.Query().Get("q"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, lb)
}

func (h *Handler) ExportInfluencers(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.ledger.ExportCSV(r.Context(), actorFrom(r), r.URL.Query().Get("q"), &buf); err != nil {
		respondServiceError(w, r, err)
		return
	}
	filename := fmt.Sprintf("influencers_export_%s.csv", time.Now().UTC().Format(time.DateOnly))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (h *Handler) CreateInfluencer(w http.ResponseWriter, r *http.Request) {
	var req models.CreateReferrerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ref, err := h.ledger.CreateReferrer(r.Context(), actorFrom(r), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/admin/influencers/%s", ref.ID))
	respondJSON(w, http.StatusCreated, ref)
}

func (h *Handler) DeleteInfluencer(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.DeleteReferrer(r.Context(), actorFrom(r), mux.Vars(r)["id"]); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AddInfluencerSignup(w http.ResponseWriter, r *http.Request) {
	var req models.AddSignupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s, err := h.ledger.AddSignup(r.Context(), actorFrom(r), mux.Vars(r)["id"], req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	signupsRegistered.WithLabelValues("admin", "true").Inc()
	respondJSON(w, http.StatusCreated, s)
}

func (h *Handler) MoveSignup(w http.ResponseWriter, r *http.Request) {
	var req models.MoveSignupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s, moved, err := h.ledger.MoveSignup(r.Context(), actorFrom(r), mux.Vars(r)["id"], req.PromoCode)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if moved {
		attributionMoves.Inc()
	}
	respondJSON(w, http.StatusOK, s)
}

func (h *Handler) SetSignupStatus(w http.ResponseWriter, r *http.Request) {
	var req models.SignupStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s, err := h.ledger.SetSignupStatus(r.Context(), actorFrom(r), mux.Vars(r)["id"], req.Status)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, s)
}

func (h *Handler) DeleteSignup(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.DeleteSignup(r.Context(), actorFrom(r), mux.Vars(r)["id"]); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SignupHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.ledger.AttributionHistory(r.Context(), actorFrom(r), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if history == nil {
		history = []domain.AttributionChange{}
	}
	respondJSON(w, http.StatusOK, history)
}

// --- payments ---

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req models.CreateOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := h.payments.CreateOrder(r.Context(), actorFrom(r), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, resp)
}

func (h *Handler) CaptureOrder(w http.ResponseWriter, r *http.Request) {
	var req models.CaptureOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := h.payments.CaptureOrder(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

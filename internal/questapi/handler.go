// Package questapi serves the quest protocol over HTTP.
//
// Reads are public. State-changing calls that act on behalf of an identity are
// authenticated with authsig request signatures; the recovered signer is the
// caller passed to the engine. Expire and auto-approve are permissionless.
package questapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/juno-intents/quest-escrow/internal/authsig"
	"github.com/juno-intents/quest-escrow/internal/content"
	"github.com/juno-intents/quest-escrow/internal/deadline"
	"github.com/juno-intents/quest-escrow/internal/fees"
	"github.com/juno-intents/quest-escrow/internal/policy"
	"github.com/juno-intents/quest-escrow/internal/quest"
)

const (
	version = "v1"

	defaultListLimit        = 50
	maxListLimit            = 200
	defaultMaxBodyBytes     = 1 << 20
	defaultAdmissionHistory = 256
)

var ErrInvalidConfig = errors.New("questapi: invalid config")

// Engine is the write side of the protocol. *quest.Engine implements it.
type Engine interface {
	Now() int64
	MinReward() uint64

	CreateQuest(ctx context.Context, creator common.Address, p quest.CreateParams) (quest.Quest, error)
	CancelQuest(ctx context.Context, questID uint64, caller common.Address) (quest.Quest, error)
	ClaimQuest(ctx context.Context, questID uint64, claimer common.Address, stake uint64) (quest.Claim, error)
	SubmitProof(ctx context.Context, ref quest.ClaimRef, caller common.Address, proofHash [32]byte) (quest.Claim, error)
	AbandonClaim(ctx context.Context, ref quest.ClaimRef, caller common.Address) (quest.Claim, error)
	ApproveCompletion(ctx context.Context, ref quest.ClaimRef, caller common.Address) (quest.QuestCompleted, error)
	RejectCompletion(ctx context.Context, ref quest.ClaimRef, caller common.Address, safetyFlagged bool) (quest.QuestFailed, error)
	ExpireClaim(ctx context.Context, ref quest.ClaimRef) (quest.Claim, error)
	AutoApprove(ctx context.Context, ref quest.ClaimRef) (quest.QuestCompleted, error)
}

// Recorder is satisfied by *metrics.Metrics.
type Recorder interface {
	HTTPRequest(route string, status int)
}

type nopRecorder struct{}

func (nopRecorder) HTTPRequest(string, int) {}

type Config struct {
	// MaxSkew bounds the signature timestamp. Defaults to authsig.DefaultMaxSkew.
	MaxSkew      time.Duration
	MaxBodyBytes int64
	// ReplayCacheSize bounds how many accepted signatures are remembered
	// inside the skew window.
	ReplayCacheSize int

	Admission policy.AdmissionConfig
	// AdmissionHistory is how many recent claims of the caller the admission
	// policy sees.
	AdmissionHistory int

	RateLimitPerIPPerSecond float64
	RateLimitBurst          int
	RateLimitMaxTrackedIPs  int

	Now func() time.Time
}

// NewHandler wires the routes. docs may be nil, in which case descriptions and
// proofs must be supplied as hashes.
func NewHandler(cfg Config, eng Engine, reader quest.Reader, docs *content.Store, rec Recorder, log *slog.Logger) (http.Handler, error) {
	if eng == nil || reader == nil {
		return nil, fmt.Errorf("%w: nil engine or reader", ErrInvalidConfig)
	}
	if cfg.MaxSkew <= 0 {
		cfg.MaxSkew = authsig.DefaultMaxSkew
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.Admission == (policy.AdmissionConfig{}) {
		cfg.Admission = policy.DefaultAdmissionConfig()
	}
	if cfg.AdmissionHistory <= 0 {
		cfg.AdmissionHistory = defaultAdmissionHistory
	}
	if cfg.RateLimitPerIPPerSecond <= 0 {
		cfg.RateLimitPerIPPerSecond = 20
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 40
	}
	if cfg.RateLimitMaxTrackedIPs <= 0 {
		cfg.RateLimitMaxTrackedIPs = 10_000
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	h := &handler{
		cfg:     cfg,
		eng:     eng,
		reader:  reader,
		docs:    docs,
		rec:     rec,
		log:     log,
		limiter: newIPRateLimiter(cfg.RateLimitPerIPPerSecond, float64(cfg.RateLimitBurst), cfg.RateLimitMaxTrackedIPs),
		guard:   authsig.NewReplayGuard(cfg.MaxSkew, cfg.ReplayCacheSize),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealthz)

	h.route(mux, "GET /v1/config", h.handleConfig)
	h.route(mux, "GET /v1/quests", h.handleListQuests)
	h.route(mux, "GET /v1/quests/{questId}", h.handleGetQuest)
	h.route(mux, "GET /v1/quests/{questId}/claims/{claimer}", h.handleGetClaim)
	h.route(mux, "GET /v1/claimers/{claimer}/claims", h.handleClaimerClaims)
	h.route(mux, "GET /v1/balances/{account}/{mint}", h.handleBalance)
	h.route(mux, "GET /v1/descriptions/{hash}", h.handleContent(content.KindDescription))
	h.route(mux, "GET /v1/proofs/{hash}", h.handleContent(content.KindProof))

	h.route(mux, "POST /v1/quests", h.signed(h.handleCreateQuest))
	h.route(mux, "POST /v1/quests/{questId}/cancel", h.signed(h.handleCancelQuest))
	h.route(mux, "POST /v1/quests/{questId}/claims", h.signed(h.handleClaimQuest))
	h.route(mux, "POST /v1/quests/{questId}/claims/{claimer}/proof", h.signed(h.handleSubmitProof))
	h.route(mux, "POST /v1/quests/{questId}/claims/{claimer}/abandon", h.signed(h.handleAbandon))
	h.route(mux, "POST /v1/quests/{questId}/claims/{claimer}/approve", h.signed(h.handleApprove))
	h.route(mux, "POST /v1/quests/{questId}/claims/{claimer}/reject", h.signed(h.handleReject))

	h.route(mux, "POST /v1/quests/{questId}/claims/{claimer}/expire", h.handleExpire)
	h.route(mux, "POST /v1/quests/{questId}/claims/{claimer}/auto-approve", h.handleAutoApprove)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Health checks must never be throttled.
		if r.URL.Path == "/healthz" {
			mux.ServeHTTP(w, r)
			return
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(h.cfg.RateLimitBurst))
		if !h.limiter.Allow(clientIP(r), h.cfg.Now().UTC()) {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"version": version,
				"error":   "rate_limited",
			})
			h.rec.HTTPRequest("rate_limited", http.StatusTooManyRequests)
			return
		}
		mux.ServeHTTP(w, r)
	}), nil
}

type handler struct {
	cfg     Config
	eng     Engine
	reader  quest.Reader
	docs    *content.Store
	rec     Recorder
	log     *slog.Logger
	limiter *ipRateLimiter
	guard   *authsig.ReplayGuard
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (h *handler) route(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		fn(sw, r)
		h.rec.HTTPRequest(pattern, sw.status)
	})
}

type signedHandlerFunc func(w http.ResponseWriter, r *http.Request, signer common.Address, body []byte)

// signed reads the body, verifies the request signature over it, and passes
// the recovered signer on. A signed request is accepted once.
func (h *handler) signed(fn signedHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
		if err != nil {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{
				"version": version,
				"error":   "body_too_large",
			})
			return
		}
		signer, err := h.guard.VerifyRequest(r, body, h.cfg.Now())
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		fn(w, r, signer, body)
	}
}

func (h *handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (h *handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.reader.GetConfig(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version": version,
		"config":  configView(cfg, h.eng.MinReward()),
	})
}

func (h *handler) handleListQuests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := quest.QuestFilter{Limit: defaultListLimit}

	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		st, ok := quest.ParseStatus(strings.ToLower(raw))
		if !ok {
			writeBadRequest(w, "invalid_status")
			return
		}
		f.Status = st
	}
	if raw := strings.TrimSpace(q.Get("creator")); raw != "" {
		creator, ok := parseAddress(raw)
		if !ok {
			writeBadRequest(w, "invalid_creator")
			return
		}
		f.Creator = creator
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeBadRequest(w, "invalid_limit")
			return
		}
		f.Limit = min(n, maxListLimit)
	}
	if raw := strings.TrimSpace(q.Get("afterId")); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || after == ^uint64(0) {
			writeBadRequest(w, "invalid_after_id")
			return
		}
		f.FromID = after + 1
	}

	quests, err := h.reader.ListQuests(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	views := make([]QuestView, 0, len(quests))
	for _, qq := range quests {
		views = append(views, questView(qq, minStake(qq.RewardAmount)))
	}
	next := ""
	if len(quests) == f.Limit {
		next = strconv.FormatUint(quests[len(quests)-1].ID, 10)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version":     version,
		"quests":      views,
		"nextAfterId": next,
	})
}

func (h *handler) handleGetQuest(w http.ResponseWriter, r *http.Request) {
	id, ok := questIDParam(w, r)
	if !ok {
		return
	}
	q, err := h.reader.GetQuest(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version": version,
		"quest":   questView(q, minStake(q.RewardAmount)),
	})
}

func (h *handler) handleGetClaim(w http.ResponseWriter, r *http.Request) {
	ref, ok := claimRefParam(w, r)
	if !ok {
		return
	}
	c, err := h.reader.GetClaim(r.Context(), ref)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version": version,
		"claim":   claimView(c),
	})
}

func (h *handler) handleClaimerClaims(w http.ResponseWriter, r *http.Request) {
	claimer, ok := parseAddress(r.PathValue("claimer"))
	if !ok {
		writeBadRequest(w, "invalid_claimer")
		return
	}
	limit := defaultListLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeBadRequest(w, "invalid_limit")
			return
		}
		limit = min(n, maxListLimit)
	}
	claims, err := h.reader.ListClaimsByClaimer(r.Context(), claimer, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	views := make([]ClaimView, 0, len(claims))
	for _, c := range claims {
		views = append(views, claimView(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version": version,
		"claims":  views,
	})
}

func (h *handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	account, ok := parseAddress(r.PathValue("account"))
	if !ok {
		writeBadRequest(w, "invalid_account")
		return
	}
	mint, ok := parseAddress(r.PathValue("mint"))
	if !ok {
		writeBadRequest(w, "invalid_mint")
		return
	}
	bal, err := h.reader.Balance(r.Context(), account, mint)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version": version,
		"account": account.Hex(),
		"mint":    mint.Hex(),
		"balance": strconv.FormatUint(bal, 10),
	})
}

func (h *handler) handleContent(kind content.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.docs == nil {
			writeUnavailable(w, "content_unavailable")
			return
		}
		hash, err := content.ParseHash(r.PathValue("hash"))
		if err != nil {
			writeBadRequest(w, "invalid_hash")
			return
		}
		obj, err := h.docs.Get(r.Context(), kind, hash)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		ct := obj.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		w.Header().Set("Content-Type", ct)
		w.Header().Set("ETag", `"`+common.Hash(hash).Hex()+`"`)
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(obj.Data)
	}
}

// CreateQuestRequest is the body of POST /v1/quests. Exactly one of
// Description and DescriptionHash may be set.
type CreateQuestRequest struct {
	RewardMint      string `json:"rewardMint"`
	RewardAmount    string `json:"rewardAmount"`
	Kind            string `json:"kind"`
	Target          string `json:"target,omitempty"`
	MaxClaimers     uint8  `json:"maxClaimers"`
	TimeLimitHours  uint32 `json:"timeLimitHours,omitempty"`
	Description     string `json:"description,omitempty"`
	DescriptionHash string `json:"descriptionHash,omitempty"`
}

func (h *handler) handleCreateQuest(w http.ResponseWriter, r *http.Request, signer common.Address, body []byte) {
	req, ok := decodeJSONBody[CreateQuestRequest](w, body)
	if !ok {
		return
	}
	mint, ok := parseAddress(req.RewardMint)
	if !ok {
		writeBadRequest(w, "invalid_reward_mint")
		return
	}
	amount, err := parseAmount(req.RewardAmount)
	if err != nil {
		writeBadRequest(w, "invalid_reward_amount")
		return
	}
	kind, ok := quest.ParseKind(strings.ToLower(strings.TrimSpace(req.Kind)))
	if !ok {
		h.writeError(w, r, quest.ErrInvalidKind)
		return
	}
	var target common.Address
	if strings.TrimSpace(req.Target) != "" {
		if target, ok = parseAddress(req.Target); !ok {
			writeBadRequest(w, "invalid_target")
			return
		}
	}
	expiresAt, err := deadline.QuestExpiry(h.eng.Now(), req.TimeLimitHours)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %v", quest.ErrInvalidTimeLimit, err))
		return
	}
	if req.Description != "" {
		if err := policy.CheckDescription(req.Description); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	descHash, ok := h.commitment(w, r, content.KindDescription, req.Description, req.DescriptionHash, "text/plain; charset=utf-8")
	if !ok {
		return
	}

	q, err := h.eng.CreateQuest(r.Context(), signer, quest.CreateParams{
		RewardMint:      mint,
		RewardAmount:    amount,
		Kind:            kind,
		Target:          target,
		MaxClaimers:     req.MaxClaimers,
		ExpiresAt:       expiresAt,
		DescriptionHash: descHash,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"version": version,
		"quest":   questView(q, minStake(q.RewardAmount)),
	})
}

func (h *handler) handleCancelQuest(w http.ResponseWriter, r *http.Request, signer common.Address, _ []byte) {
	id, ok := questIDParam(w, r)
	if !ok {
		return
	}
	q, err := h.eng.CancelQuest(r.Context(), id, signer)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version": version,
		"quest":   questView(q, minStake(q.RewardAmount)),
	})
}

type ClaimRequest struct {
	Stake string `json:"stake"`
}

func (h *handler) handleClaimQuest(w http.ResponseWriter, r *http.Request, signer common.Address, body []byte) {
	id, ok := questIDParam(w, r)
	if !ok {
		return
	}
	req, ok := decodeJSONBody[ClaimRequest](w, body)
	if !ok {
		return
	}
	stake, err := parseAmount(req.Stake)
	if err != nil {
		writeBadRequest(w, "invalid_stake")
		return
	}

	history, err := h.reader.ListClaimsByClaimer(r.Context(), signer, h.cfg.AdmissionHistory)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := policy.AdmitClaim(h.eng.Now(), signer, history, h.cfg.Admission); err != nil {
		h.writeError(w, r, err)
		return
	}

	c, err := h.eng.ClaimQuest(r.Context(), id, signer, stake)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"version": version,
		"claim":   claimView(c),
	})
}

// ProofRequest is the body of the proof route. Exactly one of Proof and
// ProofHash may be set.
type ProofRequest struct {
	Proof       string `json:"proof,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	ProofHash   string `json:"proofHash,omitempty"`
}

func (h *handler) handleSubmitProof(w http.ResponseWriter, r *http.Request, signer common.Address, body []byte) {
	ref, ok := claimRefParam(w, r)
	if !ok {
		return
	}
	req, ok := decodeJSONBody[ProofRequest](w, body)
	if !ok {
		return
	}
	ct := strings.TrimSpace(req.ContentType)
	if ct == "" {
		ct = "text/plain; charset=utf-8"
	}
	if req.Proof == "" && strings.TrimSpace(req.ProofHash) == "" {
		writeBadRequest(w, "missing_proof")
		return
	}
	proofHash, ok := h.commitment(w, r, content.KindProof, req.Proof, req.ProofHash, ct)
	if !ok {
		return
	}
	c, err := h.eng.SubmitProof(r.Context(), ref, signer, proofHash)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version": version,
		"claim":   claimView(c),
	})
}

func (h *handler) handleAbandon(w http.ResponseWriter, r *http.Request, signer common.Address, _ []byte) {
	ref, ok := claimRefParam(w, r)
	if !ok {
		return
	}
	c, err := h.eng.AbandonClaim(r.Context(), ref, signer)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version": version,
		"claim":   claimView(c),
	})
}

func (h *handler) handleApprove(w http.ResponseWriter, r *http.Request, signer common.Address, _ []byte) {
	ref, ok := claimRefParam(w, r)
	if !ok {
		return
	}
	out, err := h.eng.ApproveCompletion(r.Context(), ref, signer)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version":   version,
		"completed": out,
	})
}

type RejectRequest struct {
	SafetyFlagged bool `json:"safetyFlagged"`
}

func (h *handler) handleReject(w http.ResponseWriter, r *http.Request, signer common.Address, body []byte) {
	ref, ok := claimRefParam(w, r)
	if !ok {
		return
	}
	var req RejectRequest
	if len(body) > 0 {
		if req, ok = decodeJSONBody[RejectRequest](w, body); !ok {
			return
		}
	}
	out, err := h.eng.RejectCompletion(r.Context(), ref, signer, req.SafetyFlagged)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version": version,
		"failed":  out,
	})
}

func (h *handler) handleExpire(w http.ResponseWriter, r *http.Request) {
	ref, ok := claimRefParam(w, r)
	if !ok {
		return
	}
	c, err := h.eng.ExpireClaim(r.Context(), ref)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version": version,
		"claim":   claimView(c),
	})
}

func (h *handler) handleAutoApprove(w http.ResponseWriter, r *http.Request) {
	ref, ok := claimRefParam(w, r)
	if !ok {
		return
	}
	out, err := h.eng.AutoApprove(r.Context(), ref)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version":   version,
		"completed": out,
	})
}

// commitment resolves a content hash from either an inline payload, which is
// stored first, or a caller-supplied hash.
func (h *handler) commitment(w http.ResponseWriter, r *http.Request, kind content.Kind, payload, hashHex, contentType string) ([32]byte, bool) {
	hashHex = strings.TrimSpace(hashHex)
	switch {
	case payload != "" && hashHex != "":
		writeBadRequest(w, "ambiguous_content")
		return [32]byte{}, false
	case payload != "":
		if h.docs == nil {
			writeUnavailable(w, "content_unavailable")
			return [32]byte{}, false
		}
		hash, err := h.docs.Put(r.Context(), kind, []byte(payload), contentType)
		if err != nil {
			h.writeError(w, r, err)
			return [32]byte{}, false
		}
		return hash, true
	case hashHex != "":
		hash, err := content.ParseHash(hashHex)
		if err != nil {
			writeBadRequest(w, "invalid_hash")
			return [32]byte{}, false
		}
		return hash, true
	default:
		return [32]byte{}, true
	}
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorResponse(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	} else {
		h.log.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "code", code, "err", err)
	}
	writeJSON(w, status, map[string]any{
		"version": version,
		"error":   code,
	})
}

func questIDParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(r.PathValue("questId")), 10, 64)
	if err != nil {
		writeBadRequest(w, "invalid_quest_id")
		return 0, false
	}
	return id, true
}

func claimRefParam(w http.ResponseWriter, r *http.Request) (quest.ClaimRef, bool) {
	id, ok := questIDParam(w, r)
	if !ok {
		return quest.ClaimRef{}, false
	}
	claimer, ok := parseAddress(r.PathValue("claimer"))
	if !ok {
		writeBadRequest(w, "invalid_claimer")
		return quest.ClaimRef{}, false
	}
	return quest.ClaimRef{QuestID: id, Claimer: claimer}, true
}

func parseAddress(s string) (common.Address, bool) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func parseAmount(raw string) (uint64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errors.New("missing value")
	}
	return strconv.ParseUint(raw, 10, 64)
}

func minStake(reward uint64) uint64 {
	ms, err := fees.MinStake(reward)
	if err != nil {
		return 0
	}
	return ms
}

func decodeJSONBody[T any](w http.ResponseWriter, body []byte) (T, bool) {
	var out T
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		writeBadRequest(w, "invalid_json")
		return out, false
	}
	return out, true
}

func writeBadRequest(w http.ResponseWriter, code string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"version": version,
		"error":   code,
	})
}

func writeUnavailable(w http.ResponseWriter, code string) {
	writeJSON(w, http.StatusServiceUnavailable, map[string]any{
		"version": version,
		"error":   code,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Package handlers provides the HTTP endpoints of the gate node: gate
// queries, call submission, operator auth and the admin surface.
package handlers

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/qugate/gate-node/contract"
	"github.com/qugate/gate-node/executor"
	"github.com/qugate/gate-node/messaging/consumers"
	natsClient "github.com/qugate/gate-node/messaging/nats"
	"github.com/qugate/gate-node/storage/redis"
)

// GateHandler handles gate queries and call submission
type GateHandler struct {
	exec     *executor.Executor
	pipeline *executor.Pipeline

	nats    *natsClient.Client
	limiter *redis.RateLimiter

	submitLimit  int64
	submitWindow time.Duration
}

// NewGateHandler creates a new gate handler. Without a NATS client the
// handler executes calls directly; with one it only enqueues them, and the
// call feed owns execution order.
func NewGateHandler(exec *executor.Executor, pipeline *executor.Pipeline) *GateHandler {
	return &GateHandler{
		exec:         exec,
		pipeline:     pipeline,
		submitLimit:  60,
		submitWindow: time.Minute,
	}
}

// SetNATS switches the handler to queued submission
func (h *GateHandler) SetNATS(client *natsClient.Client) {
	h.nats = client
}

// SetRateLimiter enables per-caller submission limiting
func (h *GateHandler) SetRateLimiter(limiter *redis.RateLimiter, limit int64, window time.Duration) {
	h.limiter = limiter
	if limit > 0 {
		h.submitLimit = limit
	}
	if window > 0 {
		h.submitWindow = window
	}
}

// GateResponse is the JSON shape of one gate
type GateResponse struct {
	GateID            uint64   `json:"gate_id"`
	Mode              string   `json:"mode"`
	Active            bool     `json:"active"`
	Owner             string   `json:"owner"`
	TotalReceived     uint64   `json:"total_received"`
	TotalForwarded    uint64   `json:"total_forwarded"`
	CurrentBalance    uint64   `json:"current_balance"`
	Threshold         uint64   `json:"threshold,omitempty"`
	CreatedEpoch      uint16   `json:"created_epoch"`
	LastActivityEpoch uint16   `json:"last_activity_epoch"`
	Recipients        []string `json:"recipients"`
	Ratios            []uint64 `json:"ratios,omitempty"`
}

// modeLabels maps forwarding modes to their wire names
var modeLabels = map[contract.Mode]string{
	contract.ModeSplit:       "SPLIT",
	contract.ModeRoundRobin:  "ROUND_ROBIN",
	contract.ModeThreshold:   "THRESHOLD",
	contract.ModeRandom:      "RANDOM",
	contract.ModeConditional: "CONDITIONAL",
}

func gateResponse(id uint64, info contract.GateInfo) *GateResponse {
	resp := &GateResponse{
		GateID:            id,
		Mode:              modeLabels[info.Mode],
		Active:            info.Active,
		Owner:             hex.EncodeToString(info.Owner[:]),
		TotalReceived:     info.TotalReceived,
		TotalForwarded:    info.TotalForwarded,
		CurrentBalance:    info.CurrentBalance,
		Threshold:         info.Threshold,
		CreatedEpoch:      info.CreatedEpoch,
		LastActivityEpoch: info.LastActivityEpoch,
	}
	for i := uint8(0); i < info.RecipientCount; i++ {
		resp.Recipients = append(resp.Recipients, hex.EncodeToString(info.Recipients[i][:]))
		resp.Ratios = append(resp.Ratios, info.Ratios[i])
	}
	return resp
}

// HandleGetGate handles GET /api/v1/gates/{id}
func (h *GateHandler) HandleGetGate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	idStr := r.URL.Query().Get("id")
	if idStr == "" {
		idStr = strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/v1/gates/"), "/")
	}

	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil || id == 0 {
		http.Error(w, `{"error":"valid gate id required"}`, http.StatusBadRequest)
		return
	}

	info := h.exec.GetGate(id)
	if info.CreatedEpoch == 0 {
		http.Error(w, `{"error":"gate not found"}`, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(gateResponse(id, info))
}

// HandleGetCount handles GET /api/v1/gates/count
func (h *GateHandler) HandleGetCount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	count := h.exec.GetCount()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"total_gates":  count.TotalGates,
		"active_gates": count.ActiveGates,
		"total_burned": count.TotalBurned,
		"epoch":        h.exec.Epoch(),
	})
}

// HandleGetFees handles GET /api/v1/gates/fees
func (h *GateHandler) HandleGetFees(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	fees := h.exec.GetFees()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"base_fee":      fees.BaseFee,
		"current_fee":   fees.CurrentFee,
		"min_send":      fees.MinSend,
		"expiry_epochs": fees.ExpiryEpochs,
	})
}

// SubmitCallRequest is the call submission body. Payload is the base64 of
// the procedure's fixed-size wire encoding.
type SubmitCallRequest struct {
	Procedure string `json:"procedure"` // "CREATE", "SEND", "CLOSE", "UPDATE"
	Caller    string `json:"caller"`    // hex public key
	Attached  uint64 `json:"attached"`
	Payload   string `json:"payload"`
}

// TransferResponse is one ledger transfer inside a receipt
type TransferResponse struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// ReceiptResponse is the committed outcome of a directly executed call
type ReceiptResponse struct {
	Ordinal    uint64             `json:"ordinal"`
	CallID     string             `json:"call_id"`
	Procedure  string             `json:"procedure"`
	Epoch      uint16             `json:"epoch"`
	Status     string             `json:"status"`
	StatusCode int64              `json:"status_code"`
	GateID     uint64             `json:"gate_id,omitempty"`
	FeePaid    uint64             `json:"fee_paid,omitempty"`
	Burned     uint64             `json:"burned,omitempty"`
	Transfers  []TransferResponse `json:"transfers"`
}

func receiptResponse(rc executor.Receipt) *ReceiptResponse {
	resp := &ReceiptResponse{
		Ordinal:    rc.Ordinal,
		CallID:     rc.CallID,
		Procedure:  rc.Procedure.String(),
		Epoch:      rc.Epoch,
		Status:     rc.Status.String(),
		StatusCode: int64(rc.Status),
		GateID:     rc.GateID,
		FeePaid:    rc.FeePaid,
		Burned:     rc.Burned,
		Transfers:  make([]TransferResponse, 0, len(rc.Transfers)),
	}
	for _, t := range rc.Transfers {
		resp.Transfers = append(resp.Transfers, TransferResponse{
			To:     hex.EncodeToString(t.To[:]),
			Amount: t.Amount,
		})
	}
	return resp
}

// HandleSubmitCall handles POST /api/v1/calls
func (h *GateHandler) HandleSubmitCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	var req SubmitCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}

	if _, err := consumers.ParseProcedure(req.Procedure); err != nil {
		http.Error(w, `{"error":"unknown procedure"}`, http.StatusBadRequest)
		return
	}

	callerBytes, err := hex.DecodeString(req.Caller)
	if err != nil || len(callerBytes) != 32 {
		http.Error(w, `{"error":"caller must be a 64-char hex public key"}`, http.StatusBadRequest)
		return
	}

	// Edge throttle; the contract prices abuse on its own, this just keeps
	// one caller from crowding out the feed
	if h.limiter != nil {
		result, err := h.limiter.Allow(r.Context(), redis.SubmissionLimit(req.Caller, h.submitLimit, h.submitWindow))
		if err != nil {
			log.Printf("⚠️  Rate limit check failed, allowing: %v", err)
		} else if !result.Allowed {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(result.RetryAfter.Seconds())+1))
			http.Error(w, `{"error":"submission rate limit exceeded"}`, http.StatusTooManyRequests)
			return
		}
	}

	env := &natsClient.CallEnvelope{
		CallID:    uuid.New().String(),
		Procedure: req.Procedure,
		Caller:    req.Caller,
		Attached:  req.Attached,
		Payload:   req.Payload,
		Submitted: time.Now().UTC(),
	}

	// Queued mode: hand the call to JetStream and let the feed order it
	if h.nats != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := h.nats.PublishCall(ctx, env); err != nil {
			log.Printf("❌ Call enqueue failed: %v", err)
			http.Error(w, `{"error":"failed to enqueue call"}`, http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"call_id": env.CallID,
			"status":  "QUEUED",
		})
		return
	}

	// Local mode: execute in-process and return the receipt
	call, err := consumers.CallFromEnvelope(env)
	if err != nil {
		http.Error(w, `{"error":"invalid call: `+err.Error()+`"}`, http.StatusBadRequest)
		return
	}

	receipt, err := h.exec.Execute(call)
	if err != nil {
		log.Printf("❌ Call %s rejected before the contract: %v", call.ID, err)
	}
	if h.pipeline != nil {
		h.pipeline.Publish(receipt)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(receiptResponse(receipt))
}

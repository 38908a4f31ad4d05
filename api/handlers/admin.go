package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/qugate/gate-node/api/middleware"
	"github.com/qugate/gate-node/contract"
	"github.com/qugate/gate-node/executor"
	"github.com/qugate/gate-node/reports"
	"github.com/qugate/gate-node/snapshot"
	"github.com/qugate/gate-node/storage/postgres"
	"github.com/qugate/gate-node/storage/redis"
)

// AdminHandler handles the operator-facing admin surface: epoch rollover,
// snapshot export, archive integrity and circuit inspection.
type AdminHandler struct {
	exec     *executor.Executor
	pipeline *executor.Pipeline

	pg         *postgres.Client
	breaker    *redis.CircuitBreaker
	statements *reports.Generator
}

// NewAdminHandler creates a new admin handler. The postgres client and
// circuit breaker are optional; endpoints depending on them report
// unavailable when absent.
func NewAdminHandler(exec *executor.Executor, pipeline *executor.Pipeline) *AdminHandler {
	return &AdminHandler{
		exec:       exec,
		pipeline:   pipeline,
		statements: reports.NewGenerator("QuGate Forwarding Node"),
	}
}

// SetArchive attaches the receipt archive
func (h *AdminHandler) SetArchive(pg *postgres.Client) {
	h.pg = pg
}

// SetCircuitBreaker attaches the circuit breaker for inspection
func (h *AdminHandler) SetCircuitBreaker(cb *redis.CircuitBreaker) {
	h.breaker = cb
}

// HandleEndEpoch handles POST /api/v1/admin/epoch/end. The sweep runs
// through the executor like any other state transition, so its refunds
// flow to the archive and event stream through the same pipeline.
func (h *AdminHandler) HandleEndEpoch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	op := middleware.GetOperatorFromContext(r.Context())
	if op == nil || !op.IsAdmin() {
		http.Error(w, `{"error":"admin access required"}`, http.StatusForbidden)
		return
	}

	receipt := h.exec.EndEpoch()
	if h.pipeline != nil {
		h.pipeline.Publish(receipt)
	}

	log.Printf("⏱️  Admin %s ended epoch %d (%d expiry refunds)", op.Username, receipt.Epoch, len(receipt.Transfers))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(receiptResponse(receipt))
}

// HandleSnapshot handles GET /api/v1/admin/snapshot. Capture runs under
// the executor lock so the exported state sits on a call boundary.
func (h *AdminHandler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	op := middleware.GetOperatorFromContext(r.Context())
	if op == nil || !op.IsAdmin() {
		http.Error(w, `{"error":"admin access required"}`, http.StatusForbidden)
		return
	}

	var snap *snapshot.Snapshot
	h.exec.Freeze(func(c *contract.Contract, epoch uint16) {
		snap = snapshot.Capture(c, epoch)
	})

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=gates_epoch_%d.qgsnap", snap.Epoch))

	if err := snap.WriteTo(w); err != nil {
		log.Printf("❌ Snapshot export failed: %v", err)
		return
	}

	log.Printf("📦 Admin %s exported snapshot: epoch %d, %d gates, digest %016x",
		op.Username, snap.Epoch, len(snap.Gates), snap.Digest())
}

// HandleIntegrity handles GET /api/v1/admin/integrity
func (h *AdminHandler) HandleIntegrity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	op := middleware.GetOperatorFromContext(r.Context())
	if op == nil {
		http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
		return
	}

	if h.pg == nil {
		http.Error(w, `{"error":"receipt archive not configured"}`, http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	results, err := h.pg.VerifyIntegrity(ctx)
	if err != nil {
		http.Error(w, `{"error":"integrity check failed: `+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"intact": len(results) == 0,
		"breaks": results,
	})
}

// HandleCircuits handles GET /api/v1/admin/circuits
func (h *AdminHandler) HandleCircuits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	op := middleware.GetOperatorFromContext(r.Context())
	if op == nil {
		http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
		return
	}

	if h.breaker == nil {
		http.Error(w, `{"error":"circuit breaker not configured"}`, http.StatusServiceUnavailable)
		return
	}

	circuits, err := h.breaker.GetAllCircuits(r.Context())
	if err != nil {
		http.Error(w, `{"error":"failed to read circuits: `+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(circuits)
}

// HandleLatestReceipts handles GET /api/v1/admin/receipts?limit=N
func (h *AdminHandler) HandleLatestReceipts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	op := middleware.GetOperatorFromContext(r.Context())
	if op == nil {
		http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
		return
	}

	if h.pg == nil {
		http.Error(w, `{"error":"receipt archive not configured"}`, http.StatusServiceUnavailable)
		return
	}

	limit := 50
	if ls := r.URL.Query().Get("limit"); ls != "" {
		if n, err := strconv.Atoi(ls); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	receipts, err := h.pg.GetLatestReceipts(r.Context(), limit)
	if err != nil {
		http.Error(w, `{"error":"failed to read archive: `+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"receipts": receipts,
		"count":    len(receipts),
	})
}

// HandleGateStatement handles GET /api/v1/statements/{gateID} and returns
// a signed PDF statement combining live gate state with archived activity
func (h *AdminHandler) HandleGateStatement(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	op := middleware.GetOperatorFromContext(r.Context())
	if op == nil {
		http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
		return
	}

	idStr := r.URL.Query().Get("id")
	if idStr == "" {
		idStr = strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/v1/statements/"), "/")
	}

	gateID, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil || gateID == 0 {
		http.Error(w, `{"error":"valid gate id required"}`, http.StatusBadRequest)
		return
	}

	info := h.exec.GetGate(gateID)
	if info.CreatedEpoch == 0 {
		http.Error(w, `{"error":"gate not found"}`, http.StatusNotFound)
		return
	}

	var receipts []postgres.ArchivedReceipt
	if h.pg != nil {
		receipts, err = h.pg.GetGateReceipts(r.Context(), gateID, 25)
		if err != nil {
			log.Printf("⚠️  Statement archive lookup failed for gate %d: %v", gateID, err)
			receipts = nil
		}
	}

	pdfBytes, err := h.statements.GeneratePDF(gateID, &info, receipts, h.exec.Epoch())
	if err != nil {
		log.Printf("❌ Statement PDF generation error: %v", err)
		http.Error(w, `{"error":"failed to generate statement"}`, http.StatusInternalServerError)
		return
	}

	log.Printf("📄 Statement generated: %d bytes for gate %d", len(pdfBytes), gateID)

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=gate_%d_statement.pdf", gateID))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(pdfBytes)))

	w.Write(pdfBytes)
}

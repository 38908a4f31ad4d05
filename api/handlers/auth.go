package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/qugate/gate-node/api/middleware"
	"github.com/qugate/gate-node/auth"
	"github.com/qugate/gate-node/storage/operators"
)

// AuthHandler handles operator authentication endpoints
type AuthHandler struct {
	tokenManager *auth.TokenManager
	store        *operators.Store
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(tm *auth.TokenManager, store *operators.Store) *AuthHandler {
	return &AuthHandler{tokenManager: tm, store: store}
}

// LoginRequest is the login request body
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the login response
type LoginResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	Operator  *auth.Operator `json:"operator"`
}

// HandleLogin handles POST /api/v1/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}

	stored, err := h.store.Authenticate(req.Username, req.Password)
	if err != nil {
		http.Error(w, `{"error":"invalid username or password"}`, http.StatusUnauthorized)
		return
	}

	op := stored.ToOperator()
	token, claims, err := h.tokenManager.GenerateToken(op)
	if err != nil {
		http.Error(w, `{"error":"failed to generate token"}`, http.StatusInternalServerError)
		return
	}

	log.Printf("🔐 Operator logged in: %s (role: %s)", op.Username, op.Role)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(LoginResponse{
		Token:     token,
		ExpiresAt: claims.ExpiresAt,
		Operator:  op,
	})
}

// HandleRefresh handles POST /api/v1/auth/refresh
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
		return
	}

	token, newClaims, err := h.tokenManager.RefreshToken(claims)
	if err != nil {
		http.Error(w, `{"error":"failed to refresh token"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"token":      token,
		"expires_at": newClaims.ExpiresAt,
	})
}

// CreateOperatorRequest is the request body for creating an operator
type CreateOperatorRequest struct {
	Username string    `json:"username"`
	Password string    `json:"password"`
	Role     auth.Role `json:"role"`
}

// HandleCreateOperator handles POST /api/v1/admin/operators
func (h *AuthHandler) HandleCreateOperator(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	op := middleware.GetOperatorFromContext(r.Context())
	if op == nil || !op.IsAdmin() {
		http.Error(w, `{"error":"admin access required"}`, http.StatusForbidden)
		return
	}

	var req CreateOperatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}

	if req.Username == "" || req.Password == "" {
		http.Error(w, `{"error":"username and password are required"}`, http.StatusBadRequest)
		return
	}

	if len(req.Password) < 8 {
		http.Error(w, `{"error":"password must be at least 8 characters"}`, http.StatusBadRequest)
		return
	}

	if req.Role != auth.RoleAdmin && req.Role != auth.RoleViewer {
		req.Role = auth.RoleViewer
	}

	created, err := h.store.Create(req.Username, req.Password, req.Role)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusConflict)
		return
	}

	log.Printf("🆕 Admin %s created operator: %s (role: %s)", op.Username, created.Username, created.Role)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(created.ToOperator())
}

// HandleListOperators handles GET /api/v1/admin/operators
func (h *AuthHandler) HandleListOperators(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	op := middleware.GetOperatorFromContext(r.Context())
	if op == nil || !op.IsAdmin() {
		http.Error(w, `{"error":"admin access required"}`, http.StatusForbidden)
		return
	}

	ops := h.store.List()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"operators": ops,
		"count":     len(ops),
	})
}

package rpc

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"x402resolve/core"
	"x402resolve/native/escrow"
	"x402resolve/native/oracle"
	"x402resolve/native/ratelimit"
	"x402resolve/native/reputation"
	"x402resolve/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB

	defaultRequestsPerMinute = 120
	defaultBurst             = 20
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020

	codeEscrowConflict    = -32021
	codeConsensusFailed   = -32022
	codeInvalidSignature  = -32023
	codeLimitExceeded     = -32024
	codeInsufficientFunds = -32025
)

type Server struct {
	node    *core.Node
	log     *slog.Logger
	metrics interface {
		Observe(module, method string, status int, duration time.Duration)
		RecordThrottle(module, reason string)
		RecordResolution(path string)
		RecordDispute()
	}

	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	authToken string
	rpm       int
	burst     int

	registryMinConsensus uint8
	registryMaxDeviation uint8
}

// NewServer builds the JSON-RPC surface over a node. The bearer token guarding
// mutating methods is read from the X402_RPC_TOKEN environment variable.
func NewServer(node *core.Node, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	token := strings.TrimSpace(os.Getenv("X402_RPC_TOKEN"))
	return &Server{
		node:      node,
		log:       log,
		metrics:   observability.ModuleMetrics(),
		limiters:  make(map[string]*rate.Limiter),
		authToken: token,
		rpm:       defaultRequestsPerMinute,
		burst:     defaultBurst,
	}
}

// SetRegistryDefaults configures the consensus parameters applied when an
// oracle_initializeRegistry request omits them.
func (s *Server) SetRegistryDefaults(minConsensus, maxScoreDeviation uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registryMinConsensus = minConsensus
	s.registryMaxDeviation = maxScoreDeviation
}

// SetRateLimit overrides the per-client request ceiling.
func (s *Server) SetRateLimit(requestsPerMinute, burst int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if requestsPerMinute > 0 {
		s.rpm = requestsPerMinute
	}
	if burst > 0 {
		s.burst = burst
	}
	s.limiters = make(map[string]*rate.Limiter)
}

// Handler returns the HTTP handler serving the RPC endpoint alongside
// /metrics and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	return mux
}

// Start serves the RPC surface until the context is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("rpc server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// domainError translates module sentinel errors into HTTP status and RPC
// error code pairs.
func domainError(err error) (int, int) {
	switch {
	case errors.Is(err, escrow.ErrEscrowNotFound):
		return http.StatusNotFound, codeServerError
	case errors.Is(err, escrow.ErrEscrowExists),
		errors.Is(err, escrow.ErrInvalidStatus),
		errors.Is(err, escrow.ErrTimeLockNotExpired),
		errors.Is(err, escrow.ErrDisputeWindowExpired):
		return http.StatusConflict, codeEscrowConflict
	case errors.Is(err, escrow.ErrUnauthorized),
		errors.Is(err, oracle.ErrUnauthorized):
		return http.StatusForbidden, codeUnauthorized
	case errors.Is(err, escrow.ErrNoConsensusReached),
		errors.Is(err, escrow.ErrInsufficientOracleConsensus),
		errors.Is(err, escrow.ErrDuplicateOracleSubmission),
		errors.Is(err, escrow.ErrUnregisteredOracle),
		errors.Is(err, escrow.ErrUnsupportedOracleType),
		errors.Is(err, escrow.ErrMaxOraclesReached):
		return http.StatusUnprocessableEntity, codeConsensusFailed
	case errors.Is(err, oracle.ErrInvalidSignature),
		errors.Is(err, oracle.ErrInvalidAttestation),
		errors.Is(err, oracle.ErrStaleAttestation),
		errors.Is(err, oracle.ErrQualityScoreMismatch):
		return http.StatusUnprocessableEntity, codeInvalidSignature
	case errors.Is(err, ratelimit.ErrRateLimitExceeded):
		return http.StatusTooManyRequests, codeLimitExceeded
	case errors.Is(err, escrow.ErrInsufficientFunds),
		errors.Is(err, escrow.ErrInsufficientDisputeFunds),
		errors.Is(err, escrow.ErrInsufficientReserve),
		errors.Is(err, escrow.ErrMissingTokenAccount):
		return http.StatusUnprocessableEntity, codeInsufficientFunds
	case errors.Is(err, escrow.ErrInvalidAmount),
		errors.Is(err, escrow.ErrAmountTooLarge),
		errors.Is(err, escrow.ErrInvalidTimeLock),
		errors.Is(err, escrow.ErrInvalidTransactionID),
		errors.Is(err, escrow.ErrInvalidQualityScore),
		errors.Is(err, escrow.ErrInvalidRefundPercentage),
		errors.Is(err, escrow.ErrMissingTokenMint),
		errors.Is(err, escrow.ErrTokenMintMismatch),
		errors.Is(err, oracle.ErrInvalidOracleWeight),
		errors.Is(err, oracle.ErrInvalidConsensusThreshold),
		errors.Is(err, oracle.ErrInvalidScoreDeviation),
		errors.Is(err, oracle.ErrDuplicateOracle),
		errors.Is(err, oracle.ErrMaxOraclesReached),
		errors.Is(err, oracle.ErrOracleNotFound),
		errors.Is(err, ratelimit.ErrInvalidTier),
		errors.Is(err, reputation.ErrAlreadyInitialized):
		return http.StatusBadRequest, codeInvalidParams
	case errors.Is(err, oracle.ErrRegistryNotFound),
		errors.Is(err, oracle.ErrRegistryExists),
		errors.Is(err, escrow.ErrNilRegistry):
		return http.StatusConflict, codeEscrowConflict
	default:
		return http.StatusInternalServerError, codeServerError
	}
}

func (s *Server) writeDomainError(w http.ResponseWriter, id interface{}, err error) {
	status, code := domainError(err)
	writeError(w, status, id, code, err.Error(), nil)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	if !s.allowSource(clientSource(r)) {
		s.metrics.RecordThrottle("rpc", "rate_limit")
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "too many requests", nil)
		return
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.route(recorder, r, req)
	s.metrics.Observe("x402", req.Method, recorder.status, time.Since(started))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) route(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	mutating := map[string]bool{
		"escrow_initialize":         true,
		"escrow_release":            true,
		"escrow_markDisputed":       true,
		"escrow_resolve":            true,
		"escrow_resolveFeed":        true,
		"escrow_resolveMultiOracle": true,
		"oracle_initializeRegistry": true,
		"oracle_add":                true,
		"oracle_remove":             true,
		"reputation_initialize":     true,
		"ratelimit_setTier":         true,
		"agreement_create":          true,
	}
	if mutating[req.Method] {
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
	}

	switch req.Method {
	case "escrow_initialize":
		s.handleEscrowInitialize(w, req)
	case "escrow_get":
		s.handleEscrowGet(w, req)
	case "escrow_release":
		s.handleEscrowRelease(w, req)
	case "escrow_markDisputed":
		s.handleEscrowMarkDisputed(w, req)
	case "escrow_resolve":
		s.handleEscrowResolve(w, req)
	case "escrow_resolveFeed":
		s.handleEscrowResolveFeed(w, req)
	case "escrow_resolveMultiOracle":
		s.handleEscrowResolveMultiOracle(w, req)
	case "oracle_initializeRegistry":
		s.handleOracleInitializeRegistry(w, req)
	case "oracle_add":
		s.handleOracleAdd(w, req)
	case "oracle_remove":
		s.handleOracleRemove(w, req)
	case "oracle_registry":
		s.handleOracleRegistry(w, req)
	case "reputation_initialize":
		s.handleReputationInitialize(w, req)
	case "reputation_get":
		s.handleReputationGet(w, req)
	case "reputation_disputeCost":
		s.handleReputationDisputeCost(w, req)
	case "ratelimit_setTier":
		s.handleRateLimitSetTier(w, req)
	case "ratelimit_get":
		s.handleRateLimitGet(w, req)
	case "agreement_create":
		s.handleAgreementCreate(w, req)
	case "agreement_get":
		s.handleAgreementGet(w, req)
	case "penalty_get":
		s.handlePenaltyGet(w, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method), nil)
	}
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

func (s *Server) allowSource(source string) bool {
	if source == "" {
		source = "unknown"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	limiter, ok := s.limiters[source]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(float64(s.rpm)/60.0), s.burst)
		s.limiters[source] = limiter
	}
	return limiter.Allow()
}

func clientSource(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			candidate := strings.TrimSpace(parts[0])
			if candidate != "" {
				return candidate
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) == 0 {
		return fmt.Errorf("missing params object")
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

func parseAddress(value string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil || len(raw) != len(addr) {
		return addr, fmt.Errorf("invalid 20-byte address %q", value)
	}
	copy(addr[:], raw)
	return addr, nil
}

func parseKey32(value string) ([32]byte, error) {
	var key [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil || len(raw) != len(key) {
		return key, fmt.Errorf("invalid 32-byte key %q", value)
	}
	copy(key[:], raw)
	return key, nil
}

func parseSignature(value string) ([64]byte, error) {
	var sig [64]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil || len(raw) != len(sig) {
		return sig, fmt.Errorf("invalid 64-byte signature %q", value)
	}
	copy(sig[:], raw)
	return sig, nil
}

func formatAddress(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func formatKey32(key [32]byte) string {
	return hex.EncodeToString(key[:])
}

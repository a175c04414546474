package rpc

import (
	"net/http"
	"strings"

	"x402resolve/native/oracle"
)

type oracleConfigResult struct {
	Key    string `json:"key"`
	Kind   string `json:"kind"`
	Weight uint16 `json:"weight"`
}

type registryResult struct {
	Admin             string               `json:"admin"`
	Oracles           []oracleConfigResult `json:"oracles"`
	MinConsensus      uint8                `json:"minConsensus"`
	MaxScoreDeviation uint8                `json:"maxScoreDeviation"`
	CreatedAt         int64                `json:"createdAt"`
	UpdatedAt         int64                `json:"updatedAt"`
}

func toRegistryResult(registry *oracle.Registry) registryResult {
	result := registryResult{
		Admin:             formatAddress(registry.Admin),
		MinConsensus:      registry.MinConsensus,
		MaxScoreDeviation: registry.MaxScoreDeviation,
		CreatedAt:         registry.CreatedAt,
		UpdatedAt:         registry.UpdatedAt,
	}
	for _, cfg := range registry.Oracles {
		result.Oracles = append(result.Oracles, oracleConfigResult{
			Key:    formatKey32(cfg.Key),
			Kind:   cfg.Kind.String(),
			Weight: cfg.Weight,
		})
	}
	return result
}

func parseOracleKind(value string) (oracle.Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "signer", "":
		return oracle.KindSigner, true
	case "feed":
		return oracle.KindFeed, true
	case "custom":
		return oracle.KindCustom, true
	default:
		return 0, false
	}
}

func (s *Server) handleOracleInitializeRegistry(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Admin             string `json:"admin"`
		MinConsensus      uint8  `json:"minConsensus"`
		MaxScoreDeviation uint8  `json:"maxScoreDeviation"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	admin, err := parseAddress(params.Admin)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	minConsensus := params.MinConsensus
	maxDeviation := params.MaxScoreDeviation
	s.mu.Lock()
	if minConsensus == 0 {
		minConsensus = s.registryMinConsensus
	}
	if maxDeviation == 0 {
		maxDeviation = s.registryMaxDeviation
	}
	s.mu.Unlock()
	registry, err := s.node.OracleInitializeRegistry(admin, minConsensus, maxDeviation)
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, toRegistryResult(registry))
}

func (s *Server) handleOracleAdd(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Caller string `json:"caller"`
		Key    string `json:"key"`
		Kind   string `json:"kind"`
		Weight uint16 `json:"weight"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	key, err := parseKey32(params.Key)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	kind, ok := parseOracleKind(params.Kind)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "kind must be signer, feed or custom", nil)
		return
	}
	if err := s.node.OracleAdd(caller, key, kind, params.Weight); err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"added": true})
}

func (s *Server) handleOracleRemove(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Caller string `json:"caller"`
		Key    string `json:"key"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	key, err := parseKey32(params.Key)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.OracleRemove(caller, key); err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"removed": true})
}

func (s *Server) handleOracleRegistry(w http.ResponseWriter, req *RPCRequest) {
	registry, ok, err := s.node.OracleRegistry()
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeServerError, "oracle registry not initialised", nil)
		return
	}
	writeResult(w, req.ID, toRegistryResult(registry))
}

package rpc

import (
	"net/http"
	"strings"

	"x402resolve/native/ratelimit"
	"x402resolve/native/reputation"
)

type reputationResult struct {
	Entity            string `json:"entity"`
	Role              string `json:"role"`
	TotalTransactions uint64 `json:"totalTransactions"`
	DisputesFiled     uint64 `json:"disputesFiled"`
	DisputesWon       uint64 `json:"disputesWon"`
	DisputesPartial   uint64 `json:"disputesPartial"`
	DisputesLost      uint64 `json:"disputesLost"`
	AverageQuality    uint8  `json:"averageQuality"`
	Score             uint16 `json:"score"`
	CreatedAt         int64  `json:"createdAt"`
	LastUpdated       int64  `json:"lastUpdated"`
}

func toReputationResult(record *reputation.EntityReputation) reputationResult {
	return reputationResult{
		Entity:            formatAddress(record.Entity),
		Role:              record.Role.String(),
		TotalTransactions: record.TotalTransactions,
		DisputesFiled:     record.DisputesFiled,
		DisputesWon:       record.DisputesWon,
		DisputesPartial:   record.DisputesPartial,
		DisputesLost:      record.DisputesLost,
		AverageQuality:    record.AverageQuality,
		Score:             record.Score,
		CreatedAt:         record.CreatedAt,
		LastUpdated:       record.LastUpdated,
	}
}

func (s *Server) handleReputationInitialize(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Entity string `json:"entity"`
		Role   string `json:"role"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	entity, err := parseAddress(params.Entity)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	role := reputation.RoleAgent
	if strings.EqualFold(strings.TrimSpace(params.Role), "provider") {
		role = reputation.RoleProvider
	}
	record, err := s.node.ReputationInitialize(entity, role)
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, toReputationResult(record))
}

func (s *Server) handleReputationGet(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Entity string `json:"entity"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	entity, err := parseAddress(params.Entity)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	record, ok, err := s.node.ReputationGet(entity)
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeServerError, "no reputation record for entity", nil)
		return
	}
	writeResult(w, req.ID, toReputationResult(record))
}

func (s *Server) handleReputationDisputeCost(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Entity string `json:"entity"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	entity, err := parseAddress(params.Entity)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	cost, err := s.node.ReputationDisputeCost(entity)
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"entity": formatAddress(entity),
		"cost":   cost.String(),
	})
}

type rateLimiterResult struct {
	Entity          string `json:"entity"`
	Tier            string `json:"tier"`
	TxLastHour      uint16 `json:"txLastHour"`
	TxLastDay       uint16 `json:"txLastDay"`
	DisputesLastDay uint16 `json:"disputesLastDay"`
	LastHourBucket  int64  `json:"lastHourBucket"`
	LastDayBucket   int64  `json:"lastDayBucket"`
}

func parseTier(value string) (ratelimit.Tier, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "basic", "":
		return ratelimit.TierBasic, true
	case "staked":
		return ratelimit.TierStaked, true
	case "social":
		return ratelimit.TierSocial, true
	case "kyc":
		return ratelimit.TierKYC, true
	default:
		return 0, false
	}
}

func (s *Server) handleRateLimitSetTier(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Entity string `json:"entity"`
		Tier   string `json:"tier"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	entity, err := parseAddress(params.Entity)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	tier, ok := parseTier(params.Tier)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "tier must be basic, staked, social or kyc", nil)
		return
	}
	if err := s.node.RateLimitSetTier(entity, tier); err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"entity": formatAddress(entity),
		"tier":   tier.String(),
	})
}

func (s *Server) handleRateLimitGet(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Entity string `json:"entity"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	entity, err := parseAddress(params.Entity)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	record, ok, err := s.node.RateLimitGet(entity)
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeServerError, "no rate limiter state for entity", nil)
		return
	}
	writeResult(w, req.ID, rateLimiterResult{
		Entity:          formatAddress(record.Entity),
		Tier:            record.Tier.String(),
		TxLastHour:      record.TxLastHour,
		TxLastDay:       record.TxLastDay,
		DisputesLastDay: record.DisputesLastDay,
		LastHourBucket:  record.LastHourBucket,
		LastDayBucket:   record.LastDayBucket,
	})
}

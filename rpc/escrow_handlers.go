package rpc

import (
	"math/big"
	"net/http"
	"strings"

	"x402resolve/native/escrow"
	"x402resolve/native/oracle"
)

type instructionParam struct {
	Facility string `json:"facility"`
	Data     []byte `json:"data"`
}

func toInstructions(params []instructionParam) []oracle.Instruction {
	batch := make([]oracle.Instruction, len(params))
	for i, p := range params {
		batch[i] = oracle.Instruction{Facility: p.Facility, Data: p.Data}
	}
	return batch
}

type escrowResult struct {
	TransactionID    string             `json:"transactionId"`
	Agent            string             `json:"agent"`
	Provider         string             `json:"provider"`
	Amount           string             `json:"amount"`
	Kind             string             `json:"kind"`
	TokenMint        string             `json:"tokenMint,omitempty"`
	TokenDecimals    uint8              `json:"tokenDecimals"`
	Status           string             `json:"status"`
	CreatedAt        int64              `json:"createdAt"`
	ExpiresAt        int64              `json:"expiresAt"`
	QualityScore     *uint8             `json:"qualityScore,omitempty"`
	RefundPercentage *uint8             `json:"refundPercentage,omitempty"`
	Submissions      []submissionResult `json:"submissions,omitempty"`
}

type submissionResult struct {
	Oracle      string `json:"oracle"`
	Score       uint8  `json:"score"`
	SubmittedAt int64  `json:"submittedAt"`
}

type resolutionResult struct {
	Escrow           escrowResult `json:"escrow"`
	QualityScore     uint8        `json:"qualityScore"`
	RefundPercentage uint8        `json:"refundPercentage"`
	RefundAmount     string       `json:"refundAmount"`
	PaymentAmount    string       `json:"paymentAmount"`
	Oracles          []string     `json:"oracles"`
	Scores           []uint8      `json:"scores"`
}

func toEscrowResult(esc *escrow.Escrow) escrowResult {
	result := escrowResult{
		TransactionID:    esc.TransactionID,
		Agent:            formatAddress(esc.Agent),
		Provider:         formatAddress(esc.Provider),
		Amount:           esc.Amount.String(),
		Kind:             esc.Kind.String(),
		TokenMint:        esc.TokenMint,
		TokenDecimals:    esc.TokenDecimals,
		Status:           esc.Status.String(),
		CreatedAt:        esc.CreatedAt,
		ExpiresAt:        esc.ExpiresAt,
		QualityScore:     esc.QualityScore,
		RefundPercentage: esc.RefundPercentage,
	}
	for _, sub := range esc.Submissions {
		result.Submissions = append(result.Submissions, submissionResult{
			Oracle:      formatKey32(sub.Oracle),
			Score:       sub.Score,
			SubmittedAt: sub.SubmittedAt,
		})
	}
	return result
}

func toResolutionResult(res *escrow.Resolution) resolutionResult {
	result := resolutionResult{
		Escrow:           toEscrowResult(res.Escrow),
		QualityScore:     res.QualityScore,
		RefundPercentage: res.RefundPercentage,
		RefundAmount:     res.RefundAmount.String(),
		PaymentAmount:    res.PaymentAmount.String(),
		Scores:           res.Scores,
	}
	for _, key := range res.Oracles {
		result.Oracles = append(result.Oracles, formatKey32(key))
	}
	return result
}

func (s *Server) handleEscrowInitialize(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Agent           string `json:"agent"`
		Provider        string `json:"provider"`
		Amount          string `json:"amount"`
		TimeLockSeconds int64  `json:"timeLockSeconds"`
		TransactionID   string `json:"transactionId"`
		Kind            string `json:"kind"`
		TokenMint       string `json:"tokenMint"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	agent, err := parseAddress(params.Agent)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	provider, err := parseAddress(params.Provider)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(params.Amount), 10)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "amount must be a base-10 integer", nil)
		return
	}
	kind := escrow.ValueNative
	if strings.EqualFold(params.Kind, "token") {
		kind = escrow.ValueToken
	}

	esc, err := s.node.EscrowInitialize(agent, provider, amount, params.TimeLockSeconds, params.TransactionID, kind, params.TokenMint)
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, toEscrowResult(esc))
}

func (s *Server) handleEscrowGet(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		TransactionID string `json:"transactionId"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	esc, ok, err := s.node.EscrowGet(params.TransactionID)
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeServerError, "escrow not found", nil)
		return
	}
	writeResult(w, req.ID, toEscrowResult(esc))
}

func (s *Server) handleEscrowRelease(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		TransactionID string `json:"transactionId"`
		Caller        string `json:"caller"`
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
	esc, err := s.node.EscrowRelease(params.TransactionID, caller)
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, toEscrowResult(esc))
}

func (s *Server) handleEscrowMarkDisputed(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		TransactionID string `json:"transactionId"`
		Caller        string `json:"caller"`
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
	esc, err := s.node.EscrowMarkDisputed(params.TransactionID, caller)
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	s.metrics.RecordDispute()
	writeResult(w, req.ID, toEscrowResult(esc))
}

func (s *Server) handleEscrowResolve(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		TransactionID    string             `json:"transactionId"`
		QualityScore     uint8              `json:"qualityScore"`
		RefundPercentage uint8              `json:"refundPercentage"`
		Signature        string             `json:"signature"`
		Verifier         string             `json:"verifier"`
		Instructions     []instructionParam `json:"instructions"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	signature, err := parseSignature(params.Signature)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	verifier, err := parseKey32(params.Verifier)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	res, err := s.node.EscrowResolve(params.TransactionID, params.QualityScore, params.RefundPercentage, signature, verifier, toInstructions(params.Instructions))
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	s.metrics.RecordResolution("signature")
	writeResult(w, req.ID, toResolutionResult(res))
}

func (s *Server) handleEscrowResolveFeed(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		TransactionID    string `json:"transactionId"`
		QualityScore     uint8  `json:"qualityScore"`
		RefundPercentage uint8  `json:"refundPercentage"`
		Feed             struct {
			Key       string `json:"key"`
			Value     string `json:"value"`
			UpdatedAt int64  `json:"updatedAt"`
		} `json:"feed"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	key, err := parseKey32(params.Feed.Key)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	value, ok := new(big.Int).SetString(strings.TrimSpace(params.Feed.Value), 10)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "feed value must be a base-10 integer", nil)
		return
	}
	record := &oracle.FeedRecord{Feed: key, Value: value, UpdatedAt: params.Feed.UpdatedAt}
	res, err := s.node.EscrowResolveFeed(params.TransactionID, params.QualityScore, params.RefundPercentage, record)
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	s.metrics.RecordResolution("feed")
	writeResult(w, req.ID, toResolutionResult(res))
}

func (s *Server) handleEscrowResolveMultiOracle(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		TransactionID string `json:"transactionId"`
		Submissions   []struct {
			Oracle    string `json:"oracle"`
			Score     uint8  `json:"score"`
			Signature string `json:"signature"`
		} `json:"submissions"`
		Instructions []instructionParam `json:"instructions"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	submissions := make([]oracle.SubmissionInput, 0, len(params.Submissions))
	for _, sub := range params.Submissions {
		key, err := parseKey32(sub.Oracle)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
			return
		}
		signature, err := parseSignature(sub.Signature)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
			return
		}
		submissions = append(submissions, oracle.SubmissionInput{Oracle: key, Score: sub.Score, Signature: signature})
	}
	res, err := s.node.EscrowResolveMultiOracle(params.TransactionID, submissions, toInstructions(params.Instructions))
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	s.metrics.RecordResolution("consensus")
	writeResult(w, req.ID, toResolutionResult(res))
}

type agreementResult struct {
	TransactionID   string `json:"transactionId"`
	Query           string `json:"query"`
	RequiredFields  uint8  `json:"requiredFields"`
	MinRecords      uint32 `json:"minRecords"`
	MaxAgeDays      uint32 `json:"maxAgeDays"`
	MinQualityScore uint8  `json:"minQualityScore"`
	CreatedAt       int64  `json:"createdAt"`
}

func (s *Server) handleAgreementCreate(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		TransactionID   string `json:"transactionId"`
		Query           string `json:"query"`
		RequiredFields  uint8  `json:"requiredFields"`
		MinRecords      uint32 `json:"minRecords"`
		MaxAgeDays      uint32 `json:"maxAgeDays"`
		MinQualityScore uint8  `json:"minQualityScore"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	agreement := &escrow.WorkAgreement{
		TransactionID:   params.TransactionID,
		Query:           params.Query,
		RequiredFields:  params.RequiredFields,
		MinRecords:      params.MinRecords,
		MaxAgeDays:      params.MaxAgeDays,
		MinQualityScore: params.MinQualityScore,
	}
	if err := s.node.AgreementCreate(agreement); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, agreementResult{
		TransactionID:   agreement.TransactionID,
		Query:           agreement.Query,
		RequiredFields:  agreement.RequiredFields,
		MinRecords:      agreement.MinRecords,
		MaxAgeDays:      agreement.MaxAgeDays,
		MinQualityScore: agreement.MinQualityScore,
		CreatedAt:       agreement.CreatedAt,
	})
}

func (s *Server) handleAgreementGet(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		TransactionID string `json:"transactionId"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	agreement, ok, err := s.node.AgreementGet(params.TransactionID)
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeServerError, "agreement not found", nil)
		return
	}
	writeResult(w, req.ID, agreementResult{
		TransactionID:   agreement.TransactionID,
		Query:           agreement.Query,
		RequiredFields:  agreement.RequiredFields,
		MinRecords:      agreement.MinRecords,
		MaxAgeDays:      agreement.MaxAgeDays,
		MinQualityScore: agreement.MinQualityScore,
		CreatedAt:       agreement.CreatedAt,
	})
}

type penaltyResult struct {
	Provider           string `json:"provider"`
	StrikeCount        uint8  `json:"strikeCount"`
	Suspended          bool   `json:"suspended"`
	SuspensionEnd      int64  `json:"suspensionEnd"`
	TotalRefundsIssued string `json:"totalRefundsIssued"`
	PoorQualityCount   uint32 `json:"poorQualityCount"`
	CreatedAt          int64  `json:"createdAt"`
	LastUpdated        int64  `json:"lastUpdated"`
}

func (s *Server) handlePenaltyGet(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Provider string `json:"provider"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	provider, err := parseAddress(params.Provider)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	penalties, ok, err := s.node.PenaltyGet(provider)
	if err != nil {
		s.writeDomainError(w, req.ID, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeServerError, "no penalty record for provider", nil)
		return
	}
	writeResult(w, req.ID, penaltyResult{
		Provider:           formatAddress(penalties.Provider),
		StrikeCount:        penalties.StrikeCount,
		Suspended:          penalties.Suspended,
		SuspensionEnd:      penalties.SuspensionEnd,
		TotalRefundsIssued: penalties.TotalRefundsIssued.String(),
		PoorQualityCount:   penalties.PoorQualityCount,
		CreatedAt:          penalties.CreatedAt,
		LastUpdated:        penalties.LastUpdated,
	})
}

package restapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"governance_relayer/internal/app/port"
	"governance_relayer/internal/domain/entity"
	"governance_relayer/internal/pkg/utils"

	"github.com/gin-gonic/gin"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Relay endpoint names used in logs and metrics.
const (
	EndpointRelayer          = "relayer"
	EndpointEndVotingRelayer = "end-voting-relayer"
)

// APIRelayRequest is the body both relay endpoints accept. Numbers may be sent as JSON
// numbers or as decimal strings, since browsers read sequences as strings.
type APIRelayRequest struct {
	WormholeChainID jsoniter.RawMessage `json:"wormholeChainId"`
	EmitterAddress  string              `json:"emitterAddress"`
	Seq             jsoniter.RawMessage `json:"seq"`
	ContractType    string              `json:"contractType"`
}

// APIRelayResponse is returned on success.
type APIRelayResponse struct {
	TxHash string `json:"tx_hash"`
}

// APIErrorResponse is returned on failure.
type APIErrorResponse struct {
	Error string `json:"error"`
}

// RelayHandler serves the HTTP relay endpoints.
type RelayHandler struct {
	relayService port.RelayService
	metrics      port.Metrics
	logger       port.Logger
}

// NewRelayHandler creates a new RelayHandler.
func NewRelayHandler(rs port.RelayService, metrics port.Metrics, logger port.Logger) *RelayHandler {
	return &RelayHandler{
		relayService: rs,
		metrics:      metrics,
		logger:       logger,
	}
}

func parseUintField(raw jsoniter.RawMessage, name string, bitSize int) (uint64, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, errors.New(name + " is required")
	}
	s = strings.Trim(s, `"`)
	v, err := strconv.ParseUint(s, 10, bitSize)
	if err != nil {
		return 0, errors.New(name + " must be an unsigned integer")
	}
	return v, nil
}

// bindRelayRequest parses and validates the request body.
func bindRelayRequest(c *gin.Context) (entity.RelayRequest, error) {
	var req entity.RelayRequest

	raw, err := c.GetRawData()
	if err != nil {
		return req, errors.New("failed to read request body")
	}
	var body APIRelayRequest
	if err := json.Unmarshal(raw, &body); err != nil {
		return req, errors.New("request body must be a JSON object")
	}

	chainID, err := parseUintField(body.WormholeChainID, "wormholeChainId", 16)
	if err != nil {
		return req, err
	}
	seq, err := parseUintField(body.Seq, "seq", 64)
	if err != nil {
		return req, err
	}
	if strings.TrimSpace(body.EmitterAddress) == "" {
		return req, errors.New("emitterAddress is required")
	}
	emitter, err := utils.NormalizeEmitterHex(body.EmitterAddress)
	if err != nil {
		return req, err
	}
	role := entity.ContractRole(strings.ToLower(strings.TrimSpace(body.ContractType)))
	if !role.Valid() {
		return req, errors.New(`contractType must be "main" or "side"`)
	}

	return entity.RelayRequest{
		EmitterChainID: uint16(chainID),
		EmitterAddress: emitter,
		Sequence:       seq,
		ContractType:   role,
	}, nil
}

// statusFor maps a relay failure onto an HTTP status.
func statusFor(err error) int {
	if errors.Is(err, entity.ErrConfiguration) {
		return http.StatusInternalServerError
	}
	return http.StatusBadGateway
}

func (h *RelayHandler) serve(c *gin.Context, endpoint string, relay func(*gin.Context, entity.RelayRequest) (string, error)) {
	req, err := bindRelayRequest(c)
	if err != nil {
		h.metrics.RelayRequest(endpoint, err)
		c.JSON(http.StatusBadRequest, APIErrorResponse{Error: err.Error()})
		return
	}

	h.logger.Info("Relay request received", "endpoint", endpoint, "key", req.Key().String(), "contract_type", req.ContractType)
	txHash, err := relay(c, req)
	h.metrics.RelayRequest(endpoint, err)
	if err != nil {
		h.logger.Error("Relay request failed", "endpoint", endpoint, "key", req.Key().String(), "error", err)
		c.JSON(statusFor(err), APIErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, APIRelayResponse{TxHash: txHash})
}

// RelayHandler carries one attestation to the counterpart network.
func (h *RelayHandler) RelayHandler(c *gin.Context) {
	h.serve(c, EndpointRelayer, func(c *gin.Context, req entity.RelayRequest) (string, error) {
		return h.relayService.Relay(c.Request.Context(), req)
	})
}

// EndVotingRelayHandler carries an end-of-voting attestation across and the tally back.
func (h *RelayHandler) EndVotingRelayHandler(c *gin.Context) {
	h.serve(c, EndpointEndVotingRelayer, func(c *gin.Context, req entity.RelayRequest) (string, error) {
		return h.relayService.RelayEndOfVoting(c.Request.Context(), req)
	})
}

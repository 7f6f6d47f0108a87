package restapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"governance_relayer/internal/domain/entity"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const emitterHex = "000000000000000000000000c89ce4735882c9f0f0fe26686c53074e09b0d550"

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

type mockRelayService struct {
	mock.Mock
}

func (m *mockRelayService) Relay(ctx context.Context, req entity.RelayRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockRelayService) RelayEndOfVoting(ctx context.Context, req entity.RelayRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

type recordedRelay struct {
	endpoint string
	err      error
}

type recordingMetrics struct {
	relays []recordedRelay
}

func (m *recordingMetrics) ActionCompleted(string, error)            {}
func (m *recordingMetrics) AttestationFetched(string, time.Duration) {}
func (m *recordingMetrics) PendingAttestations(string, int)          {}
func (m *recordingMetrics) RelayRequest(endpoint string, err error) {
	m.relays = append(m.relays, recordedRelay{endpoint: endpoint, err: err})
}

func newTestRouter(t *testing.T) (*gin.Engine, *mockRelayService, *recordingMetrics) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := &mockRelayService{}
	metrics := &recordingMetrics{}
	handler := NewRelayHandler(svc, metrics, nopLogger{})
	return SetupRouter(handler, RouterOptions{}), svc, metrics
}

func post(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestRelayHandler_Success(t *testing.T) {
	router, svc, metrics := newTestRouter(t)
	want := entity.RelayRequest{
		EmitterChainID: 6,
		EmitterAddress: emitterHex,
		Sequence:       12,
		ContractType:   entity.RoleMain,
	}
	svc.On("Relay", mock.Anything, want).Return("0xabc", nil).Once()

	w := post(router, "/api/v1/relayer",
		`{"wormholeChainId":6,"emitterAddress":"0x`+emitterHex+`","seq":"12","contractType":"main"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"tx_hash":"0xabc"}`, w.Body.String())
	svc.AssertExpectations(t)
	require.Len(t, metrics.relays, 1)
	assert.Equal(t, EndpointRelayer, metrics.relays[0].endpoint)
	assert.NoError(t, metrics.relays[0].err)
}

func TestRelayHandler_AcceptsEVMEmitterAndStringChainID(t *testing.T) {
	router, svc, _ := newTestRouter(t)
	svc.On("Relay", mock.Anything, mock.MatchedBy(func(req entity.RelayRequest) bool {
		return req.EmitterChainID == 2 && req.EmitterAddress == emitterHex && req.ContractType == entity.RoleSide
	})).Return("0xdef", nil).Once()

	w := post(router, "/api/v1/relayer",
		`{"wormholeChainId":"2","emitterAddress":"0xC89Ce4735882C9F0f0FE26686c53074E09B0D550","seq":3,"contractType":"SIDE"}`)

	require.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestRelayHandler_BadRequests(t *testing.T) {
	cases := map[string]string{
		"not json":          `seq=1`,
		"missing chain":     `{"emitterAddress":"` + emitterHex + `","seq":1,"contractType":"main"}`,
		"chain overflow":    `{"wormholeChainId":70000,"emitterAddress":"` + emitterHex + `","seq":1,"contractType":"main"}`,
		"missing seq":       `{"wormholeChainId":6,"emitterAddress":"` + emitterHex + `","contractType":"main"}`,
		"negative seq":      `{"wormholeChainId":6,"emitterAddress":"` + emitterHex + `","seq":-1,"contractType":"main"}`,
		"missing emitter":   `{"wormholeChainId":6,"seq":1,"contractType":"main"}`,
		"short emitter":     `{"wormholeChainId":6,"emitterAddress":"0x1234","seq":1,"contractType":"main"}`,
		"bad contract type": `{"wormholeChainId":6,"emitterAddress":"` + emitterHex + `","seq":1,"contractType":"other"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			router, svc, metrics := newTestRouter(t)

			w := post(router, "/api/v1/relayer", body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), `"error"`)
			svc.AssertNotCalled(t, "Relay", mock.Anything, mock.Anything)
			require.Len(t, metrics.relays, 1)
			assert.Error(t, metrics.relays[0].err)
		})
	}
}

func TestRelayHandler_FailureStatuses(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("%w: network side has no deployed contract", entity.ErrConfiguration), http.StatusInternalServerError},
		{fmt.Errorf("%w: after 3 attempts", entity.ErrTimedOut), http.StatusBadGateway},
		{&entity.ChainError{Network: "side", Kind: entity.ErrChainReverted, Err: errors.New("already executed")}, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			router, svc, metrics := newTestRouter(t)
			svc.On("RelayEndOfVoting", mock.Anything, mock.Anything).Return("", tc.err).Once()

			w := post(router, "/api/v1/end-voting-relayer",
				`{"wormholeChainId":6,"emitterAddress":"`+emitterHex+`","seq":1,"contractType":"main"}`)

			assert.Equal(t, tc.code, w.Code)
			assert.Contains(t, w.Body.String(), `"error"`)
			require.Len(t, metrics.relays, 1)
			assert.Equal(t, EndpointEndVotingRelayer, metrics.relays[0].endpoint)
			assert.ErrorIs(t, metrics.relays[0].err, tc.err)
		})
	}
}

func TestSetupRouter_OptionalRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewRelayHandler(&mockRelayService{}, &recordingMetrics{}, nopLogger{})
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("metrics"))
	})

	router := SetupRouter(handler, RouterOptions{MetricsHandler: metricsHandler, MetricsPath: "/metrics"})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "metrics", w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil))
	assert.Equal(t, http.StatusNotFound, w.Code, "swagger is off without a spec path")
}

package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tokensale/internal/config"
	"tokensale/internal/infrastructure/database"
	"tokensale/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testOwner = "0x0000000000000000000000000000000000000001"
	testAdmin = "0x0000000000000000000000000000000000000002"
	testUser  = "0x0000000000000000000000000000000000000011"
)

func testRouter(t *testing.T) *gin.Engine {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Discard,
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	cfg := &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{TokenEvents: "token-events", SaleEvents: "sale-events"},
		},
		Token: config.TokenConfig{
			Name: "Test Token", Symbol: "TT", Decimals: 18,
			TotalSupply: "1000000", OwnerAddress: testOwner, AdminAddress: testAdmin,
			SaleAllocation: "100000",
		},
		Sale: config.SaleConfig{
			Rate: 1000, DurationHours: 24, HardCap: "10",
			MinContribution: "1", ParticipantCap: "5",
			Beneficiary:  "0x0000000000000000000000000000000000000003",
			OwnerAddress: testOwner,
			SaleAddress:  "0x0000000000000000000000000000000000000004",
		},
	}
	require.NoError(t, database.Seed(db, cfg))

	return SetupRouter(db, nil, cfg)
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, *response.Response) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var envelope response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return w, &envelope
}

func TestHealthEndpoint(t *testing.T) {
	r := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestTokenInfoEndpoint(t *testing.T) {
	r := testRouter(t)

	w, envelope := doJSON(t, r, http.MethodGet, "/api/v1/token/info", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.CodeSuccess, envelope.Code)

	data := envelope.Data.(map[string]interface{})
	assert.Equal(t, "TT", data["symbol"])
	assert.Equal(t, "1000000", data["total_supply"])
	assert.Equal(t, false, data["transfers_enabled"])
}

func TestTransferEndpoint(t *testing.T) {
	r := testRouter(t)

	_, envelope := doJSON(t, r, http.MethodPost, "/api/v1/token/transfer", gin.H{
		"caller": testAdmin,
		"to":     testUser,
		"value":  "500",
	})
	assert.Equal(t, response.CodeSuccess, envelope.Code)

	_, envelope = doJSON(t, r, http.MethodGet, "/api/v1/token/balance?address="+testUser, nil)
	assert.Equal(t, response.CodeSuccess, envelope.Code)
	data := envelope.Data.(map[string]interface{})
	assert.Equal(t, "500", data["balance"])
}

func TestTransferEndpoint_GateBlocksOrdinaryHolder(t *testing.T) {
	r := testRouter(t)

	doJSON(t, r, http.MethodPost, "/api/v1/token/transfer", gin.H{
		"caller": testAdmin, "to": testUser, "value": "500",
	})

	// 普通持有者在转账开启前被业务码拒绝
	_, envelope := doJSON(t, r, http.MethodPost, "/api/v1/token/transfer", gin.H{
		"caller": testUser,
		"to":     "0x0000000000000000000000000000000000000012",
		"value":  "100",
	})
	assert.Equal(t, response.CodeTransfersDisabled, envelope.Code)
}

func TestTransferEndpoint_ParamValidation(t *testing.T) {
	r := testRouter(t)

	_, envelope := doJSON(t, r, http.MethodPost, "/api/v1/token/transfer", gin.H{
		"caller": testAdmin,
	})
	assert.Equal(t, response.CodeParamError, envelope.Code)
}

func TestSaleInfoEndpoint(t *testing.T) {
	r := testRouter(t)

	_, envelope := doJSON(t, r, http.MethodGet, "/api/v1/sale/info", nil)
	assert.Equal(t, response.CodeSuccess, envelope.Code)

	data := envelope.Data.(map[string]interface{})
	assert.Equal(t, "SETUP", data["stage"])
	assert.Equal(t, "10", data["hard_cap"])
}

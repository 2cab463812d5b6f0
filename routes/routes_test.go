package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bookmarket_go/config"
	"bookmarket_go/controllers"
	"bookmarket_go/locker"
	"bookmarket_go/models"
	"bookmarket_go/services"
	"bookmarket_go/store"
	"bookmarket_go/testutil"
	"bookmarket_go/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	botKey  = "bot-secret"
	adminID = int64(900)
)

type staticCatalog map[string]models.Book

func (s staticCatalog) Lookup(_ context.Context, isbn string) (models.Book, bool) {
	b, ok := s[isbn]
	return b, ok
}

type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Signal  string          `json:"signal"`
	Data    json.RawMessage `json:"data"`
}

type api struct {
	t      *testing.T
	router *gin.Engine
	db     *gorm.DB
}

func newAPI(t *testing.T) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hash, err := bcrypt.GenerateFromPassword([]byte(botKey), bcrypt.MinCost)
	require.NoError(t, err)

	db := testutil.NewTestDB(t)
	_, rdb := testutil.NewTestRedis(t)
	gw := store.NewGateway(db)
	locks := locker.NewMemoryLocker()
	cat := staticCatalog{
		"9788864201795": {ISBN: "9788864201795", Title: "Fisica 1", Authors: "Mazzoldi"},
	}

	resolver := services.NewResolver(gw, cat)
	listings := services.NewListingService(gw, locks, rdb)
	requests := services.NewRequestService(gw, listings, locks, services.NewStreamNotifier(rdb, ""))
	jwtService := config.NewJWTService(&config.JWTConfig{SecretKey: "api", ExpirationTime: time.Hour, Issuer: "bookmarket"})

	r := gin.New()
	SetupRoutes(r, &Handlers{
		JWT:      jwtService,
		Auth:     controllers.NewAuthController(jwtService, string(hash), []int64{adminID}, time.Hour),
		Market:   controllers.NewMarketController(services.NewSellService(resolver, listings), listings, resolver),
		Requests: controllers.NewRequestController(requests, rdb, 3, time.Hour),
	})

	return &api{t: t, router: r, db: db}
}

func (a *api) do(method, path, token string, body any) (int, apiResponse) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	var resp apiResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec.Code, resp
}

func (a *api) token(userID int64, username string) string {
	a.t.Helper()
	status, resp := a.do(http.MethodPost, "/api/auth/token", "", gin.H{
		"api_key": botKey, "user_id": userID, "username": username,
	})
	require.Equal(a.t, http.StatusOK, status)
	var out controllers.TokenResponse
	require.NoError(a.t, json.Unmarshal(resp.Data, &out))
	return out.Token
}

func TestIssueTokenChecksBotKey(t *testing.T) {
	a := newAPI(t)

	status, _ := a.do(http.MethodPost, "/api/auth/token", "", gin.H{"api_key": "wrong", "user_id": 1})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, resp := a.do(http.MethodPost, "/api/auth/token", "", gin.H{"api_key": botKey, "user_id": adminID, "username": "boss"})
	require.Equal(t, http.StatusOK, status)
	var out controllers.TokenResponse
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	assert.Contains(t, out.Roles, config.RoleAdmin)
	assert.Equal(t, int64(3600), out.ExpiresIn)
}

func TestSellFlow(t *testing.T) {
	a := newAPI(t)
	tok := a.token(1, "anna_b")

	status, resp := a.do(http.MethodPost, "/api/sell", tok, gin.H{"isbn": "9788864201795", "price": "12,5"})
	require.Equal(t, http.StatusOK, status, resp.Message)
	assert.Equal(t, string(services.SignalListed), resp.Signal)

	var out services.SellResult
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	assert.Equal(t, services.SignalFoundExternal, out.Resolution.Signal)
	require.NotNil(t, out.Listing)
	assert.Equal(t, 12.50, out.Listing.Price)

	status, resp = a.do(http.MethodGet, "/api/listings/mine", tok, nil)
	require.Equal(t, http.StatusOK, status)
	var mine []models.Listing
	require.NoError(t, json.Unmarshal(resp.Data, &mine))
	require.Len(t, mine, 1)

	status, resp = a.do(http.MethodGet, "/api/listings/search?q=fisica", tok, nil)
	require.Equal(t, http.StatusOK, status)
	var found []models.Listing
	require.NoError(t, json.Unmarshal(resp.Data, &found))
	assert.Len(t, found, 1)

	status, resp = a.do(http.MethodGet, "/api/listings/search/hot", tok, nil)
	require.Equal(t, http.StatusOK, status)
	var hot []string
	require.NoError(t, json.Unmarshal(resp.Data, &hot))
	assert.Equal(t, []string{"fisica"}, hot)

	other := a.token(2, "bruno_c")
	status, resp = a.do(http.MethodDelete, fmt.Sprintf("/api/listings/%d", mine[0].ID), other, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, string(services.SignalNotOwner), resp.Signal)

	status, resp = a.do(http.MethodDelete, fmt.Sprintf("/api/listings/%d", mine[0].ID), tok, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, string(services.SignalDeleted), resp.Signal)
}

func TestSellSignals(t *testing.T) {
	a := newAPI(t)
	tok := a.token(1, "anna_b")

	tests := []struct {
		name   string
		token  string
		body   gin.H
		status int
		signal services.Signal
	}{
		{"bad isbn", tok, gin.H{"isbn": "12345", "price": "3"}, http.StatusUnprocessableEntity, services.SignalInvalidIdentifier},
		{"bad price", tok, gin.H{"isbn": "9788864201795", "price": "3.999"}, http.StatusUnprocessableEntity, services.SignalInvalidPrice},
		{"unresolvable", tok, gin.H{"isbn": "9788891296566", "price": "3"}, http.StatusNotFound, services.SignalUnresolvable},
		{"no username", a.token(3, ""), gin.H{"isbn": "9788864201795", "price": "3"}, http.StatusUnprocessableEntity, services.SignalUsernameRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := a.do(http.MethodPost, "/api/sell", tt.token, tt.body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, string(tt.signal), resp.Signal)
		})
	}

	status, _ := a.do(http.MethodPost, "/api/sell", "", gin.H{"isbn": "9788864201795", "price": "3"})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestResolveEndpoint(t *testing.T) {
	a := newAPI(t)
	tok := a.token(1, "anna_b")

	status, resp := a.do(http.MethodGet, "/api/books/9788864201795/resolve", tok, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, string(services.SignalFoundExternal), resp.Signal)

	status, resp = a.do(http.MethodGet, "/api/books/97888/resolve", tok, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, string(services.SignalInvalidIdentifier), resp.Signal)
}

func TestRequestWorkflowOverHTTP(t *testing.T) {
	a := newAPI(t)
	first := a.token(1, "anna_b")
	second := a.token(2, "bruno_c")
	admin := a.token(adminID, "boss")

	body := gin.H{"isbn": "9788891296566", "price": "5,50", "title": "Lezioni", "authors": "Rossi"}
	status, resp := a.do(http.MethodPost, "/api/requests", first, body)
	require.Equal(t, http.StatusOK, status, resp.Message)
	assert.Equal(t, string(services.SignalRequestSubmitted), resp.Signal)
	var req models.BookRequest
	require.NoError(t, json.Unmarshal(resp.Data, &req))

	status, resp = a.do(http.MethodPost, "/api/requests", first, body)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, string(services.SignalDuplicateRequest), resp.Signal)

	body["price"] = "6"
	status, _ = a.do(http.MethodPost, "/api/requests", second, body)
	require.Equal(t, http.StatusOK, status)

	status, _ = a.do(http.MethodGet, "/api/admin/requests", first, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, resp = a.do(http.MethodGet, "/api/admin/requests?isbn=9788891296566", admin, nil)
	require.Equal(t, http.StatusOK, status)
	var pending []models.BookRequest
	require.NoError(t, json.Unmarshal(resp.Data, &pending))
	assert.Len(t, pending, 2)

	status, resp = a.do(http.MethodPost, "/api/admin/requests/"+req.ID+"/approve", admin, nil)
	require.Equal(t, http.StatusOK, status, resp.Message)
	assert.Equal(t, string(services.SignalRequestFulfilled), resp.Signal)
	var report services.ApprovalReport
	require.NoError(t, json.Unmarshal(resp.Data, &report))
	assert.Equal(t, "5.50", report.Listing.PriceText())
	require.Len(t, report.Cascaded, 1)
	assert.Equal(t, 6.0, report.Cascaded[0].Listing.Price)

	status, resp = a.do(http.MethodPost, "/api/admin/requests/"+req.ID+"/decline", admin, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, string(services.SignalNotPending), resp.Signal)

	status, resp = a.do(http.MethodPost, "/api/requests", a.token(3, "carla_d"), body)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, string(services.SignalAlreadyPresent), resp.Signal)

	status, resp = a.do(http.MethodPost, "/api/admin/requests/missing/approve", admin, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, string(services.SignalNotFound), resp.Signal)
}

func TestSubmitIsRateLimited(t *testing.T) {
	a := newAPI(t)
	tok := a.token(1, "anna_b")

	for i := 0; i < 3; i++ {
		isbn := []string{"9788891296566", "0306406152", "3161482948"}[i]
		status, resp := a.do(http.MethodPost, "/api/requests", tok, gin.H{"isbn": isbn, "price": "2", "title": "x"})
		require.Equal(t, http.StatusOK, status, resp.Message)
	}

	status, resp := a.do(http.MethodPost, "/api/requests", tok, gin.H{"isbn": "9783161482946", "price": "2", "title": "x"})
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, utils.CodeTooManyRequests, resp.Code)
}

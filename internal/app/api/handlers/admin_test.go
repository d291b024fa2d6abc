package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/netvend/hotspot/internal/app/service/catalog"
	"github.com/netvend/hotspot/internal/app/service/voucher"
	"github.com/netvend/hotspot/internal/models"
	"github.com/netvend/hotspot/pkg/config"
	"github.com/netvend/hotspot/pkg/response"
)

type noopProfiles struct{}

func (noopProfiles) EnsureProfile(context.Context, catalog.ProfileRequest) error { return nil }
func (noopProfiles) RemoveProfile(context.Context, string) error                 { return nil }

type noopVoucherController struct{}

func (noopVoucherController) CreateVoucherUser(context.Context, string, string, string, time.Duration) error {
	return nil
}

type adminFixture struct {
	cfg    *config.Config
	engine *gin.Engine
	db     *gorm.DB
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Admin.Username = "admin"
	cfg.Admin.PasswordHash = string(hash)
	cfg.Admin.JWTSecret = "test-secret"
	cfg.Admin.TokenTTL = time.Hour

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Plan{}))

	log := zap.NewNop().Sugar()
	cat := catalog.NewService(db, log, noopProfiles{})
	vch := voucher.NewService(log, cat, noopVoucherController{})

	r := gin.New()
	RegisterAdminRoutes(r.Group("/api/v1/admin"), cfg, cat, vch)
	return &adminFixture{cfg: cfg, engine: r, db: db}
}

func (fx *adminFixture) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	fx.engine.ServeHTTP(w, req)
	return w
}

func (fx *adminFixture) login(t *testing.T) string {
	t.Helper()
	w := fx.do(http.MethodPost, "/api/v1/admin/login", "", gin.H{"username": "admin", "password": "hunter2"})
	require.Equal(t, http.StatusOK, w.Code)

	var env response.APIResponse[adminLoginResp]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.Equal(t, response.APIResponseCodeOK, env.Code)
	require.NotEmpty(t, env.Data.Token)
	return env.Data.Token
}

func TestAdminLoginRejectsBadCredentials(t *testing.T) {
	fx := newAdminFixture(t)

	w := fx.do(http.MethodPost, "/api/v1/admin/login", "", gin.H{"username": "admin", "password": "wrong"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = fx.do(http.MethodPost, "/api/v1/admin/login", "", gin.H{"username": "eve", "password": "hunter2"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	fx := newAdminFixture(t)

	w := fx.do(http.MethodGet, "/api/v1/admin/plans", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = fx.do(http.MethodGet, "/api/v1/admin/plans", "garbage-token", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminPlanCRUD(t *testing.T) {
	fx := newAdminFixture(t)
	token := fx.login(t)

	w := fx.do(http.MethodPost, "/api/v1/admin/plans", token, gin.H{
		"name": "1 hora", "price_cents": 500, "profile_name": "1h-basic",
		"duration_hours": 1, "is_active": true,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var saved response.APIResponse[models.Plan]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &saved))
	require.Equal(t, response.APIResponseCodeOK, saved.Code)
	require.NotZero(t, saved.Data.ID)

	w = fx.do(http.MethodGet, "/api/v1/admin/plans", token, nil)
	var listed response.APIResponse[[]models.Plan]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed.Data, 1)

	w = fx.do(http.MethodDelete, "/api/v1/admin/plans/"+strconv.FormatUint(uint64(saved.Data.ID), 10), token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = fx.do(http.MethodGet, "/api/v1/admin/plans", token, nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Empty(t, listed.Data)
}

func TestAdminSavePlanValidation(t *testing.T) {
	fx := newAdminFixture(t)
	token := fx.login(t)

	w := fx.do(http.MethodPost, "/api/v1/admin/plans", token, gin.H{"name": "broken"})
	var env response.APIResponse[json.RawMessage]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.Equal(t, response.APIResponseCodeBadRequest, env.Code)
}

func TestAdminGenerateVouchers(t *testing.T) {
	fx := newAdminFixture(t)
	token := fx.login(t)

	w := fx.do(http.MethodPost, "/api/v1/admin/plans", token, gin.H{
		"name": "1 hora", "price_cents": 500, "profile_name": "1h-basic",
		"duration_hours": 1, "is_active": true,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = fx.do(http.MethodPost, "/api/v1/admin/vouchers", token, gin.H{"profile": "1h-basic", "count": 3})
	var env response.APIResponse[generateVouchersResp]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.Equal(t, response.APIResponseCodeOK, env.Code)
	require.Len(t, env.Data.Codes, 3)

	// unknown profile
	w = fx.do(http.MethodPost, "/api/v1/admin/vouchers", token, gin.H{"profile": "ghost", "count": 3})
	var fail response.APIResponse[json.RawMessage]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fail))
	require.Equal(t, response.APIResponseCodeNotFound, fail.Code)
}

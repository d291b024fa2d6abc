package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/netvend/hotspot/internal/app/api/middleware"
	"github.com/netvend/hotspot/internal/app/service/catalog"
	"github.com/netvend/hotspot/internal/app/service/voucher"
	"github.com/netvend/hotspot/internal/models"
	"github.com/netvend/hotspot/pkg/config"
	"github.com/netvend/hotspot/pkg/response"
)

type adminLoginReq struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type adminLoginResp struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func ApiAdminLogin(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req adminLoginReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(cfg.Admin.Username)) == 1
		passErr := bcrypt.CompareHashAndPassword([]byte(cfg.Admin.PasswordHash), []byte(req.Password))
		if !userOK || passErr != nil {
			c.JSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeUnauthorized, "invalid credentials"))
			return
		}

		expiresAt := time.Now().Add(cfg.Admin.TokenTTL)
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": cfg.Admin.Username,
			"iat": time.Now().Unix(),
			"exp": expiresAt.Unix(),
		})
		signed, err := token.SignedString([]byte(cfg.Admin.JWTSecret))
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(adminLoginResp{Token: signed, ExpiresAt: expiresAt}))
	}
}

func ApiAdminListPlans(cat *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		plans, err := cat.List(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(plans))
	}
}

type savePlanReq struct {
	ID            uint   `json:"id"`
	Name          string `json:"name" binding:"required"`
	PriceCents    int64  `json:"price_cents"`
	ProfileName   string `json:"profile_name" binding:"required"`
	DurationHours int64  `json:"duration_hours" binding:"required"`
	RateLimitUp   string `json:"rate_limit_up"`
	RateLimitDown string `json:"rate_limit_down"`
	IsActive      bool   `json:"is_active"`
}

func ApiAdminSavePlan(cat *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req savePlanReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		plan := &models.Plan{
			ID:            req.ID,
			Name:          req.Name,
			PriceCents:    req.PriceCents,
			ProfileName:   req.ProfileName,
			DurationHours: req.DurationHours,
			RateLimitUp:   req.RateLimitUp,
			RateLimitDown: req.RateLimitDown,
			IsActive:      req.IsActive,
		}
		if err := cat.Save(c.Request.Context(), plan); err != nil {
			if errors.Is(err, catalog.ErrInvalid) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(plan))
	}
}

func ApiAdminDeletePlan(cat *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "invalid plan id"))
			return
		}
		if err := cat.Delete(c.Request.Context(), uint(id)); err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, err.Error()))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

type generateVouchersReq struct {
	Profile string `json:"profile" binding:"required"`
	Count   int    `json:"count" binding:"required"`
}

type generateVouchersResp struct {
	Codes []string `json:"codes"`
}

func ApiAdminGenerateVouchers(v *voucher.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req generateVouchersReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		codes, err := v.Generate(c.Request.Context(), voucher.GenerateRequest{Profile: req.Profile, Count: req.Count})
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, err.Error()))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(generateVouchersResp{Codes: codes}))
	}
}

func RegisterAdminRoutes(r gin.IRouter, cfg *config.Config, cat *catalog.Service, v *voucher.Service) {
	r.POST("/login", ApiAdminLogin(cfg))

	protected := r.Group("/")
	protected.Use(middleware.AdminAuthMiddleware(cfg))
	protected.GET("/plans", ApiAdminListPlans(cat))
	protected.POST("/plans", ApiAdminSavePlan(cat))
	protected.DELETE("/plans/:id", ApiAdminDeletePlan(cat))
	protected.POST("/vouchers", ApiAdminGenerateVouchers(v))
}

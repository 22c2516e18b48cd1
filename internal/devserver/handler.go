package devserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-login/internal/devotp"
	"chat-login/internal/telemetry"
)

const devOTPNote = "DEV MODE ONLY"

// RouterOptions selects optional routes.
type RouterOptions struct {
	// DevOTP exposes GET /dev/otp. Never enable in production.
	DevOTP bool
}

type sendOTPRequest struct {
	PhoneNumber string `json:"phoneNumber" binding:"required"`
}

type verifyOTPRequest struct {
	PhoneNumber string `json:"phoneNumber" binding:"required"`
	Code        string `json:"code" binding:"required"`
}

type verifyOTPResponse struct {
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expiresAt"`
	SessionID   string    `json:"sessionId"`
	PhoneNumber string    `json:"phoneNumber"`
}

type handler struct {
	svc *Service
	log *zap.Logger
}

// NewRouter returns the gin engine serving the OTP endpoints.
func NewRouter(svc *Service, log *zap.Logger, opts RouterOptions) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}
	h := &handler{svc: svc, log: log}

	r := gin.New()
	r.Use(Recovery(log), RequestLogger(log))

	r.GET("/health", h.health)
	user := r.Group("/user")
	user.POST("/send-otp", h.sendOTP)
	user.POST("/verify-otp", h.verifyOTP)
	if opts.DevOTP {
		r.GET("/dev/otp", h.devOTP)
	}
	return r
}

func (h *handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.svc.Ping(ctx); err != nil {
		h.log.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handler) sendOTP(c *gin.Context) {
	var req sendOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "phoneNumber is required"})
		return
	}
	res, err := h.svc.SendOTP(c.Request.Context(), req.PhoneNumber)
	if err != nil {
		_ = c.Error(err)
		if errors.Is(err, ErrDelivery) {
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to send OTP"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	if res.WaitSeconds > 0 {
		c.JSON(http.StatusOK, gin.H{
			"waitTime": res.WaitSeconds,
			"msg":      fmt.Sprintf("Try again in %ds", res.WaitSeconds),
		})
		return
	}
	h.log.Info("otp sent", zap.String("phone", telemetry.MaskPhone(req.PhoneNumber)))
	c.JSON(http.StatusOK, gin.H{"msg": "OTP sent"})
}

func (h *handler) verifyOTP(c *gin.Context) {
	var req verifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "phoneNumber and code are required"})
		return
	}
	sess, err := h.svc.VerifyOTP(c.Request.Context(), req.PhoneNumber, req.Code)
	switch {
	case err == nil:
	case errors.Is(err, ErrCodeNotFound), errors.Is(err, ErrInvalidCode):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired code"})
		return
	case errors.Is(err, ErrTooManyAttempts):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many attempts, request a new code"})
		return
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, verifyOTPResponse{
		Token:       sess.Token,
		ExpiresAt:   sess.ExpiresAt,
		SessionID:   sess.ID,
		PhoneNumber: sess.Phone,
	})
}

func (h *handler) devOTP(c *gin.Context) {
	phone := c.Query("phoneNumber")
	if phone == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "phoneNumber is required"})
		return
	}
	code, err := h.svc.DevOTP(c.Request.Context(), phone)
	if errors.Is(err, devotp.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "OTP not found or expired"})
		return
	}
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"otp": code, "note": devOTPNote})
}

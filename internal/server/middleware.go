package server

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	devicedomain "github.com/tidewatch/aquameter/internal/device/domain"
	"github.com/tidewatch/aquameter/internal/identity"
	"go.uber.org/zap"
)

const (
	HeaderAPIKey    = "X-API-Key"
	HeaderRequestID = "X-Request-ID"

	contextDeviceKey = "device"
	contextOwnerKey  = "owner"
)

// RequestLogger logs one line per request and tags it with a request id.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http.request")
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(HeaderRequestID, requestID)

		start := time.Now()
		c.Next()

		log.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// DeviceKeyRequired authenticates a meter by its API key header and puts
// the device on the context. Missing, unknown and deactivated keys are
// all rejected identically.
func (s *Server) DeviceKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		rawKey := strings.TrimSpace(c.GetHeader(HeaderAPIKey))
		device, err := s.pipeline.Authenticate(c.Request.Context(), rawKey)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextDeviceKey, device)
		c.Next()
	}
}

// OwnerRequired authenticates the read-side endpoints with a bearer token.
func (s *Server) OwnerRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		parts := strings.Fields(header)
		if len(parts) != 2 || parts[0] != "Bearer" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		owner, err := s.owners.ResolveToken(c.Request.Context(), parts[1])
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextOwnerKey, owner)
		c.Next()
	}
}

// IngestRateLimit throttles per-device submissions. The limiter is
// optional; without redis every request passes.
func (s *Server) IngestRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.ingestLimiter.Enabled() {
			c.Next()
			return
		}

		device := deviceFromContext(c)
		if device == nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		allowed, err := s.ingestLimiter.AllowDevice(c.Request.Context(), device.DeviceID)
		if err != nil {
			s.log.Warn("ingest rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !allowed {
			AbortWithError(c, ErrTooManyRequests)
			return
		}

		c.Next()
	}
}

func deviceFromContext(c *gin.Context) *devicedomain.Device {
	value, ok := c.Get(contextDeviceKey)
	if !ok {
		return nil
	}
	device, ok := value.(*devicedomain.Device)
	if !ok {
		return nil
	}
	return device
}

func ownerFromContext(c *gin.Context) *identity.Owner {
	value, ok := c.Get(contextOwnerKey)
	if !ok {
		return nil
	}
	owner, ok := value.(*identity.Owner)
	if !ok {
		return nil
	}
	return owner
}

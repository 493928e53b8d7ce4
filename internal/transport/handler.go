package transport

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go-vehicle-counter/internal/bridge"
	"go-vehicle-counter/internal/config"
	apperrors "go-vehicle-counter/internal/errors"
	"go-vehicle-counter/internal/logger"
	"go-vehicle-counter/internal/observer"
	"go-vehicle-counter/internal/service"
	"go-vehicle-counter/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// StatsProvider exposes capability executor counters
type StatsProvider interface {
	Stats() bridge.Stats
}

// Options carries what the handler reports besides the pipeline itself
type Options struct {
	Config     *config.Config
	Metrics    *observer.MetricsObserver
	Executor   StatsProvider
	Backend    string
	Strategies []string
}

func NewHandler(svc service.CountingService, opts Options) http.Handler {
	r := gin.Default()

	// Add middleware
	r.Use(
		requestSizeLimiter(opts.Config.MaxRequestBodySize),
		errorHandler(),
	)

	// Configure routes
	r.GET("/health", healthCheck(opts))

	v1 := r.Group("/v1")
	v1.GET("/metrics", metrics(opts))
	v1.POST("/count/diff", countDiff(svc, opts.Config))
	v1.POST("/count/haar", singleImage(svc.CountHaar, "haar_cascade", opts.Config))
	v1.POST("/transform", singleImage(svc.Equalize, "equalize", opts.Config))

	return r
}

func countDiff(svc service.CountingService, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.DiffCountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, apperrors.NewValidationError("invalid request format", err))
			return
		}

		logRequest(c, "diff_connect")
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		resp, err := svc.CountDiff(ctx, req.First, req.Second)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

type singleImageFunc func(ctx context.Context, image string) (*models.CountResponse, error)

func singleImage(run singleImageFunc, strategy string, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SingleImageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, apperrors.NewValidationError("invalid request format", err))
			return
		}

		logRequest(c, strategy)
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		resp, err := run(ctx, req.Image)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func logRequest(c *gin.Context, strategy string) {
	logger.WithFields(logrus.Fields{
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
		"user_agent": c.Request.UserAgent(),
		"ip":         c.ClientIP(),
		"strategy":   strategy,
	}).Info("Processing counting request")
}

func healthCheck(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.HealthResponse{
			Status:     "available",
			Backend:    opts.Backend,
			DataDir:    opts.Config.DataDir,
			Strategies: opts.Strategies,
		})
	}
}

func metrics(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{"time": time.Now().UTC().Format(time.RFC3339)}
		if opts.Metrics != nil {
			body["pipeline"] = opts.Metrics.Snapshot()
		}
		if opts.Executor != nil {
			body["executor"] = opts.Executor.Stats()
		}
		c.JSON(http.StatusOK, body)
	}
}

// Middleware and helper functions
func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			respondError(c, c.Errors.Last().Err)
		}
	}
}

func determineStatusCode(err error) int {
	if appErr, ok := apperrors.As(err); ok {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the error body. It never includes an image.
func respondError(c *gin.Context, err error) {
	code := determineStatusCode(err)
	errType := apperrors.TypeOf(err)

	logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"error_type":  errType,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	}).Error("Request failed")

	c.AbortWithStatusJSON(code, models.ErrorResponse{
		Error:   http.StatusText(code),
		Type:    string(errType),
		Message: err.Error(),
	})
}

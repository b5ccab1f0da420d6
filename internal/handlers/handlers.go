package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/example/neuroscan/internal/auth"
	"github.com/example/neuroscan/internal/classifier"
	"github.com/example/neuroscan/internal/repository"
	"github.com/example/neuroscan/internal/usecase"
)

// MaxUploadSize caps scan uploads at 10 MiB.
const MaxUploadSize = 10 << 20

// predictTimeout bounds one inference request end to end.
const predictTimeout = 30 * time.Second

// supportedExtensions is the upload allow-list; anything else is refused
// before the pipeline sees a byte.
var supportedExtensions = map[string]struct{}{
	"png": {}, "jpg": {}, "jpeg": {}, "gif": {}, "bmp": {}, "tiff": {},
}

const disclaimer = "This AI analysis is for informational purposes only and should not replace professional medical diagnosis. Please consult with a qualified healthcare provider for proper medical evaluation."

// ModelStatus is the slice of the engine lifecycle the handlers need.
type ModelStatus interface {
	IsLoaded() bool
	Info() classifier.ModelInfo
	Reload() error
}

// HealthCheck probes one backing dependency for the health endpoint.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, predictions *usecase.PredictionUseCase, users *usecase.UserUseCase, model ModelStatus, authMiddleware gin.HandlerFunc, checks ...HealthCheck) {
	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		loaded := model.IsLoaded()
		healthy := loaded
		dependencies := gin.H{}
		for _, check := range checks {
			if err := check.Check(ctx); err != nil {
				dependencies[check.Name] = "down"
				healthy = false
				continue
			}
			dependencies[check.Name] = "up"
		}

		status := http.StatusOK
		health := "healthy"
		if !healthy {
			status = http.StatusServiceUnavailable
			health = "unhealthy"
		}
		c.JSON(status, gin.H{
			"status":       health,
			"model_loaded": loaded,
			"dependencies": dependencies,
			"timestamp":    time.Now().UTC().Format(time.RFC3339),
		})
	})

	userRoutes := router.Group("/api/users")
	userRoutes.POST("/register", registerHandler(users))
	userRoutes.POST("/login", loginHandler(users))
	userRoutes.GET("/me", authMiddleware, profileHandler(users))

	predictionRoutes := router.Group("/api/predictions")
	predictionRoutes.GET("/model-status", func(c *gin.Context) {
		c.JSON(http.StatusOK, model.Info())
	})
	predictionRoutes.POST("/model-reload", authMiddleware, func(c *gin.Context) {
		if err := model.Reload(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "Model reload failed",
				"message": "The model could not be loaded; inference stays disabled.",
			})
			return
		}
		c.JSON(http.StatusOK, model.Info())
	})
	predictionRoutes.POST("/predict", authMiddleware, predictHandler(predictions, model))
	predictionRoutes.GET("/result/:id", authMiddleware, resultHandler(predictions))
	predictionRoutes.GET("/duplicates/:id", authMiddleware, duplicatesHandler(predictions))
	predictionRoutes.GET("/metrics", authMiddleware, metricsHandler(predictions))
}

func predictHandler(uc *usecase.PredictionUseCase, model ModelStatus) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := auth.GetUserID(c.Request.Context())

		// Refuse before touching the upload when the model is absent.
		if !model.IsLoaded() {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "Model not available",
				"message": "AI model is not loaded. Please contact support.",
			})
			return
		}

		file, err := c.FormFile("image")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "No file uploaded",
				"message": "Please upload an image file",
			})
			return
		}

		if file.Size > MaxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":   "File too large",
				"message": "Image uploads are limited to 10 MiB",
			})
			return
		}

		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(file.Filename), "."))
		if _, ok := supportedExtensions[ext]; !ok {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{
				"error":   "Invalid file type",
				"message": "Allowed file types: png, jpg, jpeg, gif, bmp, tiff",
			})
			return
		}

		src, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid upload",
				"message": "unable to open image",
			})
			return
		}
		defer src.Close()

		data, err := io.ReadAll(src)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "Upload failed",
				"message": "failed to read image",
			})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), predictTimeout)
		defer cancel()

		requestID, diagnosis, err := uc.Predict(ctx, userID, file.Filename, data)
		if err != nil {
			writePipelineError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":    true,
			"request_id": requestID,
			"prediction": diagnosis.Payload,
			"metadata": gin.H{
				"filename":      file.Filename,
				"timestamp":     time.Now().UTC().Format(time.RFC3339),
				"user_id":       userID,
				"model_version": model.Info().Version,
			},
			"disclaimer": disclaimer,
		})
	}
}

// writePipelineError maps the classifier error taxonomy onto HTTP statuses:
// bad input is the caller's fault, an absent model is degraded service, and
// anything else is an internal failure.
func writePipelineError(c *gin.Context, err error) {
	var preErr *classifier.PreprocessingError
	if errors.As(err, &preErr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Processing failed",
			"message": preErr.Reason,
		})
		return
	}

	if errors.Is(err, classifier.ErrModelUnavailable) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Model not available",
			"message": "AI model is not loaded. Please contact support.",
		})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "Prediction failed",
		"message": err.Error(),
	})
}

func resultHandler(uc *usecase.PredictionUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := auth.GetUserID(c.Request.Context())
		requestID := c.Param("id")

		log, err := uc.GetResult(c.Request.Context(), userID, requestID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
			return
		}
		c.JSON(http.StatusOK, predictionLogView(log))
	}
}

func duplicatesHandler(uc *usecase.PredictionUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := auth.GetUserID(c.Request.Context())
		requestID := c.Param("id")

		report, err := uc.GetDuplicateReport(c.Request.Context(), userID, requestID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
			return
		}

		duplicates := make([]gin.H, 0, len(report.Duplicates))
		for _, dup := range report.Duplicates {
			duplicates = append(duplicates, predictionLogView(dup))
		}
		c.JSON(http.StatusOK, gin.H{
			"request":    predictionLogView(report.Request),
			"duplicates": duplicates,
		})
	}
}

func metricsHandler(uc *usecase.PredictionUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := uc.GetMetricsSummary(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate metrics"})
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func predictionLogView(log *repository.PredictionLog) gin.H {
	return gin.H{
		"request_id": log.RequestID,
		"user_id":    log.UserID,
		"filename":   log.Filename,
		"label":      log.Label,
		"confidence": gin.H{
			"control":   log.ControlPct,
			"alzheimer": log.AlzheimerPct,
			"parkinson": log.ParkinsonPct,
		},
		"primary_confidence": log.PrimaryConfidence,
		"details":            log.Details,
		"created_at":         log.CreatedAt,
	}
}

type registerRequest struct {
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	UserType        string `json:"userType"`
	AgreeToTerms    bool   `json:"agreeToTerms"`
}

func registerHandler(uc *usecase.UserUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "No data provided",
				"message": "Request body must contain JSON data",
			})
			return
		}

		user, err := uc.Register(c.Request.Context(), usecase.RegisterInput{
			FirstName:       req.FirstName,
			LastName:        req.LastName,
			Email:           req.Email,
			Password:        req.Password,
			ConfirmPassword: req.ConfirmPassword,
			UserType:        req.UserType,
			AgreeToTerms:    req.AgreeToTerms,
		})
		if err != nil {
			var verr *usecase.ValidationError
			switch {
			case errors.As(err, &verr):
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + verr.Field, "message": verr.Message})
			case errors.Is(err, usecase.ErrEmailTaken):
				c.JSON(http.StatusConflict, gin.H{"error": "Email already registered", "message": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Registration failed", "message": err.Error()})
			}
			return
		}

		c.JSON(http.StatusCreated, gin.H{"message": "User registered successfully", "user": userView(user)})
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func loginHandler(uc *usecase.UserUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "No data provided",
				"message": "Request body must contain JSON data",
			})
			return
		}

		token, user, err := uc.Login(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			switch {
			case errors.Is(err, usecase.ErrInvalidCredentials):
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials", "message": err.Error()})
			case errors.Is(err, usecase.ErrAccountDisabled):
				c.JSON(http.StatusForbidden, gin.H{"error": "Account disabled", "message": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed", "message": err.Error()})
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{"access_token": token, "user": userView(user)})
	}
}

func profileHandler(uc *usecase.UserUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject, _ := auth.GetUserID(c.Request.Context())
		id, err := strconv.ParseUint(subject, 10, 32)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid subject"})
			return
		}

		user, err := uc.Profile(c.Request.Context(), uint(id))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": userView(user)})
	}
}

func userView(user *repository.User) gin.H {
	return gin.H{
		"id":         user.ID,
		"first_name": user.FirstName,
		"last_name":  user.LastName,
		"full_name":  user.FullName(),
		"email":      user.Email,
		"user_type":  user.UserType,
		"is_active":  user.IsActive,
		"created_at": user.CreatedAt,
	}
}

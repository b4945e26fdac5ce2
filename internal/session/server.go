package session

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// API exposes the registry over HTTP.
type API struct {
	store     Store
	jwtSecret string
	logger    zerolog.Logger
}

// APIConfig carries the API dependencies.
type APIConfig struct {
	Store     Store
	JWTSecret string
	Logger    *zerolog.Logger
}

func NewAPI(cfg APIConfig) *API {
	return &API{
		store:     cfg.Store,
		jwtSecret: cfg.JWTSecret,
		logger:    cfg.Logger.With().Str("component", "registry-api").Logger(),
	}
}

// Register mounts the registry routes on router.
func (a *API) Register(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.POST("/auth/login", a.login)
		api.POST("/sessions", a.jwtAuth(), a.createSession)
		api.GET("/sessions", a.jwtAuth(), a.listSessions)
		api.GET("/sessions/:roomId", a.getSession)
		// Status transitions are keyed by the room id alone: the call
		// endpoints driving them hold no registry credentials.
		api.POST("/sessions/:roomId/activate", a.activateSession)
		api.POST("/sessions/:roomId/end", a.endSession)
	}
}

// jwtClaims are the claims the registry issues and validates.
type jwtClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

// login issues a JWT. Credential checks are delegated to the surrounding
// application; the registry only needs a stable user identity in the token.
func (a *API) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	claims := jwtClaims{
		UserID: req.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(a.jwtSecret))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, loginResponse{Token: tokenString, UserID: req.Username})
}

func (a *API) jwtAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			return
		}

		token, err := jwt.ParseWithClaims(parts[1], &jwtClaims{}, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(a.jwtSecret), nil
		})
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		claims, ok := token.Claims.(*jwtClaims)
		if !ok || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token claims"})
			return
		}
		c.Set("user_id", claims.UserID)
		c.Next()
	}
}

func (a *API) createSession(c *gin.Context) {
	userID := c.GetString("user_id")

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := time.Now()
	s := &Session{
		ID:          uuid.New().String(),
		Code:        NewCode(),
		EncounterID: req.EncounterID,
		CallerID:    userID,
		CalleeID:    req.CalleeID,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := a.store.Create(c.Request.Context(), s); err != nil {
		a.logger.Error().Err(err).Str("encounterID", req.EncounterID).Msg("session create failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}

	a.logger.Info().
		Str("roomID", s.ID).
		Str("code", s.Code).
		Str("callerID", userID).
		Msg("session created")

	c.JSON(http.StatusCreated, CreateResponse{RoomID: s.ID, Code: s.Code})
}

func (a *API) getSession(c *gin.Context) {
	s, err := a.store.Get(c.Request.Context(), c.Param("roomId"))
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
		return
	}
	c.JSON(http.StatusOK, s)
}

func (a *API) listSessions(c *gin.Context) {
	sessions, err := a.store.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
		return
	}
	c.JSON(http.StatusOK, sessions)
}

// activateSession marks a session live once the media path is up.
func (a *API) activateSession(c *gin.Context) {
	err := a.store.SetStatus(c.Request.Context(), c.Param("roomId"), StatusActive)
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, ErrEnded):
		c.JSON(http.StatusConflict, gin.H{"error": "session already ended"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update session"})
	default:
		c.JSON(http.StatusOK, gin.H{"message": "session active"})
	}
}

func (a *API) endSession(c *gin.Context) {
	err := a.store.SetStatus(c.Request.Context(), c.Param("roomId"), StatusEnded)
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, ErrEnded):
		c.JSON(http.StatusConflict, gin.H{"error": "session already ended"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to end session"})
	default:
		c.JSON(http.StatusOK, gin.H{"message": "session ended"})
	}
}

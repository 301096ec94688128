package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stock-prediction-api/internal/database"
)

// Handlers serves the auth surface: register, login, refresh, me
type Handlers struct {
	repo        *database.Repository
	jwt         *JWTManager
	minPassword int
	logger      zerolog.Logger
}

// NewHandlers creates the auth handler set
func NewHandlers(repo *database.Repository, jwt *JWTManager, minPassword int, logger zerolog.Logger) *Handlers {
	return &Handlers{
		repo:        repo,
		jwt:         jwt,
		minPassword: minPassword,
		logger:      logger.With().Str("component", "auth").Logger(),
	}
}

// RegisterRoutes mounts the auth routes on the given group
func (h *Handlers) RegisterRoutes(api *gin.RouterGroup) {
	grp := api.Group("/auth")
	grp.POST("/register", h.Register)
	grp.POST("/login", h.Login)
	grp.POST("/refresh", h.Refresh)
	grp.GET("/me", Middleware(h.jwt), h.Me)
}

// Register creates a new user and returns a token pair
func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if err := ValidatePassword(req.Password, h.minPassword); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "weak_password", "message": err.Error()})
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		h.logger.Error().Err(err).Msg("password hashing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "registration failed"})
		return
	}

	user, err := h.repo.CreateUser(c.Request.Context(), req.Email, hash, req.Name)
	if err != nil {
		if errors.Is(err, database.ErrDuplicateEmail) {
			c.JSON(http.StatusConflict, gin.H{"error": "email_taken", "message": "email already registered"})
			return
		}
		h.logger.Error().Err(err).Msg("user creation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "registration failed"})
		return
	}

	h.respondWithTokens(c, http.StatusCreated, user)
}

// Login verifies credentials and returns a token pair
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	user, err := h.repo.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": ErrInvalidCredentials.Code, "message": ErrInvalidCredentials.Message})
			return
		}
		h.logger.Error().Err(err).Msg("user lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "login failed"})
		return
	}
	if !VerifyPassword(req.Password, user.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": ErrInvalidCredentials.Code, "message": ErrInvalidCredentials.Message})
		return
	}

	h.respondWithTokens(c, http.StatusOK, user)
}

// Refresh exchanges a valid refresh token for a new token pair
func (h *Handlers) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	claims, err := h.jwt.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		authErr, ok := err.(AuthError)
		if !ok {
			authErr = ErrInvalidToken
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": authErr.Code, "message": authErr.Message})
		return
	}

	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": ErrInvalidToken.Code, "message": ErrInvalidToken.Message})
		return
	}
	user, err := h.repo.GetUserByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": ErrInvalidToken.Code, "message": "user no longer exists"})
		return
	}

	h.respondWithTokens(c, http.StatusOK, user)
}

// Me returns the authenticated user's profile
func (h *Handlers) Me(c *gin.Context) {
	userID, ok := UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthorized.Code, "message": ErrUnauthorized.Message})
		return
	}
	id, err := uuid.Parse(userID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": ErrInvalidToken.Code, "message": ErrInvalidToken.Message})
		return
	}

	user, err := h.repo.GetUserByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "user not found"})
			return
		}
		h.logger.Error().Err(err).Msg("user lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "lookup failed"})
		return
	}

	c.JSON(http.StatusOK, toUserResponse(user))
}

func (h *Handlers) respondWithTokens(c *gin.Context, status int, user *database.User) {
	pair, err := h.jwt.GenerateTokenPair(UserClaims{UserID: user.ID.String(), Email: user.Email})
	if err != nil {
		h.logger.Error().Err(err).Msg("token generation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "token generation failed"})
		return
	}
	c.JSON(status, LoginResponse{
		User:         toUserResponse(user),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	})
}

func toUserResponse(user *database.User) UserResponse {
	return UserResponse{
		ID:        user.ID.String(),
		Email:     user.Email,
		Name:      user.DisplayName,
		CreatedAt: user.CreatedAt,
	}
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"userpay-client/internal/models"
	"userpay-client/internal/sandbox/ledger"
	"userpay-client/internal/sandbox/middleware"
)

// AuthHandler обработчик для аутентификации
type AuthHandler struct {
	ledger        *ledger.Ledger
	jwtMiddleware *middleware.JWTMiddleware
	logger        *logrus.Logger
}

// NewAuthHandler создает новый обработчик аутентификации
func NewAuthHandler(l *ledger.Ledger, jwtMiddleware *middleware.JWTMiddleware, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{
		ledger:        l,
		jwtMiddleware: jwtMiddleware,
		logger:        logger,
	}
}

// CredentialsRequest запрос на регистрацию или вход
type CredentialsRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

// EmailRequest запрос с одним email
type EmailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// Register регистрирует нового пользователя
func (h *AuthHandler) Register(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}

	if _, err := h.ledger.Register(req.Email, req.Password); err != nil {
		if errors.Is(err, ledger.ErrEmailTaken) {
			badRequest(c, err.Error())
			return
		}
		h.logger.Errorf("Failed to register user: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to register user"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Registration successful. Please check your email to verify your account."})
}

// ResendVerification повторно "отправляет" письмо подтверждения
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var req EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}

	if _, ok := h.ledger.UserByEmail(req.Email); !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": ledger.ErrUserNotFound.Error()})
		return
	}

	h.logger.WithField("email", req.Email).Info("Verification email re-sent")
	c.JSON(http.StatusOK, gin.H{"message": "Verification email sent"})
}

// Login авторизует пользователя и выдает JWT
func (h *AuthHandler) Login(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}

	user, err := h.ledger.Authenticate(req.Email, req.Password)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	token, err := h.jwtMiddleware.GenerateToken(user.ID, user.Username, user.Email)
	if err != nil {
		h.logger.Errorf("Failed to generate token: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  h.identity(user),
	})
}

// Profile возвращает профиль текущего пользователя
func (h *AuthHandler) Profile(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
		return
	}

	user, err := h.ledger.User(userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, h.identity(user))
}

func (h *AuthHandler) identity(user *ledger.User) gin.H {
	balance, _ := h.ledger.Balance(user.ID, models.FiatCurrency)
	return gin.H{
		"id":       user.ID,
		"username": user.Username,
		"email":    user.Email,
		"balance":  number(balance),
	}
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"message": message})
}

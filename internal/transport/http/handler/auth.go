package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"gopherchat/internal/app"
	"gopherchat/internal/oauth"
	"gopherchat/internal/transport/http/middleware"
	"gopherchat/internal/transport/http/response"
)

type AuthHandler struct {
	authService *app.AuthService
	google      *oauth.GoogleProvider
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Email    string `json:"email" binding:"required,email,max=128"`
	Password string `json:"password" binding:"required,min=7,max=128"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Password string `json:"password" binding:"required,min=7,max=128"`
}

type OAuthTokenRequest struct {
	IDToken string `json:"id_token" binding:"required"`
}

func NewAuthHandler(authService *app.AuthService, google *oauth.GoogleProvider) *AuthHandler {
	return &AuthHandler{authService: authService, google: google}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.authService.Register(app.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrUsernameExists):
			response.Error(c, http.StatusBadRequest, response.CodeUsernameExists, err.Error())
		case errors.Is(err, app.ErrEmailExists):
			response.Error(c, http.StatusBadRequest, response.CodeEmailExists, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "register failed")
		}
		return
	}

	response.Created(c, gin.H{
		"token": result.Token,
		"user": gin.H{
			"id":       result.User.ID,
			"username": result.User.Username,
			"email":    result.User.Email,
		},
	})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.authService.Login(app.LoginInput{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrInvalidCredential):
			response.Error(c, http.StatusUnauthorized, response.CodeInvalidCredentials, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "login failed")
		}
		return
	}

	response.OK(c, gin.H{
		"token": result.Token,
		"user": gin.H{
			"id":         result.User.ID,
			"username":   result.User.Username,
			"email":      result.User.Email,
			"avatar_url": result.User.AvatarURL,
		},
	})
}

// Logout is a stateless acknowledgement; tokens simply expire. The client
// drops its copy.
func (h *AuthHandler) Logout(c *gin.Context) {
	response.OK(c, gin.H{"logged_out": true})
}

func (h *AuthHandler) Me(c *gin.Context) {
	userIDAny, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "user not found in token")
		return
	}

	userID, ok := userIDAny.(uint)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	user, err := h.authService.GetUserByID(userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "fetch current user failed")
		return
	}
	if user == nil {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "user not found")
		return
	}

	response.OK(c, gin.H{
		"id":             user.ID,
		"username":       user.Username,
		"email":          user.Email,
		"avatar_url":     user.AvatarURL,
		"oauth_provider": user.OAuthProvider,
	})
}

// GoogleRedirect sends the browser to the Google consent screen.
func (h *AuthHandler) GoogleRedirect(c *gin.Context) {
	authURL, err := h.google.AuthURL(uuid.NewString())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "google oauth is not configured")
		return
	}
	c.Redirect(http.StatusFound, authURL)
}

// GoogleCallback exchanges the consent code, verifies the identity, and
// issues an application token.
func (h *AuthHandler) GoogleCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing oauth code")
		return
	}

	identity, err := h.google.Exchange(c.Request.Context(), code)
	if err != nil {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "google login failed")
		return
	}

	h.finishOAuth(c, identity)
}

// GoogleToken logs in with an ID token the client already obtained, e.g.
// from the Google Sign-In browser flow.
func (h *AuthHandler) GoogleToken(c *gin.Context) {
	var req OAuthTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	identity, err := h.google.VerifyIDToken(c.Request.Context(), req.IDToken)
	if err != nil {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "google login failed")
		return
	}

	h.finishOAuth(c, identity)
}

func (h *AuthHandler) finishOAuth(c *gin.Context, identity oauth.Identity) {
	result, err := h.authService.OAuthLogin(identity)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "oauth login failed")
		return
	}

	response.OK(c, gin.H{
		"token": result.Token,
		"user": gin.H{
			"id":         result.User.ID,
			"username":   result.User.Username,
			"email":      result.User.Email,
			"avatar_url": result.User.AvatarURL,
		},
	})
}

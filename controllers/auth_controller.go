package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/quickpost/quickpost/middleware"
	"github.com/quickpost/quickpost/models"
	"github.com/quickpost/quickpost/services"
	"github.com/quickpost/quickpost/utils"
)

const tokenTTL = 72 * time.Hour

// AuthController handles signup, login, guest provisioning and notification
// preferences.
type AuthController struct {
	db *gorm.DB
}

// NewAuthController creates an AuthController.
func NewAuthController(db *gorm.DB) *AuthController {
	return &AuthController{db: db}
}

// userResponse is the public shape of a user record.
func userResponse(u models.User) gin.H {
	return gin.H{
		"id":            u.ID,
		"email":         u.Email,
		"first_name":    u.FirstName,
		"notifications": u.Notifications,
		"created_at":    u.CreatedAt,
	}
}

// Register validates the signup form, creates the account and issues a JWT.
func (a *AuthController) Register(ctx *gin.Context) {
	var form services.SignupForm
	if err := ctx.ShouldBindJSON(&form); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}
	form.Email = strings.TrimSpace(form.Email)
	form.FirstName = strings.TrimSpace(form.FirstName)

	exists := func(email string) bool {
		user, err := services.FindUserByEmail(a.db, email)
		return err == nil && user != nil
	}
	if ok, reason := services.ValidateSignup(form, exists); !ok {
		status := http.StatusBadRequest
		if reason == services.ReasonEmailExists {
			status = http.StatusConflict
		}
		utils.Error(ctx, status, 40002, reason)
		return
	}

	user, err := services.CreateAccount(a.db, form)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to create account")
		return
	}

	token, err := utils.GenerateToken(user.ID, user.Email, tokenTTL)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50002, "failed to generate token")
		return
	}

	utils.Success(ctx, gin.H{
		"token": token,
		"user":  userResponse(*user),
	})
}

// Login verifies credentials and issues a JWT. The greeting carries the
// user's first name on success.
func (a *AuthController) Login(ctx *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40003, "invalid request payload")
		return
	}

	user, err := services.FindUserByEmail(a.db, strings.TrimSpace(req.Email))
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50003, "failed to look up user")
		return
	}

	ok, result := services.ValidateLogin(user, req.Password)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40105, result)
		return
	}

	token, err := utils.GenerateToken(user.ID, user.Email, tokenTTL)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50004, "failed to generate token")
		return
	}

	utils.Success(ctx, gin.H{
		"token":    token,
		"greeting": "Welcome back, " + result,
		"user":     userResponse(*user),
	})
}

// GuestLogin provisions a fresh guest account and establishes a session for
// it immediately. The generated password is returned once.
func (a *AuthController) GuestLogin(ctx *gin.Context) {
	user, password, err := services.CreateGuestAccount(a.db)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50005, "failed to create guest account")
		return
	}

	token, err := utils.GenerateToken(user.ID, user.Email, tokenTTL)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50006, "failed to generate token")
		return
	}

	utils.Success(ctx, gin.H{
		"token":    token,
		"password": password,
		"user":     userResponse(*user),
	})
}

// Me returns the authenticated principal's record.
func (a *AuthController) Me(ctx *gin.Context) {
	userID, ok := middleware.PrincipalID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	var user models.User
	if err := a.db.First(&user, userID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40401, "user not found")
		return
	}
	utils.Success(ctx, gin.H{"user": userResponse(user)})
}

// UpdateNotifications toggles the principal's notification subscription.
func (a *AuthController) UpdateNotifications(ctx *gin.Context) {
	var req struct {
		Notifications *bool `json:"notifications" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40004, "invalid request payload")
		return
	}
	userID, ok := middleware.PrincipalID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	if err := a.db.Model(&models.User{}).Where("id = ?", userID).
		Update("notifications", *req.Notifications).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50007, "failed to update notifications")
		return
	}
	utils.Success(ctx, gin.H{"notifications": *req.Notifications})
}

// Unsubscribe handles the link embedded in every notification mail. It is
// public: the per-user token is the credential.
func (a *AuthController) Unsubscribe(ctx *gin.Context) {
	token := strings.TrimSpace(ctx.Query("token"))
	if token == "" {
		utils.Error(ctx, http.StatusBadRequest, 40005, "missing token")
		return
	}
	var user models.User
	if err := a.db.Where("unsubscribe_token = ?", token).First(&user).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40402, "invalid unsubscribe link")
		return
	}
	if err := a.db.Model(&user).Update("notifications", false).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50008, "failed to unsubscribe")
		return
	}
	utils.Success(ctx, gin.H{"message": "you will no longer receive post notifications"})
}

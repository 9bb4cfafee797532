package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jobboard/backend/internal/apperr"
	"github.com/jobboard/backend/internal/model"
	"github.com/jobboard/backend/internal/service"
)

type AuthHandler struct {
	svc *service.AuthService
}

func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// Register godoc
// @Summary Register a new user
// @Description Admin accounts must reference an existing company.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.RegisterRequest true "Account and profile"
// @Success 201 {object} model.SuccessResponse{data=model.UserResponse}
// @Failure 400 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Failure 422 {object} model.ErrorResponse
// @Failure 503 {object} model.ErrorResponse
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.svc.Register(c.Request.Context(), service.RegisterInput{
		Username:  strings.TrimSpace(req.Username),
		Email:     req.Email,
		Password:  req.Password,
		Role:      req.Role,
		CompanyID: req.CompanyID,
		Profile: model.Profile{
			FullName:    req.Profile.FullName,
			PhoneNumber: req.Profile.PhoneNumber,
			Bio:         req.Profile.Bio,
			Skills:      req.Profile.Skills,
			ResumeURL:   req.Profile.ResumeURL,
		},
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, model.Success(model.NewUserResponse(user)))
}

// Login godoc
// @Summary Login
// @Description Returns the access token; the refresh token is set as an HttpOnly cookie.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.LoginRequest true "Email and password"
// @Success 200 {object} model.SuccessResponse{data=model.AuthResponse}
// @Failure 401 {object} model.ErrorResponse
// @Failure 422 {object} model.ErrorResponse
// @Failure 503 {object} model.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.svc.Login(c.Request.Context(), req.Email, req.Password, c.ClientIP())
	if err != nil {
		_ = c.Error(err)
		return
	}

	h.setRefreshCookie(c, res.RefreshToken)
	c.JSON(http.StatusOK, model.Success(model.AuthResponse{
		AccessToken: res.AccessToken,
		ExpiresIn:   res.ExpiresIn,
	}))
}

// Refresh godoc
// @Summary Refresh access token
// @Description Uses the refresh token cookie. The previous access token is revoked.
// @Tags auth
// @Produce json
// @Success 200 {object} model.SuccessResponse{data=model.AuthResponse}
// @Failure 401 {object} model.ErrorResponse
// @Failure 403 {object} model.ErrorResponse
// @Failure 409 {object} model.ErrorResponse
// @Failure 503 {object} model.ErrorResponse
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	refreshToken, _ := c.Cookie(h.svc.CookieConfig().Name)

	res, err := h.svc.Refresh(c.Request.Context(), refreshToken)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, model.Success(model.AuthResponse{
		AccessToken: res.AccessToken,
		ExpiresIn:   res.ExpiresIn,
	}))
}

// Logout godoc
// @Summary Logout
// @Description Ends the session owning the refresh token cookie and clears the cookie.
// @Tags auth
// @Produce json
// @Success 200 {object} model.SuccessResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 503 {object} model.ErrorResponse
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	refreshToken, _ := c.Cookie(h.svc.CookieConfig().Name)

	if err := h.svc.Logout(c.Request.Context(), refreshToken); err != nil {
		_ = c.Error(err)
		return
	}

	h.clearRefreshCookie(c)
	c.JSON(http.StatusOK, model.SuccessMessage("Successfully logged out."))
}

// GetProfile godoc
// @Summary Get current user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.SuccessResponse{data=model.UserResponse}
// @Failure 401 {object} model.ErrorResponse
// @Failure 403 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /auth/profile [get]
func (h *AuthHandler) GetProfile(c *gin.Context) {
	user, err := h.svc.Profile(c.Request.Context(), mustAuthUser(c).ID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, model.Success(model.NewUserResponse(user)))
}

// UpdateProfile godoc
// @Summary Update profile and/or password
// @Description oldPassword and newPassword must be sent together. Existing tokens stay valid.
// @Tags auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.UpdateProfileRequest true "Fields to change"
// @Success 200 {object} model.SuccessResponse{data=model.UserResponse}
// @Failure 400 {object} model.ErrorResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 422 {object} model.ErrorResponse
// @Router /auth/profile [put]
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	var req model.UpdateProfileRequest
	if !bindJSON(c, &req) {
		return
	}

	update := model.ProfileUpdate{
		FullName:    req.FullName,
		PhoneNumber: req.PhoneNumber,
		Bio:         req.Bio,
		Skills:      req.Skills,
		ResumeURL:   req.ResumeURL,
	}
	pw := service.PasswordChange{Old: req.OldPassword, New: req.NewPassword}

	user, err := h.svc.UpdateProfile(c.Request.Context(), mustAuthUser(c).ID, update, pw)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, model.SuccessResponse{
		Status:  "success",
		Message: "Profile and/or password updated successfully.",
		Data:    model.NewUserResponse(user),
	})
}

// DeleteProfile godoc
// @Summary Delete account
// @Description Requires the current password. Ends the session.
// @Tags auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.DeleteProfileRequest true "Current password"
// @Success 200 {object} model.SuccessResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /auth/profile [delete]
func (h *AuthHandler) DeleteProfile(c *gin.Context) {
	var req model.DeleteProfileRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.svc.DeleteAccount(c.Request.Context(), mustAuthUser(c).ID, req.Password); err != nil {
		_ = c.Error(err)
		return
	}

	h.clearRefreshCookie(c)
	c.JSON(http.StatusOK, model.SuccessMessage("Profile deleted successfully."))
}

// LoginHistory godoc
// @Summary List a user's logins
// @Description Newest first. limit defaults to 20 and is capped at 100.
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param limit query int false "Maximum entries"
// @Success 200 {object} model.SuccessResponse{data=[]model.LoginEventResponse}
// @Failure 403 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /admin/users/{id}/logins [get]
func (h *AuthHandler) LoginHistory(c *gin.Context) {
	var q model.LoginHistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		_ = c.Error(apperr.ErrValidation.WithMessage(validationMessage(err)).Wrap(err))
		return
	}

	events, err := h.svc.LoginHistory(c.Request.Context(), c.Param("id"), q.Limit)
	if err != nil {
		_ = c.Error(err)
		return
	}

	out := make([]model.LoginEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, model.LoginEventResponse{LoginAt: e.LoginAt, IPAddress: e.IPAddress})
	}
	c.JSON(http.StatusOK, model.Success(out))
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, token string) {
	cfg := h.svc.CookieConfig()
	c.SetSameSite(cfg.SameSite)
	c.SetCookie(cfg.Name, token, cfg.MaxAge, cfg.Path, cfg.Domain, cfg.Secure, true)
}

func (h *AuthHandler) clearRefreshCookie(c *gin.Context) {
	cfg := h.svc.CookieConfig()
	c.SetSameSite(cfg.SameSite)
	c.SetCookie(cfg.Name, "", -1, cfg.Path, cfg.Domain, cfg.Secure, true)
}

// mustAuthUser is only called behind AuthMiddleware.
func mustAuthUser(c *gin.Context) *model.AuthUser {
	user := GetAuthUser(c)
	if user == nil {
		panic("handler: route registered without AuthMiddleware")
	}
	return user
}

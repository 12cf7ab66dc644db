package handlers

import (
	"net/http"
	"net/url"

	"photogallery/auth"
	"photogallery/errs"
	"photogallery/models"

	"github.com/gin-gonic/gin"
)

type UserLoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type UserRegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required,min=2"`
}

type UserCreateRequest struct {
	UserRegisterRequest
	Role models.Role `json:"role"`
}

type LoginCodeRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type UserInfo struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (s *Server) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, Response{"invalid request: " + err.Error()})
		return false
	}
	return true
}

func (s *Server) startSession(c *gin.Context, user *models.User) bool {
	if err := auth.LoadSession(c).LoginUser(user.ID); err != nil {
		s.abortWithError(c, errs.Wrap(errs.KindInternal, "", err))
		return false
	}
	return true
}

func (s *Server) UserLogin(c *gin.Context) {
	req := UserLoginRequest{}
	if !s.bind(c, &req) {
		return
	}
	user, err := s.Users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	if s.startSession(c, user) {
		c.JSON(http.StatusOK, user.Public())
	}
}

func (s *Server) UserRegister(c *gin.Context) {
	req := UserRegisterRequest{}
	if !s.bind(c, &req) {
		return
	}
	user, err := s.Users.Register(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	if s.startSession(c, user) {
		c.JSON(http.StatusOK, user.Public())
	}
}

func (s *Server) UserLogout(c *gin.Context) {
	if err := auth.LoadSession(c).LogoutUser(); err != nil {
		s.abortWithError(c, errs.Wrap(errs.KindInternal, "", err))
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func (s *Server) UserMe(c *gin.Context, user *models.User) {
	c.JSON(http.StatusOK, user.Public())
}

// UserRequestCode mails a login link to an existing user
func (s *Server) UserRequestCode(c *gin.Context) {
	req := LoginCodeRequest{}
	if !s.bind(c, &req) {
		return
	}
	if err := s.Users.RequestLoginLink(c.Request.Context(), req.Email); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "Login link sent to your email"})
}

// UserVerify consumes a login link and redirects to the app
func (s *Server) UserVerify(c *gin.Context) {
	email := c.Query("email")
	user, err := s.Users.Verify(c.Request.Context(), email, c.Query("token"))
	if err == nil && s.startSession(c, user) {
		c.Redirect(http.StatusFound, "/?login_success=true")
		return
	}
	if c.IsAborted() {
		return
	}
	target := "/auth/login?error=invalid_verification"
	if email != "" {
		target += "&email=" + url.QueryEscape(email)
	}
	s.logger().InfoContext(c.Request.Context(), "login link rejected", "error", errs.Message(err))
	c.Redirect(http.StatusFound, target)
}

func (s *Server) UserList(c *gin.Context, user *models.User) {
	users, err := s.Users.List(c.Request.Context())
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	result := make([]models.Public, 0, len(users))
	for i := range users {
		result = append(result, users[i].Public())
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) UserCreate(c *gin.Context, admin *models.User) {
	req := UserCreateRequest{}
	if !s.bind(c, &req) {
		return
	}
	user, err := s.Users.Create(c.Request.Context(), auth.NewUser{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Role:     req.Role,
	})
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	s.logger().InfoContext(c.Request.Context(), "user created by admin", "admin", admin.ID, "user", user.ID)
	c.JSON(http.StatusOK, user.Public())
}

func (s *Server) UsersForAlbumAccess(c *gin.Context, admin *models.User) {
	users, err := s.Users.EligibleForAccess(c.Request.Context(), admin)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	result := make([]UserInfo, 0, len(users))
	for _, u := range users {
		result = append(result, UserInfo{ID: u.ID, Email: u.Email, Name: u.Name})
	}
	c.JSON(http.StatusOK, result)
}

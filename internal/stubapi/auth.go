package stubapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"golang.org/x/crypto/bcrypt"

	"github.com/utafrali/ExpenseGo/internal/domain"
	"github.com/utafrali/ExpenseGo/pkg/httputil"
	"github.com/utafrali/ExpenseGo/pkg/logger"
	"github.com/utafrali/ExpenseGo/pkg/middleware"
	"github.com/utafrali/ExpenseGo/pkg/validator"
)

const maxBody = 1 << 20

type registerRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Username  string `json:"username" validate:"required,min=3,max=80"`
	Password  string `json:"password" validate:"required,password_policy"`
	FirstName string `json:"first_name" validate:"required,min=1,max=50"`
	LastName  string `json:"last_name" validate:"required,min=1,max=50"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	Message      string      `json:"message"`
	User         domain.User `json:"user"`
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
}

// register handles POST /auth/register
func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)

	var req registerRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.BcryptCost)
	if err != nil {
		httputil.WriteError(w, r, err, s.logger)
		return
	}

	user, err := s.store.createUser(domain.User{
		Email:     req.Email,
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}, hash)
	if err != nil {
		httputil.WriteError(w, r, err, s.logger)
		return
	}

	s.writeAuth(w, r, http.StatusCreated, "User registered successfully", user)
}

// login handles POST /auth/login
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)

	var req loginRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	acct, ok := s.store.accountByEmail(req.Email)
	if !ok || bcrypt.CompareHashAndPassword(acct.password, []byte(req.Password)) != nil {
		httputil.WriteMessage(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if !acct.user.IsActive {
		httputil.WriteMessage(w, http.StatusUnauthorized, "Account is deactivated")
		return
	}

	s.writeAuth(w, r, http.StatusOK, "Login successful", acct.user)
}

func (s *Server) writeAuth(w http.ResponseWriter, r *http.Request, status int, msg string, user domain.User) {
	access, refresh, err := s.tokens.pair(user.ID)
	if err != nil {
		httputil.WriteError(w, r, err, s.logger)
		return
	}
	s.logger.InfoContext(r.Context(), "issued session",
		slog.Int64("user_id", user.ID),
		logger.Token("access_token", access),
	)
	httputil.WriteJSON(w, status, authResponse{
		Message:      msg,
		User:         user,
		AccessToken:  access,
		RefreshToken: refresh,
	})
}

// refresh handles POST /auth/refresh. The refresh token is read from the
// bearer header, falling back to the JSON body.
func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r)
	if !ok {
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		_ = json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&body)
		token = body.RefreshToken
	}
	if token == "" {
		httputil.WriteMessage(w, http.StatusUnauthorized, "Authorization token required")
		return
	}

	claims, err := s.tokens.validate(token, typeRefresh)
	switch {
	case errors.Is(err, middleware.ErrTokenExpired):
		httputil.WriteMessage(w, http.StatusUnauthorized, "Token has expired")
		return
	case errors.Is(err, middleware.ErrTokenRevoked):
		httputil.WriteMessage(w, http.StatusUnauthorized, "Token has been revoked")
		return
	case err != nil:
		httputil.WriteMessage(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	id, _ := strconv.ParseInt(claims.Subject, 10, 64)
	if _, ok := s.store.user(id); !ok {
		httputil.WriteMessage(w, http.StatusUnauthorized, "User not found")
		return
	}

	access, err := s.tokens.issue(id, typeAccess)
	if err != nil {
		httputil.WriteError(w, r, err, s.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"message":      "Token refreshed successfully",
		"access_token": access,
	})
}

// me handles GET /auth/me
func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	user, ok := s.store.user(currentUserID(r))
	if !ok {
		httputil.WriteMessage(w, http.StatusNotFound, "User not found")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]domain.User{"user": user})
}

// logout handles POST /auth/logout by revoking the presented access token.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok && claims.ID != "" {
		s.tokens.revoke(claims.ID)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Logout successful. Please remove token from client.",
	})
}

package acceptance

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prperemyshlev/portfolio-backend/internal/domain"
	"github.com/prperemyshlev/portfolio-backend/internal/dto"
)

type userEnvelope struct {
	StatusCode int               `json:"statusCode"`
	Success    bool              `json:"success"`
	Message    string            `json:"message"`
	Data       domain.PublicUser `json:"data"`
}

type sessionEnvelope struct {
	StatusCode int                 `json:"statusCode"`
	Data       dto.SessionResponse `json:"data"`
}

func (s *Suite) request(method, path string, body any, cookies ...*http.Cookie) *http.Response {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, s.BaseURL+path, &buf)
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	s.T().Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *Suite) decode(resp *http.Response, v any) {
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(v))
}

func (s *Suite) errorCode(resp *http.Response) string {
	var body dto.ErrorResponse
	s.decode(resp, &body)
	s.NotEmpty(body.Message)
	return body.Code
}

func (s *Suite) register(username, email, password string) domain.PublicUser {
	resp := s.request(http.MethodPost, "/api/v1/users/create", dto.RegisterRequest{
		Username: username,
		Email:    email,
		Fullname: username + " tester",
		Password: password,
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	var body userEnvelope
	s.decode(resp, &body)
	return body.Data
}

func (s *Suite) mailedToken(kind string) string {
	var token string
	s.Require().Eventually(func() bool {
		var ok bool
		token, ok = s.Mail.lastToken(kind)
		return ok
	}, 2*time.Second, 20*time.Millisecond, "no %s link mailed", kind)
	return token
}

func (s *Suite) registerVerified(username, email, password string) domain.PublicUser {
	user := s.register(username, email, password)
	resp := s.request(http.MethodGet, "/api/v1/users/verify-email/"+s.mailedToken("verify-email"), nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	return user
}

func (s *Suite) login(username, password string) (*http.Cookie, *http.Cookie) {
	resp := s.request(http.MethodPost, "/api/v1/users/login", dto.LoginRequest{Username: username, Password: password})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	return cookie(resp, "accessToken"), cookie(resp, "refreshToken")
}

func cookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (s *Suite) storedRefreshToken(userID string) *string {
	var token *string
	err := s.Postgres.DB.QueryRow("SELECT refresh_token FROM users WHERE id = $1", userID).Scan(&token)
	s.Require().NoError(err)
	return token
}

func (s *Suite) TestRegister_Success() {
	resp := s.request(http.MethodPost, "/api/v1/users/create", dto.RegisterRequest{
		Username: "alice",
		Email:    "Alice@X.com",
		Fullname: "Alice Liddell",
		Password: "secret1",
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	var raw map[string]any
	s.decode(resp, &raw)
	data := raw["data"].(map[string]any)
	s.NotContains(data, "password")
	s.NotContains(data, "password_hash")
	s.NotContains(data, "refresh_token")
	s.Equal("alice@x.com", data["email"])
	s.Equal(false, data["verification"])
	s.Equal(true, raw["success"])
}

func (s *Suite) TestRegister_Duplicates() {
	s.register("alice", "alice@x.com", "secret1")

	for _, req := range []dto.RegisterRequest{
		{Username: "alice", Email: "other@x.com", Fullname: "Other Person", Password: "secret1"},
		{Username: "other", Email: "alice@x.com", Fullname: "Other Person", Password: "secret1"},
	} {
		resp := s.request(http.MethodPost, "/api/v1/users/create", req)
		s.Equal(http.StatusBadRequest, resp.StatusCode)
		s.Equal("CONFLICT", s.errorCode(resp))
	}
}

func (s *Suite) TestRegister_InvalidInput() {
	tests := []dto.RegisterRequest{
		{Username: "alice", Email: "invalid-email", Fullname: "Alice Liddell", Password: "secret1"},
		{Username: "alice", Email: "alice@x.com", Fullname: "Alice Liddell", Password: "short"},
		{Username: "al", Email: "alice@x.com", Fullname: "Alice Liddell", Password: "secret1"},
	}

	for _, req := range tests {
		resp := s.request(http.MethodPost, "/api/v1/users/create", req)
		s.Equal(http.StatusBadRequest, resp.StatusCode)
		s.Equal("VALIDATION_ERROR", s.errorCode(resp))
	}
}

func (s *Suite) TestLogin_Failures() {
	s.register("carol", "carol@x.com", "secret1")

	resp := s.request(http.MethodPost, "/api/v1/users/login", dto.LoginRequest{Username: "carol", Password: "secret1"})
	s.Equal(http.StatusForbidden, resp.StatusCode)
	s.Equal("FORBIDDEN", s.errorCode(resp))

	resp = s.request(http.MethodPost, "/api/v1/users/login", dto.LoginRequest{Username: "nobody", Password: "secret1"})
	s.Equal(http.StatusNotFound, resp.StatusCode)

	s.request(http.MethodGet, "/api/v1/users/verify-email/"+s.mailedToken("verify-email"), nil)
	resp = s.request(http.MethodPost, "/api/v1/users/login", dto.LoginRequest{Username: "carol", Password: "wrong-password"})
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *Suite) TestAccountLifecycle() {
	user := s.register("alice", "alice@x.com", "secret1")
	s.False(user.Verification)

	token := s.mailedToken("verify-email")
	for i := 0; i < 2; i++ {
		resp := s.request(http.MethodGet, "/api/v1/users/verify-email/"+token, nil)
		s.Equal(http.StatusOK, resp.StatusCode)
	}

	access, refresh := s.login("alice", "secret1")
	s.Require().NotNil(access)
	s.Require().NotNil(refresh)
	s.True(access.HttpOnly)
	s.Require().NotNil(s.storedRefreshToken(user.ID))
	s.Equal(refresh.Value, *s.storedRefreshToken(user.ID))

	resp := s.request(http.MethodGet, "/api/v1/users/verify", nil, access)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var me userEnvelope
	s.decode(resp, &me)
	s.True(me.Data.Verification)

	resp = s.request(http.MethodPost, "/api/v1/users/logout", nil, access)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Nil(s.storedRefreshToken(user.ID))
	s.Empty(cookie(resp, "accessToken").Value)
	s.Empty(cookie(resp, "refreshToken").Value)

	resp = s.request(http.MethodPost, "/api/v1/users/refresh-token", nil, refresh)
	s.Equal(http.StatusForbidden, resp.StatusCode)
	s.Equal("INVALID_REFRESH_TOKEN", s.errorCode(resp))
}

func (s *Suite) TestUnverifiedAccountIsReaped() {
	s.register("bob", "bob@x.com", "secret1")

	s.Eventually(func() bool {
		resp := s.request(http.MethodPost, "/api/v1/users/login", dto.LoginRequest{Username: "bob", Password: "secret1"})
		return resp.StatusCode == http.StatusNotFound
	}, gracePeriod+3*time.Second, pollInterval)

	var count int
	s.Require().NoError(s.Postgres.DB.QueryRow("SELECT COUNT(*) FROM users").Scan(&count))
	s.Zero(count)
}

func (s *Suite) TestVerifiedAccountOutlivesGracePeriod() {
	s.registerVerified("dave", "dave@x.com", "secret1")

	time.Sleep(gracePeriod + 2*pollInterval)

	s.login("dave", "secret1")
}

func (s *Suite) TestRefresh_RotatesAndRejectsReplay() {
	s.registerVerified("erin", "erin@x.com", "secret1")
	_, first := s.login("erin", "secret1")
	_, second := s.login("erin", "secret1")

	resp := s.request(http.MethodPost, "/api/v1/users/refresh-token", nil, first)
	s.Equal(http.StatusForbidden, resp.StatusCode)

	resp = s.request(http.MethodPost, "/api/v1/users/refresh-token", nil, second)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var session sessionEnvelope
	s.decode(resp, &session)
	s.NotEmpty(session.Data.AccessToken)
	s.NotEqual(second.Value, session.Data.RefreshToken)

	resp = s.request(http.MethodPost, "/api/v1/users/refresh-token", nil)
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *Suite) TestPasswordReset() {
	s.registerVerified("frank", "frank@x.com", "secret1")
	_, refresh := s.login("frank", "secret1")

	resp := s.request(http.MethodPost, "/api/v1/users/forgot-password", dto.ForgotPasswordRequest{Email: "nobody@x.com"})
	s.Equal(http.StatusOK, resp.StatusCode)

	resp = s.request(http.MethodPost, "/api/v1/users/forgot-password", dto.ForgotPasswordRequest{Email: "frank@x.com"})
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	resp = s.request(http.MethodPost, "/api/v1/users/reset-password/"+s.mailedToken("reset-password"),
		dto.ResetPasswordRequest{NewPassword: "secret2"})
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	resp = s.request(http.MethodPost, "/api/v1/users/refresh-token", nil, refresh)
	s.Equal(http.StatusForbidden, resp.StatusCode)

	resp = s.request(http.MethodPost, "/api/v1/users/login", dto.LoginRequest{Username: "frank", Password: "secret1"})
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
	s.login("frank", "secret2")
}

func (s *Suite) TestChangePasswordAndUsername() {
	s.registerVerified("grace", "grace@x.com", "secret1")
	access, refresh := s.login("grace", "secret1")

	resp := s.request(http.MethodPut, "/api/v1/users/change-password",
		dto.ChangePasswordRequest{OldPassword: "wrong1", NewPassword: "secret2"}, access)
	s.Equal(http.StatusUnauthorized, resp.StatusCode)

	resp = s.request(http.MethodPut, "/api/v1/users/change-password",
		dto.ChangePasswordRequest{OldPassword: "secret1", NewPassword: "secret2"}, access)
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	resp = s.request(http.MethodPost, "/api/v1/users/refresh-token", nil, refresh)
	s.Equal(http.StatusForbidden, resp.StatusCode)

	resp = s.request(http.MethodPut, "/api/v1/users/update-username",
		dto.UpdateUsernameRequest{Username: "gracie"}, access)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var updated userEnvelope
	s.decode(resp, &updated)
	s.Equal("gracie", updated.Data.Username)

	s.login("gracie", "secret2")
}

func (s *Suite) TestDeleteAccount() {
	user := s.registerVerified("heidi", "heidi@x.com", "secret1")
	access, _ := s.login("heidi", "secret1")

	resp := s.request(http.MethodDelete, "/api/v1/users/delete-account", nil, access)
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var count int
	s.Require().NoError(s.Postgres.DB.QueryRow("SELECT COUNT(*) FROM users WHERE id = $1", user.ID).Scan(&count))
	s.Zero(count)

	resp = s.request(http.MethodGet, "/api/v1/users/verify", nil, access)
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *Suite) TestCurrentUser_Unauthenticated() {
	resp := s.request(http.MethodGet, "/api/v1/users/verify", nil)
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
	s.Equal("MISSING_TOKEN", s.errorCode(resp))

	req, err := http.NewRequest(http.MethodGet, s.BaseURL+"/api/v1/users/verify", nil)
	s.Require().NoError(err)
	req.Header.Set("Authorization", "Bearer invalid-token")
	resp, err = http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

package acceptance

import (
	"io"
	"net/http"
)

func (s *Suite) TestHealthEndpoint() {
	resp, err := http.Get(s.BaseURL + "/health")
	s.Require().NoError(err, "Failed to make request")
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode, "Expected status 200")
}

func (s *Suite) TestMetricsEndpoint() {
	s.register("ivan", "ivan@x.com", "secret1")

	resp, err := http.Get(s.BaseURL + "/metrics")
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.Contains(string(body), "auth_registrations")
}

package roster

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"classwire/pkg/types"
)

// HTTPClassSource fetches the authoritative class list from the dashboard
// REST API.
type HTTPClassSource struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClassSource builds a class source against baseURL. The token, when
// non-empty, is sent as a bearer credential.
func NewHTTPClassSource(baseURL, token string, timeout time.Duration) (*HTTPClassSource, error) {
	if baseURL == "" {
		return nil, ErrNoBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClassSource{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// FetchClasses retrieves the class list for a user.
func (s *HTTPClassSource) FetchClasses(ctx context.Context, userID int) ([]types.Class, error) {
	if userID <= 0 {
		return nil, ErrInvalidUserID
	}

	url := fmt.Sprintf("%s/api/users/%d/classes", s.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build class list request: %w", err)
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
	}

	var classes []types.Class
	if err := json.NewDecoder(resp.Body).Decode(&classes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return classes, nil
}

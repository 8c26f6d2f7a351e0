package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dmcore-backend/internal/apperr"
	"dmcore-backend/internal/config"
	"dmcore-backend/internal/logger"
	"dmcore-backend/internal/models"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

const profileTTL = 5 * time.Minute

// Client looks up display profiles in the identity provider's user store.
type Client struct {
	baseURL    string
	serviceKey string
	client     *http.Client
	log        *logger.Logger
	cache      *xsync.MapOf[uuid.UUID, cachedProfile]
	now        func() time.Time
}

type cachedProfile struct {
	profile *models.Profile
	fetched time.Time
}

type SupabaseError struct {
	StatusCode int
	Message    string
}

func (e *SupabaseError) Error() string {
	return fmt.Sprintf("supabase error (status %d): %s", e.StatusCode, e.Message)
}

func NewClient(cfg *config.Config, log *logger.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.Supabase.URL, "/"),
		serviceKey: cfg.Supabase.ServiceRoleKey,
		client:     &http.Client{Timeout: 5 * time.Second},
		log:        log.With("service", "SupabaseDirectory"),
		cache:      xsync.NewMapOf[uuid.UUID, cachedProfile](),
		now:        time.Now,
	}
}

type adminUser struct {
	ID           string                 `json:"id"`
	Email        string                 `json:"email"`
	UserMetadata map[string]interface{} `json:"user_metadata"`
}

func metaString(meta map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := meta[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// GetProfile returns the display name and avatar for userID. Results are
// cached briefly since push enrichment calls this on every offline send.
func (s *Client) GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	if c, ok := s.cache.Load(userID); ok && s.now().Sub(c.fetched) < profileTTL {
		return c.profile, nil
	}

	url := fmt.Sprintf("%s/auth/v1/admin/users/%s", s.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", s.serviceKey)
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, apperr.NotFound("user not found")
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &SupabaseError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	var u adminUser
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	profile := &models.Profile{
		ID:          userID,
		DisplayName: metaString(u.UserMetadata, "display_name", "full_name", "name"),
		Avatar:      metaString(u.UserMetadata, "avatar_url", "avatar"),
	}
	if profile.DisplayName == "" {
		profile.DisplayName, _, _ = strings.Cut(u.Email, "@")
	}

	s.cache.Store(userID, cachedProfile{profile: profile, fetched: s.now()})
	return profile, nil
}

package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"dmcore-backend/internal/models"

	"github.com/google/uuid"
)

// MediaStore keeps raw media bytes away from the messaging core: uploads
// return an opaque reference and reads go through short-lived credentials.
type MediaStore interface {
	Upload(ctx context.Context, r io.Reader, filename, contentType string) (string, error)
	SignedURL(ctx context.Context, ref string, ttl time.Duration) (*models.MediaCredential, error)
	Delete(ctx context.Context, ref string) error
}

type SupabaseStorage struct {
	URL            string
	ServiceRoleKey string
	BucketName     string
	client         *http.Client
	now            func() time.Time
}

func NewSupabaseStorage(url, serviceRoleKey, bucketName string) *SupabaseStorage {
	return &SupabaseStorage{
		URL:            strings.TrimRight(url, "/"),
		ServiceRoleKey: serviceRoleKey,
		BucketName:     bucketName,
		client:         &http.Client{Timeout: 30 * time.Second},
		now:            time.Now,
	}
}

// newRef builds an unguessable object key, keeping the original extension.
func newRef(filename string) string {
	return uuid.New().String() + strings.ToLower(filepath.Ext(filename))
}

func (s *SupabaseStorage) objectURL(parts ...string) string {
	return s.URL + "/storage/v1/object/" + strings.Join(parts, "/")
}

func (s *SupabaseStorage) do(req *http.Request, okStatus ...int) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+s.ServiceRoleKey)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	for _, code := range okStatus {
		if resp.StatusCode == code {
			return resp, nil
		}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return nil, fmt.Errorf("storage returned status %d: %s", resp.StatusCode, string(body))
}

// Upload stores the object in the private bucket and returns its reference.
func (s *SupabaseStorage) Upload(ctx context.Context, r io.Reader, filename, contentType string) (string, error) {
	ref := newRef(filename)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.objectURL(s.BucketName, ref), r)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := s.do(req, http.StatusOK, http.StatusCreated)
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}
	resp.Body.Close()
	return ref, nil
}

type signRequest struct {
	ExpiresIn int `json:"expiresIn"`
}

type signResponse struct {
	SignedURL string `json:"signedURL"`
}

// SignedURL asks storage for a read URL that stops working after ttl.
func (s *SupabaseStorage) SignedURL(ctx context.Context, ref string, ttl time.Duration) (*models.MediaCredential, error) {
	seconds := int(ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	body, err := json.Marshal(signRequest{ExpiresIn: seconds})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.objectURL("sign", s.BucketName, ref), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create sign request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	issued := s.now()
	resp, err := s.do(req, http.StatusOK)
	if err != nil {
		return nil, fmt.Errorf("failed to sign media: %w", err)
	}
	defer resp.Body.Close()

	var out signResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode sign response: %w", err)
	}
	if out.SignedURL == "" {
		return nil, fmt.Errorf("storage returned an empty signed url")
	}
	return &models.MediaCredential{
		URL:       s.URL + "/storage/v1" + out.SignedURL,
		ExpiresAt: issued.Add(time.Duration(seconds) * time.Second),
	}, nil
}

func (s *SupabaseStorage) Delete(ctx context.Context, ref string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.objectURL(s.BucketName, ref), nil)
	if err != nil {
		return fmt.Errorf("failed to create delete request: %w", err)
	}
	resp, err := s.do(req, http.StatusOK, http.StatusNoContent)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	resp.Body.Close()
	return nil
}

package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dmcore-backend/internal/apperr"
	"dmcore-backend/internal/config"
	"dmcore-backend/internal/logger"
	"dmcore-backend/internal/models"

	"golang.org/x/crypto/hkdf"
)

const mediaKeyInfo = "dmcore media url signing v1"

// LocalStorage keeps media on disk and signs read URLs with HMAC. It backs
// development setups without a storage bucket.
type LocalStorage struct {
	dir     string
	baseURL string
	key     []byte
	now     func() time.Time
}

// NewLocalStorage derives the signing key from secret so media links cannot
// be forged with the raw token secret.
func NewLocalStorage(dir, baseURL string, secret []byte) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(mediaKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive media key: %w", err)
	}
	return &LocalStorage{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		now:     time.Now,
	}, nil
}

func validRef(ref string) bool {
	return ref != "" && ref != "." && ref != ".." && filepath.Base(ref) == ref && !strings.ContainsAny(ref, `/\`)
}

func (s *LocalStorage) Upload(ctx context.Context, r io.Reader, filename, _ string) (string, error) {
	ref := newRef(filename)
	f, err := os.OpenFile(filepath.Join(s.dir, ref), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return "", fmt.Errorf("failed to create media file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write media file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return ref, ctx.Err()
}

func (s *LocalStorage) sign(ref string, expires int64) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(ref))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *LocalStorage) SignedURL(_ context.Context, ref string, ttl time.Duration) (*models.MediaCredential, error) {
	if !validRef(ref) {
		return nil, apperr.InvalidArg("invalid media reference")
	}
	expiresAt := s.now().Add(ttl).Truncate(time.Second)
	expires := expiresAt.Unix()

	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("sig", s.sign(ref, expires))
	return &models.MediaCredential{
		URL:       s.baseURL + "/media/" + url.PathEscape(ref) + "?" + q.Encode(),
		ExpiresAt: expiresAt,
	}, nil
}

// Verify checks a signed link produced by SignedURL.
func (s *LocalStorage) Verify(ref, expires, sig string) error {
	if !validRef(ref) {
		return apperr.NotFound("media not found")
	}
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return apperr.Unauthorized("invalid media link")
	}
	if !hmac.Equal([]byte(sig), []byte(s.sign(ref, exp))) {
		return apperr.Unauthorized("invalid media link")
	}
	if !s.now().Before(time.Unix(exp, 0)) {
		return apperr.AlreadyExpired("media link expired")
	}
	return nil
}

// Open returns the stored file. Callers verify the link first.
func (s *LocalStorage) Open(ref string) (*os.File, error) {
	if !validRef(ref) {
		return nil, apperr.NotFound("media not found")
	}
	f, err := os.Open(filepath.Join(s.dir, ref))
	if os.IsNotExist(err) {
		return nil, apperr.NotFound("media not found")
	}
	return f, err
}

func (s *LocalStorage) Delete(_ context.Context, ref string) error {
	if !validRef(ref) {
		return apperr.InvalidArg("invalid media reference")
	}
	err := os.Remove(filepath.Join(s.dir, ref))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// New picks the bucket-backed store when SUPABASE_URL is set and the local
// one otherwise.
func New(cfg *config.Config, log *logger.Logger) (MediaStore, error) {
	if cfg.Supabase.URL != "" {
		log.Info("Media storage: supabase bucket", "bucket", cfg.Supabase.Bucket)
		return NewSupabaseStorage(cfg.Supabase.URL, cfg.Supabase.ServiceRoleKey, cfg.Supabase.Bucket), nil
	}
	log.Warn("SUPABASE_URL not set; serving media from local disk", "dir", cfg.Supabase.LocalMediaDir)
	return NewLocalStorage(cfg.Supabase.LocalMediaDir, cfg.Supabase.PublicURL, []byte(cfg.JWT.Secret))
}

package supabase

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"dmcore-backend/internal/apperr"
	"dmcore-backend/internal/config"
	"dmcore-backend/internal/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetProfile(t *testing.T) {
	known := uuid.New()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "Bearer svc", r.Header.Get("Authorization"))
		if r.URL.Path != "/auth/v1/admin/users/"+known.String() {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"id":"` + known.String() + `","email":"ada@example.com","user_metadata":{"full_name":"Ada","avatar_url":"https://img/ada.png"}}`))
	}))
	defer srv.Close()

	c := NewClient(&config.Config{Supabase: config.SupabaseConfig{URL: srv.URL, ServiceRoleKey: "svc"}}, logger.Nop())

	p, err := c.GetProfile(context.Background(), known)
	require.NoError(t, err)
	assert.Equal(t, "Ada", p.DisplayName)
	assert.Equal(t, "https://img/ada.png", p.Avatar)

	_, err = c.GetProfile(context.Background(), known)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	_, err = c.GetProfile(context.Background(), uuid.New())
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

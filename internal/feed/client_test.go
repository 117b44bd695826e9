package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carelink/internal/domain"
)

func TestClientGetPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "sync-user", user)
		assert.Equal(t, "sync-pass", pass)
		assert.Equal(t, "/ws/atomfeed/patient/recent", r.URL.Path)

		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer server.Close()

	client := NewClient(domain.Endpoint{
		BaseURL:  server.URL,
		Username: "sync-user",
		Password: "sync-pass",
	}, 5*time.Second, zap.NewNop())

	page, err := client.GetPage(context.Background(), RecentPage)
	require.NoError(t, err)
	assert.Equal(t, "17", page.Via)
	require.Len(t, page.Entries, 1)
}

func TestClientGetPageServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(domain.Endpoint{BaseURL: server.URL}, 5*time.Second, zap.NewNop())

	_, err := client.GetPage(context.Background(), "17")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

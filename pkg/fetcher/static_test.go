package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "ABC123"})
		_, _ = w.Write([]byte("<html><body>cookie=" + r.Header.Get("Cookie") + "</body></html>"))
	})
	mux.HandleFunc("/form", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_ = r.ParseForm()
		_, _ = w.Write([]byte("<html><body>page=" + r.PostForm.Get("page") + "</body></html>"))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	mux.HandleFunc("/redirect", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "R1"})
		http.Redirect(w, r, "/plain", http.StatusFound)
	})
	mux.HandleFunc("/plain", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>plain</body></html>"))
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// --- Session Tests ---

func TestSession_CookieHeader(t *testing.T) {
	assert.Equal(t, "", Session{}.CookieHeader())
	assert.Equal(t, "JSESSIONID=XYZ", Session{ID: "XYZ"}.CookieHeader())
}

// --- StaticFetcher Tests ---

func TestNewStatic_Defaults(t *testing.T) {
	f := NewStatic(StaticConfig{})
	assert.Equal(t, DefaultUserAgent, f.config.UserAgent)
	assert.Equal(t, 30*time.Second, f.config.Timeout)
	assert.Equal(t, "static", f.Type())
	assert.NoError(t, f.Close())
}

func TestStaticFetcher_Get_SendsSessionCookie(t *testing.T) {
	srv := newTestServer(t)
	f := NewStatic(StaticConfig{Timeout: 5 * time.Second})

	content, err := f.Get(context.Background(), Session{ID: "S1"}, srv.URL+"/page")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, content.StatusCode)
	assert.Contains(t, content.HTML, "cookie=JSESSIONID=S1")

	id, ok := content.Cookie(SessionCookie)
	require.True(t, ok)
	assert.Equal(t, "ABC123", id)
}

func TestStaticFetcher_Get_NoSession(t *testing.T) {
	srv := newTestServer(t)
	f := NewStatic(StaticConfig{Timeout: 5 * time.Second})

	content, err := f.Get(context.Background(), Session{}, srv.URL+"/page")
	require.NoError(t, err)
	assert.Contains(t, content.HTML, "cookie=</body>")
}

func TestStaticFetcher_Post_SendsForm(t *testing.T) {
	srv := newTestServer(t)
	f := NewStatic(StaticConfig{Timeout: 5 * time.Second})

	for _, page := range []string{"1", "2", "2"} {
		content, err := f.Post(context.Background(), Session{ID: "S1"}, srv.URL+"/form", map[string]string{"page": page})
		require.NoError(t, err)
		assert.Contains(t, content.HTML, "page="+page)
	}
}

func TestStaticFetcher_NonOKStatus_IsFetchError(t *testing.T) {
	srv := newTestServer(t)
	f := NewStatic(StaticConfig{Timeout: 5 * time.Second})

	_, err := f.Get(context.Background(), Session{}, srv.URL+"/missing")
	require.Error(t, err)
	assert.True(t, IsFetchError(err))

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
	assert.Equal(t, http.MethodGet, fe.Method)
}

func TestStaticFetcher_TransportError_IsFetchError(t *testing.T) {
	srv := newTestServer(t)
	url := srv.URL
	srv.Close()

	f := NewStatic(StaticConfig{Timeout: 2 * time.Second})
	_, err := f.Get(context.Background(), Session{}, url+"/page")
	require.Error(t, err)
	assert.True(t, IsFetchError(err))
}

func TestStaticFetcher_CancelledContext_NotFetchError(t *testing.T) {
	f := NewStatic(StaticConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Get(ctx, Session{}, "http://127.0.0.1:1/never")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsFetchError(err))
}

func TestStaticFetcher_KeepsCookiesFromRedirects(t *testing.T) {
	srv := newTestServer(t)
	f := NewStatic(StaticConfig{Timeout: 5 * time.Second})

	content, err := f.Get(context.Background(), Session{}, srv.URL+"/redirect")
	require.NoError(t, err)
	assert.Contains(t, content.HTML, "plain")

	id, ok := content.Cookie(SessionCookie)
	require.True(t, ok)
	assert.Equal(t, "R1", id)
}

func TestStaticFetcher_CancelDuringRequest(t *testing.T) {
	srv := newTestServer(t)
	f := NewStatic(StaticConfig{Timeout: 10 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := f.Get(ctx, Session{}, srv.URL+"/slow")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsFetchError(err))
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestContent_CookieLastWins(t *testing.T) {
	c := Content{Cookies: []*http.Cookie{
		{Name: SessionCookie, Value: "first"},
		{Name: "other", Value: "x"},
		{Name: SessionCookie, Value: "second"},
	}}
	id, ok := c.Cookie(SessionCookie)
	require.True(t, ok)
	assert.Equal(t, "second", id)

	_, ok = c.Cookie("missing")
	assert.False(t, ok)
}

func TestFetchError_Message(t *testing.T) {
	err := &FetchError{Method: "POST", URL: "http://x/p", StatusCode: 500, Err: ErrUnexpectedStatus}
	assert.Equal(t, "POST http://x/p: status 500: unexpected status", err.Error())
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}

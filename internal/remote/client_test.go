package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/legisync/internal/cache"
	"golang.org/x/oauth2"
)

func TestClientGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/deputados":
			assert.Equal(t, "57", r.URL.Query().Get("idLegislatura"))
			assert.Equal(t, "Bearer tkn", r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"dados":[]}`))
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`not here`))
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	client := NewClient(&Config{BaseURL: srv.URL + "/", Timeout: 2 * time.Second, Tokens: staticToken("tkn")})
	ctx := context.Background()

	body, err := client.Get(ctx, "/deputados", url.Values{"idLegislatura": {"57"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"dados":[]}`, string(body))

	_, err = client.Get(ctx, "/missing", nil)
	var re *Error
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusNotFound, re.StatusCode)
	assert.Equal(t, "not here", re.Body)
	assert.False(t, IsRetryable(err))

	_, err = client.Get(ctx, "/broken", nil)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, http.StatusBadGateway, StatusCode(err))
}

func TestClientNoResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	client := NewClient(&Config{BaseURL: addr, Timeout: time.Second})
	_, err := client.Get(context.Background(), "/deputados", nil)

	var re *Error
	require.True(t, errors.As(err, &re))
	assert.True(t, re.NoResponse)
	assert.True(t, IsRetryable(err))
}

func TestIsRetryable(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "no response", err: &Error{NoResponse: true, Err: errors.New("reset")}, want: true},
		{name: "500", err: &Error{StatusCode: 500}, want: true},
		{name: "503", err: &Error{StatusCode: 503}, want: true},
		{name: "429", err: &Error{StatusCode: 429}, want: true},
		{name: "408", err: &Error{StatusCode: 408}, want: true},
		{name: "400", err: &Error{StatusCode: 400}, want: false},
		{name: "404", err: &Error{StatusCode: 404}, want: false},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: false},
		{name: "unknown", err: errors.New("boom"), want: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsRetryable(tc.err))
		})
	}
}

func TestCachedTokenProviderReusesToken(t *testing.T) {
	calls := 0
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	source := func(ctx context.Context) (*oauth2.Token, error) {
		calls++
		return &oauth2.Token{AccessToken: "t1", Expiry: now.Add(time.Hour)}, nil
	}

	tokenCache := cache.NewMemoryCache().WithClock(func() time.Time { return now })
	p := newCachedTokenProvider(source, tokenCache, "token:test", time.Minute, 0)
	p.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		tok, err := p.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "t1", tok)
	}
	assert.Equal(t, 1, calls)

	now = now.Add(59 * time.Minute)
	_, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "token must be refreshed once inside the skew window")
}

func TestRejectedTokenIsTerminal(t *testing.T) {
	var apiCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}
		apiCalls++
	}))
	defer srv.Close()

	tokens := NewTokenProvider(&TokenConfig{
		TokenURL:     srv.URL + "/token",
		ClientID:     "legisync",
		ClientSecret: "wrong",
	}, cache.NewMemoryCache())
	client := NewClient(&Config{BaseURL: srv.URL, Timeout: 2 * time.Second, Tokens: tokens})

	_, err := client.Get(context.Background(), "/deputados", nil)
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
	assert.Equal(t, http.StatusUnauthorized, StatusCode(err))
	assert.Zero(t, apiCalls)

	var re *oauth2.RetrieveError
	assert.ErrorAs(t, err, &re)
}

type staticToken string

func (s staticToken) Token(context.Context) (string, error) { return string(s), nil }

package reddit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmbot/dmbot/internal/config"
)

type fakeReddit struct {
	tokenCalls   atomic.Int32
	composeCalls atomic.Int32
	rejectToken  atomic.Bool
	expireOnce   atomic.Bool

	mu          sync.Mutex
	lastForm    url.Values
	composeBody string
}

func (f *fakeReddit) setComposeBody(body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.composeBody = body
}

func (f *fakeReddit) form() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastForm
}

func (f *fakeReddit) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "cid", user)
		require.Equal(t, "csecret", pass)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "password", r.Form.Get("grant_type"))
		if f.rejectToken.Load() {
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"bearer","expires_in":3600,"scope":"*"}`))
	})
	mux.HandleFunc("/api/v1/me", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"name":"dmbot_account"}`))
	})
	mux.HandleFunc("/api/compose", func(w http.ResponseWriter, r *http.Request) {
		f.composeCalls.Add(1)
		if f.expireOnce.CompareAndSwap(true, false) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		require.NoError(t, r.ParseForm())
		f.mu.Lock()
		f.lastForm = r.PostForm
		body := f.composeBody
		f.mu.Unlock()
		if body == "" {
			body = `{"json":{"errors":[]}}`
		}
		_, _ = w.Write([]byte(body))
	})
	mux.HandleFunc("/r/golang/new", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "2", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"kind":"Listing","data":{"children":[
			{"kind":"t3","data":{"id":"a1","name":"t3_a1","author":"alice","title":"Hello","selftext":"first post","subreddit":"golang"}},
			{"kind":"t1","data":{"id":"c1"}},
			{"kind":"t3","data":{"id":"a2","name":"t3_a2","author":"[deleted]","title":"Gone"}}
		]}}`))
	})
	mux.HandleFunc("/r/broken/new", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Ratelimit-Reset", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	return mux
}

func newTestClient(t *testing.T) (*Client, *fakeReddit) {
	t.Helper()
	fake := &fakeReddit{}
	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)

	client := NewClient(config.RedditConfig{
		Username:          "bot",
		Password:          "pw",
		ClientID:          "cid",
		ClientSecret:      "csecret",
		AuthURL:           server.URL,
		APIURL:            server.URL,
		RequestsPerMinute: 600000,
		MessageSubject:    "Hi",
	})
	client.HTTPClient = server.Client()
	return client, fake
}

func TestAuthenticate(t *testing.T) {
	client, fake := newTestClient(t)

	name, err := client.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "dmbot_account", name)
	assert.Equal(t, int32(1), fake.tokenCalls.Load())

	// The cached token is reused.
	_, err = client.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), fake.tokenCalls.Load())
}

func TestAuthenticateRejected(t *testing.T) {
	client, fake := newTestClient(t)
	fake.rejectToken.Store(true)

	_, err := client.Authenticate(context.Background())
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "invalid_grant", apiErr.Code)
}

func TestMissingCredentials(t *testing.T) {
	client := NewClient(config.RedditConfig{})
	assert.False(t, client.HasCredentials())
	err := client.SendDirectMessage(context.Background(), "alice", "hi")
	assert.ErrorIs(t, err, ErrNoCredentials)

	client.SetCredentials(Credentials{Username: "u", Password: "p", ClientID: "c", ClientSecret: "s"})
	assert.True(t, client.HasCredentials())
}

func TestSendDirectMessage(t *testing.T) {
	client, fake := newTestClient(t)

	require.NoError(t, client.SendDirectMessage(context.Background(), "u/alice", "hello there"))
	assert.Equal(t, "alice", fake.form().Get("to"))
	assert.Equal(t, "Hi", fake.form().Get("subject"))
	assert.Equal(t, "hello there", fake.form().Get("text"))
	assert.Equal(t, "json", fake.form().Get("api_type"))
}

func TestSendDirectMessageBodyError(t *testing.T) {
	client, fake := newTestClient(t)
	fake.setComposeBody(`{"json":{"errors":[["USER_DOESNT_EXIST","that user doesn't exist","to"]]}}`)

	err := client.SendDirectMessage(context.Background(), "ghost", "hi")
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "USER_DOESNT_EXIST", apiErr.Code)
	assert.False(t, apiErr.Temporary())
}

func TestSendDirectMessageRefreshesExpiredToken(t *testing.T) {
	client, fake := newTestClient(t)
	_, err := client.Authenticate(context.Background())
	require.NoError(t, err)

	fake.expireOnce.Store(true)
	require.NoError(t, client.SendDirectMessage(context.Background(), "alice", "hi"))
	assert.Equal(t, int32(2), fake.tokenCalls.Load())
	assert.Equal(t, int32(2), fake.composeCalls.Load())
}

func TestNewSubmissions(t *testing.T) {
	client, _ := newTestClient(t)

	subs, err := client.NewSubmissions(context.Background(), "golang", 2)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "alice", subs[0].Author)
	assert.Equal(t, "first post", subs[0].SelfText)
	assert.True(t, subs[0].HasAuthor())
	assert.False(t, subs[1].HasAuthor())
}

func TestNewSubmissionsRateLimited(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.NewSubmissions(context.Background(), "broken", 5)
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.Temporary())
	assert.Equal(t, 30.0, apiErr.RetryAfter.Seconds())
}

func TestClientHonoursCancelledContext(t *testing.T) {
	client, _ := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := client.SendDirectMessage(ctx, "alice", "hi")
	require.Error(t, err)
}

package reddit

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Submission is a link or self post from a listing.
type Submission struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Author     string  `json:"author"`
	Title      string  `json:"title"`
	SelfText   string  `json:"selftext"`
	Subreddit  string  `json:"subreddit"`
	Permalink  string  `json:"permalink"`
	CreatedUTC float64 `json:"created_utc"`
}

// HasAuthor is false for deleted accounts.
func (s Submission) HasAuthor() bool {
	return s.Author != "" && s.Author != "[deleted]"
}

// APIError is a non-2xx response or an error reported in a JSON body.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString("reddit api error")
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, ": %s", e.Code)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	return b.String()
}

// Temporary reports whether a later retry may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError ||
		e.Code == "RATELIMIT"
}

func newStatusError(resp *http.Response, body []byte) *APIError {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	err := &APIError{StatusCode: resp.StatusCode, Message: msg}
	if reset := resp.Header.Get("X-Ratelimit-Reset"); reset != "" {
		if secs, convErr := strconv.ParseFloat(reset, 64); convErr == nil && secs > 0 {
			err.RetryAfter = time.Duration(secs * float64(time.Second))
		}
	}
	return err
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
	Error       string `json:"error"`
}

type listingResponse struct {
	Kind string `json:"kind"`
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Kind string     `json:"kind"`
			Data Submission `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// composeResponse carries errors as [code, message, field] triples.
type composeResponse struct {
	JSON struct {
		Errors [][]any `json:"errors"`
	} `json:"json"`
}

func (r composeResponse) err() error {
	if len(r.JSON.Errors) == 0 {
		return nil
	}
	first := r.JSON.Errors[0]
	apiErr := &APIError{StatusCode: http.StatusOK}
	if len(first) > 0 {
		apiErr.Code = fmt.Sprint(first[0])
	}
	if len(first) > 1 {
		apiErr.Message = fmt.Sprint(first[1])
	}
	return apiErr
}

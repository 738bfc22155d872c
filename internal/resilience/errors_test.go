package resilience

import (
	"errors"
	"fmt"
	"net/http"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "deadline" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("invalid input"), false},
		{"transient", NewTransientError(errors.New("x"), 503), true},
		{"wrapped transient", fmt.Errorf("call: %w", NewTransientError(errors.New("x"), 429)), true},
		{"net timeout", timeoutErr{}, true},
		{"conn reset errno", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"conn refused errno", syscall.ECONNREFUSED, true},
		{"message pattern", errors.New("write tcp: broken pipe"), true},
		{"dns", errors.New("dial: Temporary failure in name resolution"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), code)
	}
	for _, code := range []int{200, 400, 401, 403, 404, 422, 501} {
		assert.False(t, IsTransientHTTPStatus(code), code)
	}
}

func response(status int, retryAfter string) *http.Response {
	h := http.Header{}
	if retryAfter != "" {
		h.Set("Retry-After", retryAfter)
	}
	return &http.Response{StatusCode: status, Header: h}
}

func TestStatusError(t *testing.T) {
	err := StatusError("routing", response(http.StatusServiceUnavailable, ""))
	assert.True(t, IsTransient(err))
	assert.Contains(t, err.Error(), "routing returned status 503")

	var te *TransientError
	if assert.ErrorAs(t, err, &te) {
		assert.Equal(t, http.StatusServiceUnavailable, te.StatusCode)
		assert.Zero(t, te.RetryAfter)
	}

	err = StatusError("routing", response(http.StatusBadRequest, "5"))
	assert.False(t, IsTransient(err))
	assert.Zero(t, RetryAfter(err))
	assert.Contains(t, err.Error(), "status 400")
}

func TestStatusError_RetryAfter(t *testing.T) {
	err := StatusError("geocode: nominatim", response(http.StatusTooManyRequests, "2"))
	assert.True(t, IsTransient(err))
	assert.Equal(t, 2*time.Second, RetryAfter(fmt.Errorf("lookup: %w", err)))
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"3", 3 * time.Second},
		{"-1", 0},
		{"soon", 0},
		{now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second},
		{now.Add(-time.Minute).Format(http.TimeFormat), 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseRetryAfter(tt.in, now), tt.in)
	}
}

package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bbayazit16/l2savings/common"
	"github.com/stretchr/testify/require"
)

var testLog = common.GetLogger(true, false)

func newTestClient(alert func(string)) *Client {
	return NewClient(ClientOpts{
		Log:                 testLog,
		BaseDelay:           time.Millisecond,
		FailureRetryLimit:   3,
		RateLimitRetryLimit: 5,
		Alert:               alert,
	})
}

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"1","result":[]}`))
	}))
	defer srv.Close()

	var out struct {
		Status string `json:"status"`
	}
	err := newTestClient(nil).GetJSON(context.Background(), srv.URL, &out)
	require.NoError(t, err)
	require.Equal(t, "1", out.Status)
}

func TestGetJSONRetriesRateLimit(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	var out map[string]bool
	err := newTestClient(nil).GetJSON(context.Background(), srv.URL, &out)
	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.True(t, out["ok"])
}

func TestGetJSONRateLimitCeiling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	var alerts []string
	client := newTestClient(func(msg string) { alerts = append(alerts, msg) })

	err := client.GetJSON(context.Background(), srv.URL, nil)
	require.ErrorIs(t, err, ErrRateLimited)

	// second exhaustion must not alert again
	err = client.GetJSON(context.Background(), srv.URL, nil)
	require.ErrorIs(t, err, ErrRateLimited)
	require.Len(t, alerts, 1)
}

func TestGetJSONFailureCeiling(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := newTestClient(nil)
	err := client.GetJSON(context.Background(), srv.URL, nil)
	require.ErrorIs(t, err, ErrUnavailable)
	// limit of 3 retries means 4 attempts total
	require.Equal(t, 4, calls)
}

func TestGetJSONTransportFailure(t *testing.T) {
	client := newTestClient(nil)
	err := client.GetJSON(context.Background(), "http://127.0.0.1:1/nothing-here", nil)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestGetJSONCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request must not be issued with a cancelled context")
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := newTestClient(nil).GetJSON(ctx, srv.URL, nil)
	require.ErrorIs(t, err, context.Canceled)
}

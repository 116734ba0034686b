package notifier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifyDeliversOnce(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL, map[string]string{"failure": "#alerts"})

	require.NoError(t, n.Notify(context.Background(), "boom", "a.b", ClassFailure))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestNotifySuppressesDuplicateWithinWindow(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL, nil)

	require.NoError(t, n.Notify(context.Background(), "boom", "a.b", ClassFailure))
	require.NoError(t, n.Notify(context.Background(), "boom", "a.b", ClassFailure))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestNotifyDoesNotSuppressDifferentTitle(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL, nil)

	require.NoError(t, n.Notify(context.Background(), "boom", "a.b", ClassFailure))
	require.NoError(t, n.Notify(context.Background(), "boom", "a.c", ClassFailure))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

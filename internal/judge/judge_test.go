package judge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func server(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func fastOpts(base string) Options {
	return Options{BaseURL: base, Timeout: 2 * time.Second, Attempts: 3, RetryDelay: time.Millisecond}
}

func TestCodeforcesContests(t *testing.T) {
	t.Parallel()
	srv := server(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/contest.list", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"OK","result":[
			{"id":1990,"name":"Round 1","phase":"BEFORE","startTimeSeconds":1718000000},
			{"id":1989,"name":"Round 0","phase":"FINISHED","startTimeSeconds":1717000000}]}`))
	})

	got, err := NewCodeforces(fastOpts(srv.URL)).Contests(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, CFContest{ID: 1990, Name: "Round 1", Phase: "BEFORE", StartTimeSeconds: 1718000000}, got[0])
}

func TestCodeforcesStatusNotOK(t *testing.T) {
	t.Parallel()
	srv := server(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"FAILED","comment":"handle: User not found"}`))
	})
	_, err := NewCodeforces(fastOpts(srv.URL)).SolvedCount(context.Background(), "nobody")
	require.ErrorContains(t, err, "User not found")
}

func TestCodeforcesSolvedCountDistinctAccepted(t *testing.T) {
	t.Parallel()
	srv := server(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "tourist", r.URL.Query().Get("handle"))
		_, _ = w.Write([]byte(`{"status":"OK","result":[
			{"verdict":"OK","problem":{"contestId":1,"index":"A"}},
			{"verdict":"OK","problem":{"contestId":1,"index":"A"}},
			{"verdict":"WRONG_ANSWER","problem":{"contestId":1,"index":"B"}},
			{"verdict":"OK","problem":{"contestId":2,"index":"C1"}}]}`))
	})
	n, err := NewCodeforces(fastOpts(srv.URL)).SolvedCount(context.Background(), "tourist")
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestCodeforcesProblemsEmpty(t *testing.T) {
	t.Parallel()
	srv := server(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"OK","result":{"problems":[]}}`))
	})
	_, err := NewCodeforces(fastOpts(srv.URL)).Problems(context.Background())
	require.ErrorIs(t, err, ErrEmpty)
}

func TestRetriesServerErrors(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := server(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"status":"OK","result":{"problems":[{"contestId":4,"index":"A","name":"Watermelon"}]}}`))
	})
	got, err := NewCodeforces(fastOpts(srv.URL)).Problems(context.Background())
	require.NoError(t, err)
	require.Equal(t, "https://codeforces.com/problemset/problem/4/A", got[0].URL())
	require.EqualValues(t, 3, calls.Load())
}

func TestClientErrorIsNotRetried(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := server(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := NewLeetCode(fastOpts(srv.URL)).Contests(context.Background())
	require.ErrorIs(t, err, ErrNetwork)
	require.EqualValues(t, 1, calls.Load())
}

func TestLeetCodeFeed(t *testing.T) {
	t.Parallel()
	srv := server(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"name":"Weekly Contest 400","start_time":"2024-06-02T02:30:00.000Z","url":"https://leetcode.com/contest/weekly-contest-400"}]`))
	})
	got, err := NewLeetCode(fastOpts(srv.URL)).Contests(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)

	start, err := got[0].Start()
	require.NoError(t, err)
	require.True(t, start.Equal(time.Date(2024, 6, 2, 2, 30, 0, 0, time.UTC)))

	_, err = LCContest{Name: "x", StartTime: "tomorrow"}.Start()
	require.Error(t, err)
}

func TestUnreachableIsNetworkError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	o := fastOpts(base)
	o.Attempts = 1
	_, err := NewCodeforces(o).Contests(context.Background())
	require.ErrorIs(t, err, ErrNetwork)
}

package fetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func noSleep(calls *int32) func(context.Context, time.Duration) error {
	return recordSleep(calls, nil)
}

// recordSleep counts waits and, when waits is non-nil, records each requested duration.
func recordSleep(calls *int32, waits *[]time.Duration) func(context.Context, time.Duration) error {
	var mu sync.Mutex
	return func(_ context.Context, d time.Duration) error {
		atomic.AddInt32(calls, 1)
		if waits != nil {
			mu.Lock()
			*waits = append(*waits, d)
			mu.Unlock()
		}
		return nil
	}
}

func TestFetchReturnsLines(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("# header\r\n10.0.0.1\n10.0.0.0/30\n"))
	}))
	defer srv.Close()

	res := New().Fetch(context.Background(), srv.URL)
	if res.Failed || res.Err != nil {
		t.Fatalf("Fetch failed: %v", res.Err)
	}
	want := []string{"# header", "10.0.0.1", "10.0.0.0/30"}
	if !reflect.DeepEqual(res.Lines, want) {
		t.Fatalf("Fetch lines = %q, want %q", res.Lines, want)
	}
	if res.Attempts != 1 {
		t.Fatalf("Fetch attempts = %d, want 1", res.Attempts)
	}
	if gotUA != DefaultUserAgent {
		t.Fatalf("User-Agent = %q, want %q", gotUA, DefaultUserAgent)
	}
}

func TestFetchRetriesThenSucceeds(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("1.2.3.4"))
	}))
	defer srv.Close()

	var sleeps int32
	var waits []time.Duration
	res := New(WithSleep(recordSleep(&sleeps, &waits))).Fetch(context.Background(), srv.URL)
	if res.Failed {
		t.Fatalf("Fetch failed: %v", res.Err)
	}
	if res.Attempts != 3 || sleeps != 2 {
		t.Fatalf("Fetch attempts = %d sleeps = %d, want 3 and 2", res.Attempts, sleeps)
	}
	for i, d := range waits {
		if d != DefaultBackoff {
			t.Fatalf("wait %d = %s, want %s", i, d, DefaultBackoff)
		}
	}
	if !reflect.DeepEqual(res.Lines, []string{"1.2.3.4"}) {
		t.Fatalf("Fetch lines = %q", res.Lines)
	}
}

func TestFetchExhaustsAttempts(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	var sleeps int32
	res := New(WithSleep(noSleep(&sleeps))).Fetch(context.Background(), srv.URL)
	if !res.Failed {
		t.Fatal("Fetch did not report failure")
	}
	if res.Lines == nil || len(res.Lines) != 0 {
		t.Fatalf("Fetch lines = %#v, want empty non-nil slice", res.Lines)
	}
	if hits := atomic.LoadInt32(&hits); hits != 3 || sleeps != 2 {
		t.Fatalf("hits = %d sleeps = %d, want 3 and 2", hits, sleeps)
	}
	if res.Err == nil || !strings.Contains(res.Err.Error(), "404") {
		t.Fatalf("Fetch error = %v, want status 404", res.Err)
	}
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	var sleeps int32
	f := New(WithTimeout(50*time.Millisecond), WithAttempts(2), WithSleep(noSleep(&sleeps)))
	res := f.Fetch(context.Background(), srv.URL)
	if !res.Failed || res.Attempts != 2 {
		t.Fatalf("Fetch = %+v, want failure after 2 attempts", res)
	}
}

func TestFetchBlockedHost(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	f := New(WithBlocklist(func(string) bool { return true }))
	res := f.Fetch(context.Background(), srv.URL)
	if !res.Failed || !errors.Is(res.Err, ErrHostBlocked) {
		t.Fatalf("Fetch = %+v, want ErrHostBlocked", res)
	}
	if hits := atomic.LoadInt32(&hits); hits != 0 {
		t.Fatalf("blocked host was contacted %d times", hits)
	}
}

func TestFetchCanceledContextStopsRetrying(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "fail", http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := New().Fetch(ctx, srv.URL)
	if !res.Failed || res.Attempts != 1 {
		t.Fatalf("Fetch = %+v, want failure after 1 attempt", res)
	}
}

func TestFetchTruncatesOversizeBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("1.1.1.1\n2.2.2.2\n"))
	}))
	defer srv.Close()

	res := New(WithMaxBodyBytes(8)).Fetch(context.Background(), srv.URL)
	if !reflect.DeepEqual(res.Lines, []string{"1.1.1.1"}) {
		t.Fatalf("Fetch lines = %q, want [1.1.1.1]", res.Lines)
	}
}

func TestFetchTruncationKeepsWholeLines(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		limit int64
		want  []string
	}{
		{"cidr crosses cap", "10.0.0.1\n10.0.0.0/24\n", 19, []string{"10.0.0.1"}},
		{"address crosses cap", "1.1.1.1\n10.0.0.12\n", 16, []string{"1.1.1.1"}},
		{"cap ends at line break", "10.0.0.1\n10.0.0.0/24\n", 20, []string{"10.0.0.1", "10.0.0.0/24"}},
		{"cap ends after crlf", "10.0.0.1\r\n10.0.0.2\r\n", 10, []string{"10.0.0.1"}},
		{"first line longer than cap", "10.0.0.0/24\n", 5, []string{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			res := New(WithMaxBodyBytes(tc.limit)).Fetch(context.Background(), srv.URL)
			if res.Failed {
				t.Fatalf("Fetch failed: %v", res.Err)
			}
			if !reflect.DeepEqual(res.Lines, tc.want) {
				t.Fatalf("Fetch lines = %q, want %q", res.Lines, tc.want)
			}
		})
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestFetchUsesCustomClient(t *testing.T) {
	var gotURL string
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		gotURL = r.URL.String()
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"text/plain"}},
			Body:       io.NopCloser(strings.NewReader("192.0.2.1\n")),
			Request:    r,
		}, nil
	})}

	res := New(WithHTTPClient(client), WithTimeout(time.Second)).Fetch(context.Background(), "http://feeds.invalid/list.txt")
	if res.Failed {
		t.Fatalf("Fetch failed: %v", res.Err)
	}
	if gotURL != "http://feeds.invalid/list.txt" {
		t.Fatalf("transport saw %q", gotURL)
	}
	if !reflect.DeepEqual(res.Lines, []string{"192.0.2.1"}) {
		t.Fatalf("Fetch lines = %q", res.Lines)
	}
	if client.Timeout != 0 {
		t.Fatalf("caller's client timeout changed to %s", client.Timeout)
	}
}

func TestDecode(t *testing.T) {
	t.Run("drops invalid utf-8", func(t *testing.T) {
		if got := Decode([]byte("1.2.3.4\xff\xfe"), ""); got != "1.2.3.4" {
			t.Fatalf("Decode = %q, want 1.2.3.4", got)
		}
	})

	t.Run("honours declared charset", func(t *testing.T) {
		got := Decode([]byte("caf\xe9"), "text/plain; charset=iso-8859-1")
		if got != "café" {
			t.Fatalf("Decode = %q, want café", got)
		}
	})

	t.Run("unknown charset falls back", func(t *testing.T) {
		if got := Decode([]byte("ok"), "text/plain; charset=bogus"); got != "ok" {
			t.Fatalf("Decode = %q, want ok", got)
		}
	})
}

func TestSplitLines(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", []string{}},
		{"a", []string{"a"}},
		{"a\n", []string{"a"}},
		{"a\n\nb", []string{"a", "", "b"}},
		{"a\r\nb\rc", []string{"a", "b", "c"}},
		{"a\vb\fc\x1cd", []string{"a", "b", "c", "d"}},
		{"a\u2028b\u0085c", []string{"a", "b", "c"}},
	}

	for _, tc := range cases {
		if got := SplitLines(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("SplitLines(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

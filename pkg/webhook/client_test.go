package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func jsonDecode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func TestClientStream_DeliversLinesInOrder(t *testing.T) {
	lines := []string{
		`{"type":"start","metadata":{}}`,
		`{"type":"item","content":"a","metadata":{}}`,
		`{"type":"item","content":"b","metadata":{}}`,
		`{"type":"end","metadata":{}}`,
	}
	var gotAuth, gotContentType string
	var gotPayload Payload
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, jsonDecode(r, &gotPayload))
		fl, ok := w.(http.Flusher)
		require.True(t, ok)
		for _, l := range lines {
			fmt.Fprintln(w, l)
			fl.Flush()
		}
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "user", "secret")
	var got []string
	err := c.Stream(context.Background(), Payload{SessionID: "s1", Message: "hi"}, func(line string) {
		got = append(got, line)
	})
	require.NoError(t, err)
	require.Equal(t, lines, got)
	require.NotEmpty(t, gotAuth)
	require.Equal(t, "application/json", gotContentType)
	require.Equal(t, "s1", gotPayload.SessionID)
	require.Equal(t, "hi", gotPayload.Message)
}

func TestClientStream_NonSuccessStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "user", "secret")
	err := c.Stream(context.Background(), Payload{}, func(string) {
		t.Fatal("no lines expected")
	})
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	require.Equal(t, ErrNonSuccessStatus, terr.Kind)
	require.Equal(t, http.StatusForbidden, terr.Status)
}

func TestClientStream_ConnectionFailed(t *testing.T) {
	// closed port
	c := NewClient("http://127.0.0.1:1", "user", "secret", WithTimeout(2*time.Second))
	err := c.Stream(context.Background(), Payload{}, func(string) {})
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	require.Equal(t, ErrConnectionFailed, terr.Kind)
}

func TestClientStream_TimeoutMidStream(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fl := w.(http.Flusher)
		fmt.Fprintln(w, `{"type":"start","metadata":{}}`)
		fl.Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "user", "secret", WithTimeout(100*time.Millisecond))
	var got []string
	err := c.Stream(context.Background(), Payload{}, func(line string) {
		got = append(got, line)
	})
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	require.Equal(t, ErrTimeout, terr.Kind)
	require.Len(t, got, 1)
}

func TestTransportError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &TransportError{Kind: ErrConnectionFailed, Err: cause}
	require.ErrorIs(t, err, cause)
}

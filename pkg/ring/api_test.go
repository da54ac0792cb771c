package ring

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*RestClient, *[]string) {
	var tokens []string

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(AuthTokenResponse{
			AccessToken: "access", RefreshToken: "refresh2", ExpiresIn: 3600,
		})
	})
	mux.HandleFunc("/", handler)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := NewRestClient(RefreshTokenAuth{RefreshToken: "refresh1"}, func(token string) {
		tokens = append(tokens, token)
	})
	require.Nil(t, err)

	client.Endpoints = Endpoints{
		OAuth:     srv.URL + "/oauth",
		ClientAPI: srv.URL + "/clients_api/",
		AppAPI:    srv.URL + "/api/v1/",
		Snapshots: srv.URL + "/snapshots/",
	}

	return client, &tokens
}

func TestGetSocketTicket(t *testing.T) {
	client, tokens := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST", r.Method)
		require.Equal(t, "/api/v1/clap/ticket/request/signalsocket", r.URL.Path)
		require.Equal(t, "Bearer access", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"ticket":"abc","response_timestamp":1}`))
	})

	ticket, err := client.GetSocketTicket(context.Background())
	require.Nil(t, err)
	require.Equal(t, "abc", ticket)

	// refreshed token persisted in encoded form
	require.Len(t, *tokens, 1)
	b, err := base64.StdEncoding.DecodeString((*tokens)[0])
	require.Nil(t, err)
	var config AuthConfig
	require.Nil(t, json.Unmarshal(b, &config))
	require.Equal(t, "refresh2", config.RT)
	require.Equal(t, client.HardwareID(), config.HID)
}

func TestGetSocketTicketForbidden(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := client.GetSocketTicket(context.Background())
	require.True(t, errors.Is(err, ErrForbidden))

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	require.Equal(t, http.StatusForbidden, httpErr.StatusCode)
}

func TestGetSocketTicketEmpty(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	_, err := client.GetSocketTicket(context.Background())
	require.NotNil(t, err)
	require.False(t, errors.Is(err, ErrForbidden))
}

func TestRequestUnauthorizedRefresh(t *testing.T) {
	var calls int
	client, tokens := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"doorbots":[{"id":1}],"stickup_cams":[{"id":2}]}`))
	})

	devices, err := client.FetchDevices(context.Background())
	require.Nil(t, err)
	require.Len(t, devices.AllCameras(), 2)
	require.Equal(t, 2, calls)
	require.Len(t, *tokens, 2)
}

func TestGetHistoryAndRecording(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/clients_api/doorbots/7/history":
			require.Equal(t, "motion", r.URL.Query().Get("kind"))
			require.Equal(t, "3", r.URL.Query().Get("limit"))
			_, _ = w.Write([]byte(`[{"id":30,"kind":"motion"},{"id":20,"kind":"motion"}]`))
		case "/clients_api/dings/20/share/play":
			_, _ = w.Write([]byte(`{"url":"https://example.com/20.mp4"}`))
		case "/clients_api/dings/20/recording":
			_, _ = w.Write([]byte(`{"url":"https://example.com/20-raw.mp4"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	ctx := context.Background()

	events, err := client.GetHistory(ctx, 7, "motion", 3)
	require.Nil(t, err)
	require.Len(t, events, 2)
	require.Equal(t, int64(20), events[1].ID)

	url, err := client.GetRecordingURL(ctx, 20, true)
	require.Nil(t, err)
	require.Equal(t, "https://example.com/20.mp4", url)

	url, err = client.GetRecordingURL(ctx, 20, false)
	require.Nil(t, err)
	require.Equal(t, "https://example.com/20-raw.mp4", url)

	_, err = client.GetRecordingURL(ctx, 21, false)
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	require.Equal(t, http.StatusNotFound, httpErr.StatusCode)
}

func TestParseAuthConfig(t *testing.T) {
	config := parseAuthConfig("raw-token")
	require.Equal(t, "raw-token", config.RT)

	encoded := encodeAuthConfig(&AuthConfig{RT: "rt", HID: "hid"})
	config = parseAuthConfig(encoded)
	require.Equal(t, "rt", config.RT)
	require.Equal(t, "hid", config.HID)

	client, err := NewRestClient(RefreshTokenAuth{RefreshToken: encoded}, nil)
	require.Nil(t, err)
	require.Equal(t, "hid", client.HardwareID())

	_, err = NewRestClient(RefreshTokenAuth{}, nil)
	require.NotNil(t, err)
}

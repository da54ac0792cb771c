package ring

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// ErrForbidden - the account or location policy blocks the operation
// (live view disabled by Modes settings)
var ErrForbidden = errors.New("ring: forbidden")

// HTTPError is returned for responses with status code >= 400
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("ring: request failed with status %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPError) Is(target error) bool {
	return target == ErrForbidden && e.StatusCode == http.StatusForbidden
}

type RefreshTokenAuth struct {
	RefreshToken string
}

// AuthConfig represents the decoded refresh token data
type AuthConfig struct {
	RT  string `json:"rt"`  // Refresh Token
	HID string `json:"hid"` // Hardware ID
}

type AuthTokenResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
	TokenType    string `json:"token_type"`
}

type SocketTicketResponse struct {
	Ticket            string `json:"ticket"`
	ResponseTimestamp int64  `json:"response_timestamp"`
}

type CameraData struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
	DeviceID    string `json:"device_id"`
	Kind        string `json:"kind"`
	LocationID  string `json:"location_id"`
}

type DevicesResponse struct {
	Doorbots           []CameraData `json:"doorbots"`
	AuthorizedDoorbots []CameraData `json:"authorized_doorbots"`
	StickupCams        []CameraData `json:"stickup_cams"`
}

// AllCameras returns cameras from all groups
func (d *DevicesResponse) AllCameras() []CameraData {
	var cameras []CameraData
	cameras = append(cameras, d.Doorbots...)
	cameras = append(cameras, d.StickupCams...)
	return append(cameras, d.AuthorizedDoorbots...)
}

// Endpoints can be changed for tests
type Endpoints struct {
	OAuth     string
	ClientAPI string
	AppAPI    string
	Snapshots string
	Signaling string
}

var DefaultEndpoints = Endpoints{
	OAuth:     "https://oauth.ring.com/oauth/token",
	ClientAPI: "https://api.ring.com/clients_api/",
	AppAPI:    "https://prd-api-us.prd.rings.solutions/api/v1/",
	Snapshots: "https://app-snaps.ring.com/snapshots/",
	Signaling: "wss://api.prod.signalling.ring.devices.a2z.com/ws",
}

const (
	userAgent      = "android:com.ringapp"
	defaultTimeout = 20 * time.Second
	maxRetries     = 3
	retryDelay     = 5 * time.Second
)

// RestClient handles authentication and requests to Ring API
type RestClient struct {
	Endpoints Endpoints

	httpClient *http.Client
	hardwareID string

	mu         sync.Mutex
	authConfig *AuthConfig
	authToken  *AuthTokenResponse

	onTokenRefresh func(string)
}

// NewRestClient - onTokenRefresh is called with the new encoded refresh token
// every time the token is renewed, the caller should persist it
func NewRestClient(auth RefreshTokenAuth, onTokenRefresh func(string)) (*RestClient, error) {
	if auth.RefreshToken == "" {
		return nil, errors.New("ring: refresh token is required")
	}

	c := &RestClient{
		Endpoints:      DefaultEndpoints,
		httpClient:     &http.Client{Timeout: defaultTimeout},
		hardwareID:     generateHardwareID(),
		onTokenRefresh: onTokenRefresh,
		authConfig:     parseAuthConfig(auth.RefreshToken),
	}

	if c.authConfig.HID != "" {
		c.hardwareID = c.authConfig.HID
	}

	return c, nil
}

// Request makes an authenticated request to the Ring API
func (c *RestClient) Request(ctx context.Context, method, url string, body any) ([]byte, error) {
	var jsonBody []byte
	if body != nil {
		var err error
		if jsonBody, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("ring: marshal request body: %w", err)
		}
	}

	for attempt := 0; ; attempt++ {
		token, err := c.accessToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("ring: authentication failed: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(jsonBody))
		if err != nil {
			return nil, err
		}

		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("hardware_id", c.hardwareID)
		req.Header.Set("User-Agent", userAgent)

		res, err := c.httpClient.Do(req)
		if err != nil {
			if attempt == maxRetries || ctx.Err() != nil {
				return nil, fmt.Errorf("ring: request failed after %d retries: %w", attempt, err)
			}
			if err = sleep(ctx, retryDelay); err != nil {
				return nil, err
			}
			continue
		}

		b, err := io.ReadAll(res.Body)
		_ = res.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("ring: read response body: %w", err)
		}

		if res.StatusCode == http.StatusUnauthorized && attempt < maxRetries {
			// force token refresh
			c.mu.Lock()
			c.authToken = nil
			c.mu.Unlock()
			continue
		}

		if res.StatusCode >= 400 {
			return nil, &HTTPError{StatusCode: res.StatusCode, Body: string(b)}
		}

		return b, nil
	}
}

func (c *RestClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.authToken != nil {
		return c.authToken.AccessToken, nil
	}

	body, _ := json.Marshal(map[string]string{
		"client_id":     "ring_official_android",
		"scope":         "client",
		"grant_type":    "refresh_token",
		"refresh_token": c.authConfig.RT,
	})

	req, err := http.NewRequestWithContext(ctx, "POST", c.Endpoints.OAuth, bytes.NewReader(body))
	if err != nil {
		return "", err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("hardware_id", c.hardwareID)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("2fa-support", "true")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusPreconditionFailed {
		return "", errors.New("2FA required, generate a new refresh token")
	}

	if res.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(res.Body)
		return "", &HTTPError{StatusCode: res.StatusCode, Body: string(b)}
	}

	var auth AuthTokenResponse
	if err = json.NewDecoder(res.Body).Decode(&auth); err != nil {
		return "", fmt.Errorf("decode auth response: %w", err)
	}

	c.authToken = &auth
	c.authConfig = &AuthConfig{RT: auth.RefreshToken, HID: c.hardwareID}

	if c.onTokenRefresh != nil {
		c.onTokenRefresh(encodeAuthConfig(c.authConfig))
	}

	return auth.AccessToken, nil
}

// GetSocketTicket requests one-time ticket for the signaling websocket.
// Returns error matching ErrForbidden when live view is blocked.
func (c *RestClient) GetSocketTicket(ctx context.Context) (string, error) {
	b, err := c.Request(ctx, "POST", c.Endpoints.AppAPI+"clap/ticket/request/signalsocket", nil)
	if err != nil {
		return "", err
	}

	var res SocketTicketResponse
	if err = json.Unmarshal(b, &res); err != nil {
		return "", fmt.Errorf("ring: unmarshal socket ticket: %w", err)
	}

	if res.Ticket == "" {
		return "", errors.New("ring: empty socket ticket")
	}

	return res.Ticket, nil
}

func (c *RestClient) FetchDevices(ctx context.Context) (*DevicesResponse, error) {
	b, err := c.Request(ctx, "GET", c.Endpoints.ClientAPI+"ring_devices", nil)
	if err != nil {
		return nil, err
	}

	var devices DevicesResponse
	if err = json.Unmarshal(b, &devices); err != nil {
		return nil, fmt.Errorf("ring: unmarshal devices: %w", err)
	}

	return &devices, nil
}

// GetSnapshot returns the latest JPEG snapshot of the camera
func (c *RestClient) GetSnapshot(ctx context.Context, cameraID int) ([]byte, error) {
	return c.Request(ctx, "GET", c.Endpoints.Snapshots+"next/"+strconv.Itoa(cameraID), nil)
}

type HistoryEvent struct {
	ID        int64  `json:"id"`
	Kind      string `json:"kind"`
	CreatedAt string `json:"created_at"`
}

// GetHistory returns recorded events of the camera, newest first.
// Empty kind returns all kinds.
func (c *RestClient) GetHistory(ctx context.Context, cameraID int, kind string, limit int) ([]HistoryEvent, error) {
	query := url.Values{"limit": {strconv.Itoa(limit)}}
	if kind != "" {
		query.Set("kind", kind)
	}

	rawURL := c.Endpoints.ClientAPI + "doorbots/" + strconv.Itoa(cameraID) + "/history?" + query.Encode()

	b, err := c.Request(ctx, "GET", rawURL, nil)
	if err != nil {
		return nil, err
	}

	var events []HistoryEvent
	if err = json.Unmarshal(b, &events); err != nil {
		return nil, fmt.Errorf("ring: unmarshal history: %w", err)
	}

	return events, nil
}

// GetRecordingURL returns a temporary download URL of the event recording.
// The transcoded variant is H.264 even for HEVC cameras.
func (c *RestClient) GetRecordingURL(ctx context.Context, eventID int64, transcoded bool) (string, error) {
	path := "/recording?disable_redirect=true"
	if transcoded {
		path = "/share/play?disable_redirect=true"
	}

	b, err := c.Request(ctx, "GET", c.Endpoints.ClientAPI+"dings/"+strconv.FormatInt(eventID, 10)+path, nil)
	if err != nil {
		return "", err
	}

	var res struct {
		URL string `json:"url"`
	}
	if err = json.Unmarshal(b, &res); err != nil {
		return "", fmt.Errorf("ring: unmarshal recording: %w", err)
	}

	return res.URL, nil
}

func (c *RestClient) HardwareID() string {
	return c.hardwareID
}

func parseAuthConfig(refreshToken string) *AuthConfig {
	if b, err := base64.StdEncoding.DecodeString(refreshToken); err == nil {
		var config AuthConfig
		if err = json.Unmarshal(b, &config); err == nil && config.RT != "" {
			return &config
		}
	}
	// legacy format where refresh token is the raw token
	return &AuthConfig{RT: refreshToken}
}

func encodeAuthConfig(config *AuthConfig) string {
	b, _ := json.Marshal(config)
	return base64.StdEncoding.EncodeToString(b)
}

func generateHardwareID() string {
	h := sha256.Sum256([]byte("ringbridge"))
	return hex.EncodeToString(h[:16])
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

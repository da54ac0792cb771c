package ring

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ringbridge/ringbridge/internal/api"
	"github.com/ringbridge/ringbridge/internal/api/ws"
	"github.com/ringbridge/ringbridge/internal/stream"
	"github.com/ringbridge/ringbridge/pkg/ring"
)

func initAPI() {
	api.HandleFunc("api/ring", apiRing)
	api.HandleFunc("api/streams", apiStreams)
	api.HandleFunc("api/streams/overlay", apiOverlay)

	ws.HandleFunc("stream_start", wsStreamStart)
	ws.HandleFunc("stream_stop", wsStreamStop)

	OnStateChange(func(change StateChange) {
		ws.Broadcast(&ws.Message{Type: "stream_state", Value: newStreamState(change)})
	})
}

type streamInfo struct {
	ID       int                           `json:"id"`
	DeviceID string                        `json:"device_id"`
	Name     string                        `json:"name"`
	Streams  map[stream.Kind]stream.Status `json:"streams"`
}

type streamState struct {
	Camera string        `json:"camera"`
	Kind   stream.Kind   `json:"kind"`
	Status stream.Status `json:"status"`
}

func newStreamState(change StateChange) *streamState {
	return &streamState{
		Camera: change.Camera.DeviceID,
		Kind:   change.Kind,
		Status: change.Status.Public(),
	}
}

func newStreamInfo(camera *Camera) *streamInfo {
	info := &streamInfo{
		ID:       camera.ID,
		DeviceID: camera.DeviceID,
		Name:     camera.Name,
		Streams:  map[stream.Kind]stream.Status{},
	}
	for kind, status := range camera.Statuses() {
		info.Streams[kind] = status.Public()
	}
	return info
}

func apiStreams(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if r.Method == "GET" && !query.Has("camera") {
		items := []*streamInfo{}
		for _, camera := range Cameras() {
			items = append(items, newStreamInfo(camera))
		}
		api.ResponseJSON(w, items)
		return
	}

	camera := GetCamera(query.Get("camera"))
	if camera == nil {
		http.Error(w, api.CameraNotFound, http.StatusNotFound)
		return
	}

	var err error

	switch r.Method {
	case "GET":
	case "POST":
		var kind stream.Kind
		if kind, err = stream.ParseKind(query.Get("kind")); err == nil {
			if query.Has("event") {
				err = camera.SelectEvent(query.Get("event"))
			}
			if err == nil {
				err = camera.Start(r.Context(), kind)
			}
		}
	case "DELETE":
		var kind stream.Kind
		if kind, err = stream.ParseKind(query.Get("kind")); err == nil {
			err = camera.Stop(kind)
		}
	default:
		http.Error(w, "", http.StatusMethodNotAllowed)
		return
	}

	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	api.ResponseJSON(w, newStreamInfo(camera))
}

func apiOverlay(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()

	camera := GetCamera(query.Get("camera"))
	if camera == nil {
		http.Error(w, api.CameraNotFound, http.StatusNotFound)
		return
	}

	duration, err := parseSeconds(query.Get("duration"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	camera.StartOverlay(duration)
}

// apiRing lists cameras of the account in the `ring.cameras` config format
func apiRing(w http.ResponseWriter, r *http.Request) {
	ringAPI := client

	if refreshToken := r.URL.Query().Get("refresh_token"); refreshToken != "" {
		var err error
		ringAPI, err = ring.NewRestClient(ring.RefreshTokenAuth{RefreshToken: refreshToken}, nil)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	if ringAPI == nil {
		http.Error(w, "refresh_token is required", http.StatusBadRequest)
		return
	}

	devices, err := ringAPI.FetchDevices(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var items []CameraConfig
	for _, camera := range devices.AllCameras() {
		items = append(items, CameraConfig{
			ID:       camera.ID,
			DeviceID: camera.DeviceID,
			Name:     camera.Description,
		})
	}

	api.ResponseJSON(w, items)
}

type wsStreamRequest struct {
	Camera string `json:"camera"`
	Kind   string `json:"kind"`
	Event  string `json:"event,omitempty"`
}

func parseStreamRequest(msg *ws.Message) (*Camera, stream.Kind, *wsStreamRequest, error) {
	var req wsStreamRequest
	if err := msg.Unmarshal(&req); err != nil {
		return nil, "", nil, err
	}

	camera := GetCamera(req.Camera)
	if camera == nil {
		return nil, "", nil, errors.New(api.CameraNotFound)
	}

	kind, err := stream.ParseKind(req.Kind)
	if err != nil {
		return nil, "", nil, err
	}

	return camera, kind, &req, nil
}

func wsStreamStart(tr *ws.Transport, msg *ws.Message) error {
	camera, kind, req, err := parseStreamRequest(msg)
	if err != nil {
		return err
	}

	if req.Event != "" {
		if err = camera.SelectEvent(req.Event); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	tr.OnClose(cancel)
	defer cancel()

	return camera.Start(ctx, kind)
}

func wsStreamStop(_ *ws.Transport, msg *ws.Message) error {
	camera, kind, _, err := parseStreamRequest(msg)
	if err != nil {
		return err
	}
	return camera.Stop(kind)
}

const defaultOverlay = 30 * time.Second

// parseSeconds accepts "30" or "30s"
func parseSeconds(s string) (time.Duration, error) {
	if s == "" {
		return defaultOverlay, nil
	}
	if sec, err := strconv.Atoi(s); err == nil {
		return time.Duration(sec) * time.Second, nil
	}
	return time.ParseDuration(s)
}

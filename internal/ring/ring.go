package ring

import (
	"strconv"
	"sync"
	"time"

	"github.com/ringbridge/ringbridge/internal/app"
	"github.com/ringbridge/ringbridge/internal/stream"
	"github.com/ringbridge/ringbridge/pkg/core"
	"github.com/ringbridge/ringbridge/pkg/ring"
	"github.com/rs/zerolog"
)

func Init() {
	var cfg struct {
		Mod struct {
			RefreshToken    string         `yaml:"refresh_token"`
			RTSP            string         `yaml:"rtsp"`
			SnapshotRefresh time.Duration  `yaml:"snapshot_refresh"`
			Cameras         []CameraConfig `yaml:"cameras"`
		} `yaml:"ring"`
	}

	cfg.Mod.RTSP = "rtsp://127.0.0.1:8554"
	cfg.Mod.SnapshotRefresh = 30 * time.Second

	app.LoadConfig(&cfg)

	log = app.GetLogger("ring")

	initAPI()

	if cfg.Mod.RefreshToken == "" {
		log.Warn().Msg("[ring] refresh_token is empty")
		return
	}

	var err error
	client, err = ring.NewRestClient(ring.RefreshTokenAuth{RefreshToken: cfg.Mod.RefreshToken}, saveToken)
	if err != nil {
		log.Error().Err(err).Msg("[ring] client")
		return
	}

	opts := CameraOptions{
		RTSP:            cfg.Mod.RTSP,
		SnapshotRefresh: cfg.Mod.SnapshotRefresh,
		Config:          stream.Defaults(),
	}

	for _, conf := range cfg.Mod.Cameras {
		if conf.DeviceID == "" {
			log.Warn().Int("id", conf.ID).Msg("[ring] camera without device_id")
			continue
		}
		AddCamera(NewCamera(conf, client, opts))
	}

	log.Info().Int("cameras", len(cfg.Mod.Cameras)).Msg("[ring] init")
}

var log = zerolog.Nop()

var client *ring.RestClient

// states fan out every stream transition to MQTT and websocket listeners
var states core.Observable[StateChange]

var cameras = map[string]*Camera{}
var camerasMu sync.Mutex

func saveToken(token string) {
	if err := app.PatchConfig("ring.refresh_token", token); err != nil {
		log.Warn().Err(err).Msg("[ring] save refresh token")
	}
}

// OnStateChange subscribes to stream transitions of all cameras
func OnStateChange(f func(change StateChange)) *core.Subscription {
	return states.Subscribe(f)
}

func AddCamera(camera *Camera) {
	camerasMu.Lock()
	cameras[camera.DeviceID] = camera
	camerasMu.Unlock()
}

// GetCamera finds camera by device_id or by numeric id
func GetCamera(id string) *Camera {
	camerasMu.Lock()
	defer camerasMu.Unlock()

	if camera, ok := cameras[id]; ok {
		return camera
	}
	for _, camera := range cameras {
		if strconv.Itoa(camera.ID) == id {
			return camera
		}
	}
	return nil
}

func Cameras() []*Camera {
	camerasMu.Lock()
	defer camerasMu.Unlock()

	list := make([]*Camera, 0, len(cameras))
	for _, camera := range cameras {
		list = append(list, camera)
	}
	return list
}

// Close stops every stream of every camera
func Close() {
	camerasMu.Lock()
	list := make([]*Camera, 0, len(cameras))
	for id, camera := range cameras {
		list = append(list, camera)
		delete(cameras, id)
	}
	camerasMu.Unlock()

	var wg sync.WaitGroup
	for _, camera := range list {
		wg.Add(1)
		go func(camera *Camera) {
			camera.Close()
			wg.Done()
		}(camera)
	}
	wg.Wait()
}

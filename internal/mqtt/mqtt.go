package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/ringbridge/ringbridge/internal/app"
	"github.com/ringbridge/ringbridge/internal/ring"
	"github.com/ringbridge/ringbridge/internal/stream"
	"github.com/rs/zerolog"
)

func Init() {
	var cfg struct {
		Mod struct {
			Broker   string `yaml:"broker"`
			Topic    string `yaml:"topic"`
			ClientID string `yaml:"client_id"`
			Username string `yaml:"username"`
			Password string `yaml:"password"`
		} `yaml:"mqtt"`
	}

	cfg.Mod.Topic = "ringbridge"
	cfg.Mod.ClientID = "ringbridge"

	app.LoadConfig(&cfg)

	log = app.GetLogger("mqtt")

	if cfg.Mod.Broker == "" {
		return
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Mod.Broker)
	opts.SetClientID(cfg.Mod.ClientID)
	opts.SetUsername(cfg.Mod.Username)
	opts.SetPassword(cfg.Mod.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	bridge = &Bridge{topic: cfg.Mod.Topic, cameras: ring.GetCamera}

	opts.OnConnect = func(c paho.Client) {
		log.Info().Str("broker", cfg.Mod.Broker).Msg("[mqtt] connected")
		bridge.subscribe(c)
		bridge.publishAll(ring.Cameras())
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Warn().Err(err).Msg("[mqtt] connection lost")
	}

	client = paho.NewClient(opts)
	bridge.client = client

	// with ConnectRetry the token completes only on success
	client.Connect()

	ring.OnStateChange(bridge.publishState)
}

// Close disconnects from the broker
func Close() {
	if client != nil {
		client.Disconnect(250)
	}
}

var log = zerolog.Nop()

var client paho.Client
var bridge *Bridge

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload any) paho.Token
}

// Bridge maps camera streams to MQTT topics:
//   - <topic>/<device>/<kind>_stream/state       inactive|active|failed
//   - <topic>/<device>/<kind>_stream/attributes  JSON
//   - <topic>/<device>/<kind>_stream/set         ON|OFF
//   - <topic>/<device>/event_select/set          "Motion 2"
//   - <topic>/<device>/snapshot_overlay/set      seconds
type Bridge struct {
	topic   string
	client  publisher
	cameras func(id string) *ring.Camera
}

const (
	entityEventSelect     = "event_select"
	entitySnapshotOverlay = "snapshot_overlay"
	streamSuffix          = "_stream"
)

func (b *Bridge) subscribe(c paho.Client) {
	topic := b.topic + "/+/+/set"
	token := c.Subscribe(topic, 1, func(_ paho.Client, msg paho.Message) {
		b.handle(msg.Topic(), string(msg.Payload()))
	})
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Error().Err(token.Error()).Str("topic", topic).Msg("[mqtt] subscribe")
	}
}

// parseTopic returns device and entity from <topic>/<device>/<entity>/set
func (b *Bridge) parseTopic(topic string) (device, entity string, ok bool) {
	rest, ok := strings.CutPrefix(topic, b.topic+"/")
	if !ok {
		return
	}
	rest, ok = strings.CutSuffix(rest, "/set")
	if !ok {
		return
	}
	device, entity, ok = strings.Cut(rest, "/")
	if ok && (device == "" || entity == "" || strings.Contains(entity, "/")) {
		ok = false
	}
	return
}

func (b *Bridge) handle(topic, payload string) {
	device, entity, ok := b.parseTopic(topic)
	if !ok {
		log.Debug().Str("topic", topic).Msg("[mqtt] unknown topic")
		return
	}

	camera := b.cameras(device)
	if camera == nil {
		log.Debug().Str("topic", topic).Msg("[mqtt] unknown camera")
		return
	}

	payload = strings.TrimSpace(payload)

	log.Trace().Str("topic", topic).Str("payload", payload).Msg("[mqtt] command")

	switch entity {
	case entityEventSelect:
		if err := camera.SelectEvent(payload); err != nil {
			log.Warn().Err(err).Str("payload", payload).Msg("[mqtt] event select")
			return
		}
		b.publish(b.entityTopic(camera, entityEventSelect)+"/state", payload)
		b.publishAttributes(camera, stream.KindEvent)

	case entitySnapshotOverlay:
		duration, err := time.ParseDuration(payload + "s")
		if err != nil {
			log.Warn().Err(err).Str("payload", payload).Msg("[mqtt] snapshot overlay")
			return
		}
		camera.StartOverlay(duration)

	default:
		kind, err := stream.ParseKind(strings.TrimSuffix(entity, streamSuffix))
		if err != nil || !strings.HasSuffix(entity, streamSuffix) {
			log.Debug().Str("topic", topic).Msg("[mqtt] unknown entity")
			return
		}

		switch strings.ToUpper(payload) {
		case "ON":
			// start blocks on ticket and recording requests
			go func() {
				if err := camera.Start(context.Background(), kind); err != nil {
					log.Warn().Err(err).Msg("[mqtt] start")
				}
			}()
		case "OFF":
			_ = camera.Stop(kind)
		default:
			log.Warn().Str("payload", payload).Msg("[mqtt] unknown stream command")
		}
	}
}

func (b *Bridge) entityTopic(camera *ring.Camera, entity string) string {
	return b.topic + "/" + camera.DeviceID + "/" + entity
}

func (b *Bridge) streamTopic(camera *ring.Camera, kind stream.Kind) string {
	return b.entityTopic(camera, string(kind)+streamSuffix)
}

func (b *Bridge) publishState(change ring.StateChange) {
	b.publish(b.streamTopic(change.Camera, change.Kind)+"/state", string(change.Status.Public()))
	b.publishAttributes(change.Camera, change.Kind)
}

func (b *Bridge) publishAttributes(camera *ring.Camera, kind stream.Kind) {
	attrs := camera.Attributes(kind)
	attrs["status"] = camera.Statuses()[kind]

	data, err := json.Marshal(attrs)
	if err != nil {
		return
	}
	b.publish(b.streamTopic(camera, kind)+"/attributes", data)
}

func (b *Bridge) publishAll(cameras []*ring.Camera) {
	for _, camera := range cameras {
		for kind, status := range camera.Statuses() {
			b.publishState(ring.StateChange{Camera: camera, Kind: kind, Status: status})
		}
		b.publish(b.entityTopic(camera, entityEventSelect)+"/state", camera.SelectedEvent().String())
	}
}

func (b *Bridge) publish(topic string, payload any) {
	token := b.client.Publish(topic, 1, true, payload)
	go func() {
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Warn().Err(token.Error()).Str("topic", topic).Msg("[mqtt] publish")
		}
	}()
}

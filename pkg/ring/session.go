package ring

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
	"github.com/ringbridge/ringbridge/pkg/core"
	"github.com/ringbridge/ringbridge/pkg/ffmpeg"
	"github.com/ringbridge/ringbridge/pkg/process"
	"github.com/ringbridge/ringbridge/pkg/udp"
	"github.com/rs/zerolog"
)

const localhost = "127.0.0.1"

type ConnectionState string

const (
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
	StateFailed       ConnectionState = "failed"
	StateClosed       ConnectionState = "closed"
)

var ICEServers = []string{
	"stun:stun.kinesisvideo.us-east-1.amazonaws.com:443",
	"stun:stun.kinesisvideo.us-east-2.amazonaws.com:443",
	"stun:stun.kinesisvideo.us-west-2.amazonaws.com:443",
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

type SessionConfig struct {
	Endpoint  string // signaling websocket, DefaultEndpoints.Signaling if empty
	DoorbotID int
	Logger    zerolog.Logger
}

// Session is one live view call with the camera. Media is forwarded
// as RTP to a local ffmpeg started by StartTranscoding.
type Session struct {
	sig *Signaling
	pc  *webrtc.PeerConnection
	log zerolog.Logger

	connState core.Observable[ConnectionState]
	callEnded core.Observable[struct{}]

	mu      sync.Mutex
	audio   *udp.Sender
	video   *udp.Sender
	alt     *udp.Sender
	ffmpeg  *process.Process
	pliSSRC uint32

	done     chan struct{}
	stopOnce sync.Once
}

// Dial opens signaling and sends the offer. Connection progress
// is reported through OnConnectionState.
func Dial(ctx context.Context, conf SessionConfig, ticket string) (*Session, error) {
	endpoint := conf.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoints.Signaling
	}

	sig, err := DialSignaling(ctx, endpoint, ticket, conf.DoorbotID)
	if err != nil {
		return nil, err
	}

	pc, err := newPeerConnection()
	if err != nil {
		_ = sig.Close()
		return nil, err
	}

	s := &Session{
		sig:  sig,
		pc:   pc,
		log:  conf.Logger,
		done: make(chan struct{}),
	}

	// protect from sending ICE candidate before Offer
	var sendOffer core.Waiter
	defer sendOffer.Done(nil)

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		_ = sendOffer.Wait()

		init := candidate.ToJSON()
		if init.Candidate == "" {
			return
		}

		var index uint16
		if init.SDPMLineIndex != nil {
			index = *init.SDPMLineIndex
		}

		if err := sig.Send("ice", map[string]any{"ice": init.Candidate, "mlineindex": index}); err != nil {
			s.log.Debug().Err(err).Msg("[ring] send ice")
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.log.Debug().Msgf("[ring] connection state %s", state)
		s.connState.Fire(ConnectionState(state.String()))
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		go s.forward(track)
	})

	if _, err = pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendrecv,
	}); err != nil {
		s.close()
		return nil, err
	}

	if _, err = pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		s.close()
		return nil, err
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		s.close()
		return nil, err
	}

	if err = pc.SetLocalDescription(offer); err != nil {
		s.close()
		return nil, err
	}

	err = sig.Send("live_view", map[string]any{
		"stream_options": map[string]bool{"audio_enabled": true, "video_enabled": true},
		"sdp":            offer.SDP,
	})
	if err != nil {
		s.close()
		return nil, err
	}

	sendOffer.Done(nil)

	// Ring expects a ping message every 5 seconds
	go s.pingLoop()
	go s.readLoop()

	return s, nil
}

func newPeerConnection() (*webrtc.PeerConnection, error) {
	m := &webrtc.MediaEngine{}

	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2,
		},
		PayloadType: PayloadTypeOpus,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, err
	}

	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeH264,
			ClockRate:   90000,
			SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
		},
		PayloadType: PayloadTypeH264,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, err
	}

	i := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, err
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(i))

	return api.NewPeerConnection(webrtc.Configuration{
		ICEServers:         []webrtc.ICEServer{{URLs: ICEServers}},
		ICETransportPolicy: webrtc.ICETransportPolicyAll,
		BundlePolicy:       webrtc.BundlePolicyBalanced,
	})
}

func (s *Session) OnConnectionState(f func(state ConnectionState)) *core.Subscription {
	return s.connState.Subscribe(f)
}

func (s *Session) OnCallEnded(f func()) *core.Subscription {
	return s.callEnded.Subscribe(func(struct{}) { f() })
}

// StartTranscoding spawns ffmpeg with RTP input on stdin SDP and
// returns the second video copy for overlay decoders
func (s *Session) StartTranscoding(args *ffmpeg.Args) (*AltMedia, error) {
	audioPort, err := udp.FreePortPair()
	if err != nil {
		return nil, err
	}
	videoPort, err := udp.FreePortPair()
	if err != nil {
		return nil, err
	}
	altPort, err := udp.FreePortPair()
	if err != nil {
		return nil, err
	}

	input, err := inputSDP(audioPort, videoPort)
	if err != nil {
		return nil, err
	}
	altSDP, err := inputSDP(0, altPort)
	if err != nil {
		return nil, err
	}

	args = args.Clone()
	args.AddInput("-protocol_whitelist", "pipe,udp,rtp,file,crypto", "-f", "sdp", "-i", "pipe:")

	var senders [3]*udp.Sender
	for i, port := range []uint16{audioPort, videoPort, altPort} {
		if senders[i], err = udp.NewSender(port); err != nil {
			closeSenders(senders[:i])
			return nil, err
		}
	}

	proc, err := process.Spawn(args.Command(), process.WithStdin(), process.WithLogger(s.log))
	if err != nil {
		closeSenders(senders[:])
		return nil, err
	}

	_, err = proc.Stdin.Write([]byte(input))
	_ = proc.Stdin.Close()
	if err != nil {
		_ = proc.Kill()
		closeSenders(senders[:])
		return nil, err
	}

	s.mu.Lock()
	s.audio, s.video, s.alt = senders[0], senders[1], senders[2]
	s.ffmpeg = proc
	ssrc := s.pliSSRC
	s.mu.Unlock()

	if ssrc != 0 {
		s.requestKeyframe(ssrc)
	}

	go func() {
		select {
		case <-proc.Done():
			s.log.Debug().Err(proc.Err()).Str("stderr", proc.Stderr()).Msg("[ring] transcoder exited")
			s.Stop()
		case <-s.done:
		}
	}()

	return &AltMedia{Port: altPort, SDP: altSDP}, nil
}

// Stop hangs up the call. Returns immediately, OnCallEnded
// fires when all resources are released.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		go func() {
			s.close()
			s.callEnded.Fire(struct{}{})
		}()
	})
}

func (s *Session) close() {
	_ = s.sig.Close()
	_ = s.pc.Close()

	s.mu.Lock()
	proc := s.ffmpeg
	senders := []*udp.Sender{s.audio, s.video, s.alt}
	s.ffmpeg, s.audio, s.video, s.alt = nil, nil, nil, nil
	s.mu.Unlock()

	if proc != nil {
		_ = proc.Stop(process.StopTimeout)
	}
	closeSenders(senders)
}

func (s *Session) readLoop() {
	for {
		msg, err := s.sig.Read()
		if err != nil {
			select {
			case <-s.done:
			default:
				s.log.Debug().Err(err).Msg("[ring] signaling closed")
				s.Stop()
			}
			return
		}

		if err = s.handle(msg); err != nil {
			s.log.Warn().Err(err).Msgf("[ring] signaling %s", msg.Method)
			s.Stop()
			return
		}

		if msg.Method == "close" {
			s.Stop()
			return
		}
	}
}

func (s *Session) handle(msg *Message) error {
	switch msg.Method {
	case "sdp":
		var body AnswerBody
		if err := json.Unmarshal(msg.Body, &body); err != nil {
			return err
		}
		answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: body.SDP}
		if err := s.pc.SetRemoteDescription(answer); err != nil {
			return err
		}
		if err := s.sig.Send("activate_session", nil); err != nil {
			return err
		}
		return s.sig.Send("stream_options", map[string]any{"audio_enabled": true, "video_enabled": true})

	case "ice":
		var body ICEBody
		if err := json.Unmarshal(msg.Body, &body); err != nil || body.ICE == "" {
			return nil
		}
		return s.pc.AddICECandidate(webrtc.ICECandidateInit{
			Candidate: body.ICE, SDPMLineIndex: &body.MLineIndex,
		})

	case "close":
		var body CloseBody
		_ = json.Unmarshal(msg.Body, &body)
		s.log.Debug().Msgf("[ring] call closed by server: %d %s", body.Reason.Code, body.Reason.Text)
		if body.Reason.Code == CloseReasonAuthenticationFailed {
			return errors.New("ring: signaling authentication failed")
		}
	}

	return nil
}

func (s *Session) pingLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if s.pc.ConnectionState() != webrtc.PeerConnectionStateConnected {
				continue
			}
			if err := s.sig.Send("ping", nil); err != nil {
				return
			}
		}
	}
}

func closeSenders(senders []*udp.Sender) {
	for _, sender := range senders {
		if sender != nil {
			_ = sender.Close()
		}
	}
}

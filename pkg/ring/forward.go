package ring

import (
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
)

// keyframeInterval - ffmpeg can't start decoding without IDR frame
// and the camera sends them rarely
const keyframeInterval = 4 * time.Second

func (s *Session) forward(track *webrtc.TrackRemote) {
	kind := track.Kind()
	s.log.Trace().Msgf("[ring] track %s %s", kind, track.Codec().MimeType)

	var payloadType uint8 = PayloadTypeOpus
	if kind == webrtc.RTPCodecTypeVideo {
		payloadType = PayloadTypeH264

		ssrc := uint32(track.SSRC())
		s.mu.Lock()
		s.pliSSRC = ssrc
		s.mu.Unlock()

		go s.keyframeLoop(ssrc)
	}

	buf := make([]byte, 1500)
	for {
		n, _, err := track.Read(buf)
		if err != nil {
			return
		}

		var packet rtp.Packet
		if err = packet.Unmarshal(buf[:n]); err != nil {
			continue
		}
		packet.PayloadType = payloadType

		b, err := packet.Marshal()
		if err != nil {
			continue
		}

		s.mu.Lock()
		if kind == webrtc.RTPCodecTypeVideo {
			if s.video != nil {
				_, _ = s.video.Write(b)
			}
			if s.alt != nil {
				_, _ = s.alt.Write(b)
			}
		} else if s.audio != nil {
			_, _ = s.audio.Write(b)
		}
		s.mu.Unlock()
	}
}

func (s *Session) keyframeLoop(ssrc uint32) {
	ticker := time.NewTicker(keyframeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.requestKeyframe(ssrc)
		}
	}
}

func (s *Session) requestKeyframe(ssrc uint32) {
	pli := &rtcp.PictureLossIndication{MediaSSRC: ssrc}
	if err := s.pc.WriteRTCP([]rtcp.Packet{pli}); err != nil {
		s.log.Trace().Err(err).Msg("[ring] send PLI")
	}
}

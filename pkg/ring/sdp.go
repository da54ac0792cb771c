package ring

import (
	"github.com/pion/sdp/v3"
)

const (
	PayloadTypeOpus = 111
	PayloadTypeH264 = 96
)

// AltMedia is a second copy of the live video, sent as RTP to local Port.
// SDP describes it for a decoder, the Port+1 is reserved for RTCP.
type AltMedia struct {
	Port uint16 `json:"port"`
	SDP  string `json:"sdp"`
}

// inputSDP describes RTP streams that a Session forwards to local ports.
// Zero port skips the media.
func inputSDP(audioPort, videoPort uint16) (string, error) {
	desc := &sdp.SessionDescription{
		Origin: sdp.Origin{
			Username:       "-",
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: localhost,
		},
		SessionName: "ringbridge",
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: localhost},
		},
		TimeDescriptions: []sdp.TimeDescription{{}},
	}

	if audioPort != 0 {
		md := mediaDescription("audio", audioPort).
			WithCodec(PayloadTypeOpus, "opus", 48000, 2, "")
		desc.MediaDescriptions = append(desc.MediaDescriptions, md)
	}

	if videoPort != 0 {
		md := mediaDescription("video", videoPort).
			WithCodec(PayloadTypeH264, "H264", 90000, 0, "packetization-mode=1")
		desc.MediaDescriptions = append(desc.MediaDescriptions, md)
	}

	b, err := desc.Marshal()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func mediaDescription(kind string, port uint16) *sdp.MediaDescription {
	return &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:  kind,
			Port:   sdp.RangedPort{Value: int(port)},
			Protos: []string{"RTP", "AVP"},
		},
	}
}

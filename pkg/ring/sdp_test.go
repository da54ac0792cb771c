package ring

import (
	"testing"

	"github.com/pion/sdp/v3"
	"github.com/stretchr/testify/require"
)

func TestInputSDP(t *testing.T) {
	s, err := inputSDP(5000, 5002)
	require.Nil(t, err)

	var desc sdp.SessionDescription
	require.Nil(t, desc.Unmarshal([]byte(s)))
	require.Equal(t, "127.0.0.1", desc.ConnectionInformation.Address.Address)
	require.Len(t, desc.MediaDescriptions, 2)

	audio := desc.MediaDescriptions[0]
	require.Equal(t, "audio", audio.MediaName.Media)
	require.Equal(t, 5000, audio.MediaName.Port.Value)
	require.Equal(t, []string{"111"}, audio.MediaName.Formats)
	rtpmap, ok := audio.Attribute("rtpmap")
	require.True(t, ok)
	require.Equal(t, "111 opus/48000/2", rtpmap)

	video := desc.MediaDescriptions[1]
	require.Equal(t, "video", video.MediaName.Media)
	require.Equal(t, 5002, video.MediaName.Port.Value)
	rtpmap, _ = video.Attribute("rtpmap")
	require.Equal(t, "96 H264/90000", rtpmap)
	fmtp, _ := video.Attribute("fmtp")
	require.Equal(t, "96 packetization-mode=1", fmtp)
}

func TestInputSDPVideoOnly(t *testing.T) {
	s, err := inputSDP(0, 6000)
	require.Nil(t, err)

	var desc sdp.SessionDescription
	require.Nil(t, desc.Unmarshal([]byte(s)))
	require.Len(t, desc.MediaDescriptions, 1)
	require.Equal(t, "video", desc.MediaDescriptions[0].MediaName.Media)
}

package media

import (
	"context"
	"errors"
	"time"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
)

var ErrNoCamera = errors.New("no camera")

// opusSilence is a single 20ms Opus frame that decodes to silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

const audioFrame = 20 * time.Millisecond

// SampleDevice produces tracks backed by TrackLocalStaticSample. Audio carries
// Opus silence while enabled; video carries no frames. It stands in for real
// capture on hosts without camera or microphone drivers.
type SampleDevice struct {
	StreamID string
	NoCamera bool
}

func (d *SampleDevice) streamID() string {
	if d.StreamID == "" {
		d.StreamID = "ring-" + xid.New().String()
	}
	return d.StreamID
}

func (d *SampleDevice) OpenAudio(ctx context.Context) (*Track, error) {
	local, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", d.streamID(),
	)
	if err != nil {
		return nil, err
	}
	stop := make(chan struct{})
	t := NewTrack(KindAudio, local, func() { close(stop) })
	go pumpSilence(t, local, stop)
	return t, nil
}

func (d *SampleDevice) OpenVideo(ctx context.Context) (*Track, error) {
	if d.NoCamera {
		return nil, ErrNoCamera
	}
	local, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		"video-"+xid.New().String(), d.streamID(),
	)
	if err != nil {
		return nil, err
	}
	return NewTrack(KindVideo, local, nil), nil
}

func pumpSilence(t *Track, local *webrtc.TrackLocalStaticSample, stop <-chan struct{}) {
	ticker := time.NewTicker(audioFrame)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !t.Enabled() {
				continue
			}
			if err := local.WriteSample(pionmedia.Sample{Data: opusSilence, Duration: audioFrame}); err != nil {
				log.Debug().Err(err).Str("module", "media").Msg("write sample")
			}
		}
	}
}

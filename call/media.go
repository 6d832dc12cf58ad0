package call

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"github.com/sirupsen/logrus"
)

// frameDuration is the packetization interval of the local stream.
const frameDuration = 20 * time.Millisecond

// silenceFrame is an Opus packet carrying 20ms of silence.
var silenceFrame = []byte{0xf8, 0xff, 0xfe}

// FrameReader yields encoded Opus frames for the local stream. Next blocks
// for at most one frame duration and returns nil when there is nothing to
// send.
type FrameReader interface {
	Next() ([]byte, error)
	Close() error
}

// SampleSource opens a local Opus track fed from a FrameReader. Without a
// reader it sends comfort silence, which keeps the media path alive on
// hosts without a capture device.
type SampleSource struct {
	// Open returns the reader for a new stream. Nil means silence.
	Open func(ctx context.Context) (FrameReader, error)
}

// Acquire implements MediaSource.
func (s *SampleSource) Acquire(ctx context.Context) (LocalStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var reader FrameReader
	if s != nil && s.Open != nil {
		r, err := s.Open(ctx)
		if err != nil {
			return nil, err
		}
		reader = r
	}

	id := uuid.NewString()
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", "commlink-"+id,
	)
	if err != nil {
		if reader != nil {
			reader.Close() //nolint:errcheck
		}
		return nil, fmt.Errorf("create local track: %w", err)
	}

	st := &sampleStream{
		track:   track,
		reader:  reader,
		enabled: true,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go st.pump()
	logrus.WithFields(logrus.Fields{
		"function": "SampleSource.Acquire",
		"track_id": track.ID(),
		"silence":  reader == nil,
	}).Info("Local audio stream opened")
	return st, nil
}

type sampleStream struct {
	track  *webrtc.TrackLocalStaticSample
	reader FrameReader

	mu      sync.Mutex
	enabled bool

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func (s *sampleStream) TrackLocals() []webrtc.TrackLocal {
	return []webrtc.TrackLocal{s.track}
}

// SetEnabled switches between captured audio and silence.
func (s *sampleStream) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
}

func (s *sampleStream) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Stop ends the pump and closes the reader. Later calls do nothing.
func (s *sampleStream) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.done
		if s.reader != nil {
			if err := s.reader.Close(); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "sampleStream.Stop",
					"error":    err.Error(),
				}).Debug("Closing frame reader failed")
			}
		}
	})
}

func (s *sampleStream) pump() {
	defer close(s.done)
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		frame := silenceFrame
		if s.reader != nil {
			data, err := s.reader.Next()
			if err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "sampleStream.pump",
					"error":    err.Error(),
				}).Warn("Frame reader failed, sending silence")
				s.reader.Close() //nolint:errcheck
				s.reader = nil
			} else if data != nil && s.Enabled() {
				frame = data
			}
		}
		// Writes before negotiation completes are dropped by pion.
		if err := s.track.WriteSample(media.Sample{Data: frame, Duration: frameDuration}); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "sampleStream.pump",
				"error":    err.Error(),
			}).Debug("Writing local sample failed")
		}
	}
}

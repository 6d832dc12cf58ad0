package call

import (
	"errors"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/commlink/audio"
)

// PCMFunc receives decoded remote audio. pcm is interleaved by channel.
type PCMFunc func(userID int64, pcm []int16, sampleRate uint32, channels int)

// SinkStats counts what a sink has seen.
type SinkStats struct {
	Packets      uint64
	Lost         uint64
	DecodeErrors uint64
	Level        float64
}

// OpusSinkFactory attaches decoding sinks to remote tracks.
type OpusSinkFactory struct {
	// OnPCM is called from the sink goroutine for every decoded frame.
	OnPCM PCMFunc
	// Gain scales decoded audio. Zero means unity.
	Gain float64
}

// NewSink implements SinkFactory.
func (f *OpusSinkFactory) NewSink(userID int64, track RemoteTrack) (Sink, error) {
	s := &OpusSink{
		userID: userID,
		track:  track,
		dec:    audio.NewDecoder(),
		meter:  audio.NewMeter(),
		gain:   1,
		done:   make(chan struct{}),
	}
	if f != nil {
		s.onPCM = f.OnPCM
		if f.Gain > 0 {
			s.gain = f.Gain
		}
	}
	go s.run()
	return s, nil
}

// OpusSink decodes one remote audio track until the track ends or the sink
// is closed.
type OpusSink struct {
	userID int64
	track  RemoteTrack
	dec    *audio.Decoder
	meter  *audio.Meter
	gain   float64
	onPCM  PCMFunc

	mu     sync.Mutex
	stats  SinkStats
	closed bool

	done chan struct{}
}

// Stats returns a copy of the counters.
func (s *OpusSink) Stats() SinkStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Close stops delivering audio. The reader goroutine exits when the track
// returns an error, which happens once the peer connection closes.
func (s *OpusSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Done is closed when the track has ended.
func (s *OpusSink) Done() <-chan struct{} {
	return s.done
}

func (s *OpusSink) run() {
	defer close(s.done)

	var (
		haveSeq bool
		lastSeq uint16
	)
	for {
		pkt, err := s.track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logrus.WithFields(logrus.Fields{
					"function": "OpusSink.run",
					"peer_id":  s.userID,
					"error":    err.Error(),
				}).Debug("Remote track ended")
			}
			return
		}

		var lost uint64
		if !haveSeq {
			haveSeq = true
			lastSeq = pkt.SequenceNumber
		} else if gap := pkt.SequenceNumber - lastSeq; gap != 0 && gap < 0x8000 {
			// uint16 arithmetic handles wraparound. Late packets leave
			// lastSeq alone.
			lost = uint64(gap - 1)
			lastSeq = pkt.SequenceNumber
		}

		frame, err := s.dec.Decode(pkt.Payload)

		s.mu.Lock()
		closed := s.closed
		s.stats.Packets++
		s.stats.Lost += lost
		if err != nil {
			s.stats.DecodeErrors++
		} else {
			audio.ApplyGain(frame.PCM, s.gain)
			s.stats.Level = s.meter.Update(frame.PCM)
		}
		s.mu.Unlock()

		if closed {
			return
		}
		if err == nil && s.onPCM != nil {
			s.onPCM(s.userID, frame.PCM, frame.SampleRate, frame.Channels)
		}
	}
}

package call

import (
	"fmt"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/commlink/protocol"
)

// trackSource is implemented by local streams that can feed pion tracks.
type trackSource interface {
	TrackLocals() []webrtc.TrackLocal
}

// WebRTCFactory creates pion peer connections.
type WebRTCFactory struct {
	api    *webrtc.API
	config webrtc.Configuration
}

// NewWebRTCFactory returns a factory using the default codecs and the given
// STUN/TURN urls.
func NewWebRTCFactory(iceServers []string) (*WebRTCFactory, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	cfg := webrtc.Configuration{}
	if len(iceServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}
	return &WebRTCFactory{
		api:    webrtc.NewAPI(webrtc.WithMediaEngine(m)),
		config: cfg,
	}, nil
}

// NewPeer implements PeerFactory.
func (f *WebRTCFactory) NewPeer(userID int64, events PeerEvents) (PeerConnection, error) {
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		// nil marks the end of gathering
		if c == nil || events.OnICECandidate == nil {
			return
		}
		init := c.ToJSON()
		events.OnICECandidate(protocol.ICECandidate{
			Candidate:        init.Candidate,
			SDPMid:           init.SDPMid,
			SDPMLineIndex:    init.SDPMLineIndex,
			UsernameFragment: init.UsernameFragment,
		})
	})
	pc.OnTrack(func(t *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		logrus.WithFields(logrus.Fields{
			"function": "pionPeer.OnTrack",
			"peer_id":  userID,
			"codec":    t.Codec().MimeType,
		}).Debug("Remote track received")
		if events.OnTrack != nil {
			events.OnTrack(pionTrack{t: t})
		}
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if events.OnStateChange != nil {
			events.OnStateChange(PeerState(s.String()))
		}
	})
	return &pionPeer{pc: pc}, nil
}

type pionPeer struct {
	pc *webrtc.PeerConnection
}

func (p *pionPeer) AddStream(stream LocalStream) error {
	src, ok := stream.(trackSource)
	if !ok {
		return ErrIncompatibleStream
	}
	for _, t := range src.TrackLocals() {
		if _, err := p.pc.AddTrack(t); err != nil {
			return fmt.Errorf("add track: %w", err)
		}
	}
	return nil
}

func (p *pionPeer) CreateOffer() (string, error) {
	d, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	return d.SDP, nil
}

func (p *pionPeer) CreateAnswer() (string, error) {
	d, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	return d.SDP, nil
}

func (p *pionPeer) SetLocalDescription(t SDPType, sdp string) error {
	return p.pc.SetLocalDescription(description(t, sdp))
}

func (p *pionPeer) SetRemoteDescription(t SDPType, sdp string) error {
	return p.pc.SetRemoteDescription(description(t, sdp))
}

func (p *pionPeer) AddICECandidate(c protocol.ICECandidate) error {
	return p.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	})
}

func (p *pionPeer) Close() error {
	return p.pc.Close()
}

func description(t SDPType, sdp string) webrtc.SessionDescription {
	typ := webrtc.SDPTypeOffer
	if t == SDPAnswer {
		typ = webrtc.SDPTypeAnswer
	}
	return webrtc.SessionDescription{Type: typ, SDP: sdp}
}

type pionTrack struct {
	t *webrtc.TrackRemote
}

func (t pionTrack) ID() string { return t.t.ID() }

func (t pionTrack) ReadRTP() (*rtp.Packet, error) {
	pkt, _, err := t.t.ReadRTP()
	return pkt, err
}

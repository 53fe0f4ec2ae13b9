package mesh

import (
	"encoding/json"
	"fmt"
	"sync"

	pion "github.com/pion/webrtc/v4"

	"github.com/BioHazard786/meshcall/internal/config"
)

// ICEConfiguration builds the peer connection configuration from client config.
func ICEConfiguration(cfg *config.Config) pion.Configuration {
	var iceServers []pion.ICEServer
	if stun := cfg.GetSTUNServers(); stun != nil {
		iceServers = append(iceServers, pion.ICEServer{URLs: stun})
	}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, pion.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	policy := pion.ICETransportPolicyAll
	if cfg.RelayOnly() {
		policy = pion.ICETransportPolicyRelay
	}

	return pion.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	}
}

// PionTransports returns a factory that backs sessions with pion peer
// connections created from api. A nil api uses pion's defaults.
func PionTransports(api *pion.API, pcConfig pion.Configuration) TransportFactory {
	if api == nil {
		api = pion.NewAPI()
	}
	return func(peerID string, role Role, events TransportEvents) (Transport, error) {
		return newPionTransport(api, pcConfig, role, events)
	}
}

type pionTransport struct {
	pc     *pion.PeerConnection
	events TransportEvents

	mu sync.Mutex
	dc *pion.DataChannel
}

func newPionTransport(api *pion.API, pcConfig pion.Configuration, role Role, events TransportEvents) (*pionTransport, error) {
	pc, err := api.NewPeerConnection(pcConfig)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	t := &pionTransport{pc: pc, events: events}

	pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil || events.LocalCandidate == nil {
			return
		}
		b, err := json.Marshal(c.ToJSON())
		if err != nil {
			return
		}
		events.LocalCandidate(b)
	})

	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		switch state {
		case pion.PeerConnectionStateConnected:
			if events.Connected != nil {
				events.Connected()
			}
		case pion.PeerConnectionStateFailed:
			if events.Failed != nil {
				events.Failed(ErrPathFailed)
			}
		}
	})

	if role == RoleInitiator {
		ordered := true
		dc, err := pc.CreateDataChannel(ChannelLabel, &pion.DataChannelInit{Ordered: &ordered})
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("create data channel: %w", err)
		}
		t.bind(dc)
	} else {
		pc.OnDataChannel(func(dc *pion.DataChannel) {
			if dc.Label() != ChannelLabel {
				return
			}
			t.bind(dc)
		})
	}

	return t, nil
}

func (t *pionTransport) bind(dc *pion.DataChannel) {
	t.mu.Lock()
	t.dc = dc
	t.mu.Unlock()

	dc.OnMessage(func(msg pion.DataChannelMessage) {
		if t.events.Message != nil {
			t.events.Message(msg.Data)
		}
	})
}

// CreateOffer creates an offer with trickle ICE; candidates follow through
// the LocalCandidate callback.
func (t *pionTransport) CreateOffer() (json.RawMessage, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	return json.Marshal(t.pc.LocalDescription())
}

func (t *pionTransport) AcceptOffer(body json.RawMessage) (json.RawMessage, error) {
	offer, err := parseDescription(body, pion.SDPTypeOffer)
	if err != nil {
		return nil, err
	}
	if err := t.pc.SetRemoteDescription(offer); err != nil {
		return nil, fmt.Errorf("set remote description: %w", err)
	}

	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	return json.Marshal(t.pc.LocalDescription())
}

func (t *pionTransport) AcceptAnswer(body json.RawMessage) error {
	answer, err := parseDescription(body, pion.SDPTypeAnswer)
	if err != nil {
		return err
	}
	if err := t.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

func (t *pionTransport) AddCandidate(body json.RawMessage) error {
	var ice pion.ICECandidateInit
	if err := json.Unmarshal(body, &ice); err != nil {
		return fmt.Errorf("parse ICE candidate: %w", err)
	}
	if err := t.pc.AddICECandidate(ice); err != nil {
		return fmt.Errorf("add ICE candidate: %w", err)
	}
	return nil
}

func (t *pionTransport) Send(data []byte) error {
	t.mu.Lock()
	dc := t.dc
	t.mu.Unlock()

	if dc == nil || dc.ReadyState() != pion.DataChannelStateOpen {
		return ErrChannelNotOpen
	}
	return dc.Send(data)
}

func (t *pionTransport) Close() error {
	return t.pc.Close()
}

func parseDescription(body json.RawMessage, want pion.SDPType) (pion.SessionDescription, error) {
	var desc pion.SessionDescription
	if err := json.Unmarshal(body, &desc); err != nil {
		return desc, fmt.Errorf("parse session description: %w", err)
	}
	if desc.Type != want {
		return desc, fmt.Errorf("expected %s description, got %s", want, desc.Type)
	}
	if desc.SDP == "" {
		return desc, fmt.Errorf("empty %s description", want)
	}
	return desc, nil
}

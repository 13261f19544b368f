package signal

import (
	"github.com/pion/webrtc/v4"
)

func (c *Client) SendCandidate(ci webrtc.ICECandidateInit) error {
	frame := Candidate{
		Type:      TypeCandidate,
		Candidate: ci.Candidate,
	}
	if ci.SDPMid != nil {
		frame.SDPMid = *ci.SDPMid
	}
	if ci.SDPMLineIndex != nil {
		frame.SDPMLineIndex = *ci.SDPMLineIndex
	}
	return c.Send(frame)
}

func (c *Client) SendOffer(desc webrtc.SessionDescription) error {
	return c.Send(SessionDescription{Type: TypeOffer, SDP: desc.SDP})
}

func (c *Client) SendAnswer(desc webrtc.SessionDescription) error {
	return c.Send(SessionDescription{Type: TypeAnswer, SDP: desc.SDP})
}

func (p Candidate) ICECandidateInit() webrtc.ICECandidateInit {
	cand := webrtc.ICECandidateInit{
		Candidate: p.Candidate,
	}
	if p.SDPMid != "" {
		mid := p.SDPMid
		cand.SDPMid = &mid
	}
	idx := p.SDPMLineIndex
	cand.SDPMLineIndex = &idx
	return cand
}

// Offer returns d as a remote offer.
func (d SessionDescription) Offer() webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: d.SDP}
}

// Answer returns d as a remote answer.
func (d SessionDescription) Answer() webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: d.SDP}
}

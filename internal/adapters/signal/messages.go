package signal

import "encoding/json"

// Frame types exchanged with the room server.
const (
	TypeJoin               = "join"
	TypeLeave              = "leave"
	TypePing               = "ping"
	TypePong               = "pong"
	TypeOffer              = "offer"
	TypeAnswer             = "answer"
	TypeCandidate          = "candidate"
	TypeJoined             = "joined"
	TypeLeft               = "left"
	TypeParticipantJoined  = "participant_joined"
	TypeParticipantUpdated = "participant_updated"
	TypeParticipantLeft    = "participant_left"
	TypeError              = "error"
)

type envelope struct {
	Type string `json:"type"`
}

type JoinRequest struct {
	Type  string  `json:"type"`
	Token *string `json:"token,omitempty"`
	Name  string  `json:"name,omitempty"`
}

// ParticipantInfo is a room member as announced by the server.
// Track ids refer to the stream ids of the member's media.
type ParticipantInfo struct {
	ID         string  `json:"id"`
	Name       *string `json:"name,omitempty"`
	AudioTrack *string `json:"audio_track,omitempty"`
	VideoTrack *string `json:"video_track,omitempty"`
}

type Joined struct {
	Type          string            `json:"type"`
	ParticipantID string            `json:"participant_id"`
	Participants  []ParticipantInfo `json:"participants"`
}

type ParticipantEvent struct {
	Type        string          `json:"type"`
	Participant ParticipantInfo `json:"participant"`
	Reason      string          `json:"reason,omitempty"`
}

type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type Candidate struct {
	Type          string `json:"type"`
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid,omitempty"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex,omitempty"`
}

type ErrorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func decode[T any](data []byte) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}

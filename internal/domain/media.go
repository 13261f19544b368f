package domain

type (
	MediaDeviceID string
	MediaTrackID  string
)

type MediaDeviceInfo struct {
	ID   MediaDeviceID `json:"id"`
	Name string        `json:"name"`
}

// ParticipantTracks pairs the audio and video track of one participant.
type ParticipantTracks struct {
	Audio *MediaTrackID `json:"audio,omitempty"`
	Video *MediaTrackID `json:"video,omitempty"`
}

// Tracks is a snapshot, never cached.
type Tracks struct {
	Local ParticipantTracks  `json:"local"`
	Bot   *ParticipantTracks `json:"bot,omitempty"`
}

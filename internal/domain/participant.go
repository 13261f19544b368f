package domain

type ParticipantID string

// Participant is a session member as seen by the voice client.
type Participant struct {
	ID    ParticipantID `json:"id"`
	Name  *string       `json:"name,omitempty"`
	Local bool          `json:"local"`
}

// DisplayName returns the participant name or an empty string.
func (p Participant) DisplayName() string {
	if p.Name == nil {
		return ""
	}
	return *p.Name
}

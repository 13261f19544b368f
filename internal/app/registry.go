package app

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicebridge/internal/domain"
)

// Registry holds the live participants in join order.
// It is confined to the transport thread and has no lock of its own.
type Registry struct {
	order        []domain.ParticipantID
	participants map[domain.ParticipantID]domain.Participant
	bot          *domain.Participant
}

func NewRegistry() *Registry {
	return &Registry{
		participants: make(map[domain.ParticipantID]domain.Participant),
	}
}

// Upsert adds or replaces p and reports whether the bot changed.
func (r *Registry) Upsert(p domain.Participant) bool {
	if _, ok := r.participants[p.ID]; !ok {
		r.order = append(r.order, p.ID)
		log.Debug().Str("module", "app.registry").Str("participant", string(p.ID)).Bool("local", p.Local).Msg("participant added")
	}
	r.participants[p.ID] = p
	return r.updateBot()
}

// Remove drops the participant and reports whether the bot changed.
func (r *Registry) Remove(id domain.ParticipantID) bool {
	if _, ok := r.participants[id]; !ok {
		return false
	}
	delete(r.participants, id)
	for i, pid := range r.order {
		if pid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	log.Debug().Str("module", "app.registry").Str("participant", string(id)).Msg("participant removed")
	return r.updateBot()
}

// Reset rebuilds the registry from a complete snapshot.
func (r *Registry) Reset(snapshot []domain.Participant) bool {
	r.order = r.order[:0]
	r.participants = make(map[domain.ParticipantID]domain.Participant, len(snapshot))
	for _, p := range snapshot {
		if _, ok := r.participants[p.ID]; !ok {
			r.order = append(r.order, p.ID)
		}
		r.participants[p.ID] = p
	}
	log.Info().Str("module", "app.registry").Int("count", len(r.order)).Msg("participants rebuilt")
	return r.updateBot()
}

func (r *Registry) Clear() bool {
	return r.Reset(nil)
}

func (r *Registry) Get(id domain.ParticipantID) (domain.Participant, bool) {
	p, ok := r.participants[id]
	return p, ok
}

func (r *Registry) Len() int { return len(r.order) }

func (r *Registry) Snapshot() []domain.Participant {
	out := make([]domain.Participant, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.participants[id])
	}
	return out
}

// Bot is the first non-local participant, if any.
func (r *Registry) Bot() (domain.Participant, bool) {
	if r.bot == nil {
		return domain.Participant{}, false
	}
	return *r.bot, true
}

func (r *Registry) updateBot() bool {
	var next *domain.Participant
	for _, id := range r.order {
		if p := r.participants[id]; !p.Local {
			next = &p
			break
		}
	}
	changed := !sameParticipant(r.bot, next)
	r.bot = next
	if changed {
		ev := log.Info().Str("module", "app.registry")
		if next != nil {
			ev = ev.Str("bot", string(next.ID))
		}
		ev.Msg("bot changed")
	}
	return changed
}

func sameParticipant(a, b *domain.Participant) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}

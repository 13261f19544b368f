package signal

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (c *Client) writePump(ctx context.Context) {
	var ping <-chan time.Time
	if c.opts.PingPeriod > 0 {
		ticker := time.NewTicker(c.opts.PingPeriod)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ping:
			if err := c.write(pingFrame); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump ping error")
				c.shutdown(err)
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.write(data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				c.shutdown(err)
				return
			}
		}
	}
}

func (c *Client) write(data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) readPump(ctx context.Context) {
	defer log.Info().Str("module", "signal").Msg("readPump closing")

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					log.Error().Err(err).Str("module", "signal").Msg("readPump read error")
				}
				c.shutdown(err)
				return
			}
			c.handleSignal(data)
		}
	}
}

func (c *Client) handleSignal(data []byte) {
	env, err := decode[envelope](data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case TypeJoined:
		decodeAnd(data, c.handler.OnJoined)
	case TypeParticipantJoined, TypeParticipantUpdated, TypeParticipantLeft:
		decodeAnd(data, c.handler.OnParticipant)
	case TypeOffer:
		decodeAnd(data, c.handler.OnOffer)
	case TypeAnswer:
		decodeAnd(data, c.handler.OnAnswer)
	case TypeCandidate:
		decodeAnd(data, c.handler.OnCandidate)
	case TypeError:
		decodeAnd(data, c.handler.OnServerError)
	case TypeLeft:
		c.handler.OnLeft()
	case TypePong:
		log.Debug().Str("module", "signal").Msg("pong")
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

func decodeAnd[T any](data []byte, fn func(T)) {
	v, err := decode[T](data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad payload")
		return
	}
	fn(v)
}

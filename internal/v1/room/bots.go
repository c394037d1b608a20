package room

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"rracer/server/internal/v1/logging"
	"rracer/server/internal/v1/metrics"
	"rracer/server/internal/v1/protocol"
)

// botRunner drives one bot from its own goroutine. Runners publish advance
// commands into the room inbox; they never mutate room state themselves.
type botRunner struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// seedBots tops the field up to fieldSize with bots at varied target speeds.
// Called at countdown start; the runners begin at race start.
func (r *Room) seedBots() {
	idx := 1
	for len(r.players) < fieldSize {
		name := fmt.Sprintf("Bot %d", idx)
		idx++
		if _, taken := r.players[name]; taken {
			continue
		}
		speed := r.opts.BotMinWPM + rand.Float64()*(r.opts.BotMaxWPM-r.opts.BotMinWPM)
		r.players[name] = &Player{
			Name:     name,
			IsBot:    true,
			BotWPM:   speed,
			JoinedAt: time.Now(),
		}
		r.order = append(r.order, name)
	}
	metrics.RoomPlayers.WithLabelValues(r.name).Set(float64(len(r.players)))
}

func (r *Room) startBots() {
	for _, p := range r.players {
		if p.IsBot {
			r.spawnBot(p.Name, p.BotWPM)
		}
	}
}

// spawnBot runs a bot's typing loop. Progress accumulates fractionally each
// tick at the bot's characters-per-second rate, so slow bots still move and
// fast bots do not jitter.
func (r *Room) spawnBot(name string, speedWPM float64) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	r.bots[name] = &botRunner{cancel: cancel, done: done}

	go func() {
		defer close(done)
		ticker := time.NewTicker(r.opts.BotTick)
		defer ticker.Stop()

		cps := speedWPM * 5 / 60
		acc := 0.0
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				acc += cps * r.opts.BotTick.Seconds()
				adv := int(math.Floor(acc))
				if adv == 0 {
					continue
				}
				acc -= float64(adv)
				if !r.submitCtx(ctx, botAdvanceCmd{name: name, adv: adv}) {
					return
				}
			}
		}
	}()
}

func (r *Room) handleBotAdvance(name string, adv int) {
	if r.state != StateRacing {
		return
	}
	p, ok := r.players[name]
	if !ok || p.Done {
		return
	}

	p.Position += adv
	if p.Position > len(r.passage) {
		p.Position = len(r.passage)
	}
	r.broadcast(protocol.ServerMsg{Progress: &protocol.Progress{ID: p.Name, Pos: p.Position}})

	if p.Position == len(r.passage) {
		p.Done = true
		p.DoneAt = time.Now()
		r.stopBot(name)
		r.broadcast(protocol.ServerMsg{Finish: &protocol.Finish{
			ID:     p.Name,
			WPM:    p.BotWPM,
			NetWPM: p.BotWPM,
		}})
		logging.Info(r.ctx, "bot finished",
			zap.String("bot", name), zap.Float64("wpm", p.BotWPM))
		r.maybeFinishRace()
	}
}

func (r *Room) stopBot(name string) {
	if b, ok := r.bots[name]; ok {
		delete(r.bots, name)
		b.cancel()
		<-b.done
	}
}

func (r *Room) stopBots() {
	for name := range r.bots {
		r.stopBot(name)
	}
}

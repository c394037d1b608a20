// Package room implements the race room: a single-goroutine controller that
// owns all room state, a broadcast bus with bounded per-subscriber queues,
// bot runners, and the registry that maps room names to live rooms.
//
// Concurrency model: every mutation flows through the room's inbox and is
// applied by the controller goroutine. Connections and bots never touch room
// state directly, so the package needs no locks around race data.
package room

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"rracer/server/internal/v1/logging"
	"rracer/server/internal/v1/metrics"
	"rracer/server/internal/v1/passages"
	"rracer/server/internal/v1/protocol"
	"rracer/server/internal/v1/wpm"
)

const (
	// maxHumans caps admitted humans per room.
	maxHumans = 5
	// fieldSize is the total field; bots top up to this count at countdown.
	fieldSize = 5
	// maxNameLen bounds display names.
	maxNameLen = 32
	// keyWindowSpan and keyWindowLimit define the per-player flood gate:
	// more than keyWindowLimit keystrokes inside keyWindowSpan are rejected.
	keyWindowSpan  = 100 * time.Millisecond
	keyWindowLimit = 20
	// maxHumanWPM is the sustained-speed ceiling for human keystrokes,
	// checked once speedCheckGrace of race time has elapsed.
	maxHumanWPM     = 300
	speedCheckGrace = 100 * time.Millisecond
)

// Options tune a room. Zero values take the production defaults; tests
// shorten the clocks.
type Options struct {
	Provider       passages.Provider
	OnEmpty        func(name string) // called from the controller when nobody is left
	CountdownDelay time.Duration     // default 3s
	TickInterval   time.Duration     // default 50ms
	BotTick        time.Duration     // default 100ms
	BotMinWPM      float64           // default 40
	BotMaxWPM      float64           // default 90
	IdleReap       time.Duration     // default 60s
}

func (o *Options) applyDefaults() {
	if o.Provider == nil {
		o.Provider = passages.NewStatic()
	}
	if o.CountdownDelay <= 0 {
		o.CountdownDelay = 3 * time.Second
	}
	if o.TickInterval <= 0 {
		o.TickInterval = 50 * time.Millisecond
	}
	if o.BotTick <= 0 {
		o.BotTick = 100 * time.Millisecond
	}
	if o.BotMinWPM <= 0 {
		o.BotMinWPM = 40
	}
	if o.BotMaxWPM < o.BotMinWPM {
		o.BotMaxWPM = o.BotMinWPM + 50
	}
	if o.IdleReap <= 0 {
		o.IdleReap = 60 * time.Second
	}
}

// Rejection is the coded error returned to a connection whose request the
// room refused. The connection relays it as an Error frame.
type Rejection struct {
	Code   protocol.ErrorCode
	Reason string
}

func (e *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

// Player is one racer, human or bot. All fields are controller-owned.
type Player struct {
	Name     string
	IsBot    bool
	BotWPM   float64
	Position int
	Errors   int
	Done     bool
	DoneAt   time.Time
	JoinedAt time.Time

	connID    string // owning subscriber, humans only
	keyWindow []time.Time
}

// Room is one race room. Public methods are safe for concurrent use; they
// enqueue commands for the controller goroutine.
type Room struct {
	name string
	opts Options
	ctx  context.Context

	inbox    chan command
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	occupancy atomic.Int32
	claims    atomic.Int32

	// Controller-owned state. Only run() and the functions it calls may
	// touch anything below.
	state             State
	players           map[string]*Player
	order             []string
	subs              map[string]*Subscriber
	passage           string
	countdownDeadline time.Time
	raceStart         time.Time
	lastActive        time.Time
	bots              map[string]*botRunner
}

type command interface{}

type joinCmd struct {
	sub   *Subscriber
	name  string
	reply chan error
}

type leaveCmd struct{ subID string }

type keyCmd struct {
	subID string
	ch    string
}

type resetCmd struct{ subID string }

type botAdvanceCmd struct {
	name string
	adv  int
}

// NewRoom creates a room and starts its controller goroutine. Stop releases
// it.
func NewRoom(name string, opts Options) *Room {
	opts.applyDefaults()
	r := &Room{
		name:       name,
		opts:       opts,
		ctx:        logging.WithRoom(context.Background(), name),
		inbox:      make(chan command, 256),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		state:      StateWaiting,
		players:    make(map[string]*Player),
		subs:       make(map[string]*Subscriber),
		lastActive: time.Now(),
		bots:       make(map[string]*botRunner),
	}
	go r.run()
	return r
}

// Name returns the room name.
func (r *Room) Name() string { return r.name }

// Occupied reports whether any subscriber is attached or a claim from
// Registry.GetOrCreate is outstanding. The registry reads this when deciding
// to retire the room.
func (r *Room) Occupied() bool { return r.occupancy.Load() > 0 || r.claims.Load() > 0 }

// Release drops the claim Registry.GetOrCreate took on the caller's behalf.
// Call it once the join attempt has settled; an attached subscriber keeps the
// room occupied on its own.
func (r *Room) Release() { r.claims.Add(-1) }

// Done is closed when the controller goroutine has exited.
func (r *Room) Done() <-chan struct{} { return r.done }

// Stop shuts the room down. Idempotent.
func (r *Room) Stop() {
	r.stopOnce.Do(func() { close(r.quit) })
}

// Join asks for admission under name, attaching sub to the broadcast bus on
// success. The error, if any, is a *Rejection carrying the protocol code.
func (r *Room) Join(sub *Subscriber, name string) error {
	reply := make(chan error, 1)
	if !r.submit(joinCmd{sub: sub, name: name, reply: reply}) {
		return &Rejection{Code: protocol.CodeInternal, Reason: "room is shutting down"}
	}
	select {
	case err := <-reply:
		return err
	case <-r.done:
		return &Rejection{Code: protocol.CodeInternal, Reason: "room is shutting down"}
	}
}

// Leave detaches the subscriber and removes its player, if joined.
func (r *Room) Leave(subID string) {
	r.submit(leaveCmd{subID: subID})
}

// Key submits one keystroke from the given subscriber's player.
func (r *Room) Key(subID, ch string) {
	r.submit(keyCmd{subID: subID, ch: ch})
}

// Reset asks the room to return from Finished to Waiting.
func (r *Room) Reset(subID string) {
	r.submit(resetCmd{subID: subID})
}

func (r *Room) submit(cmd command) bool {
	select {
	case r.inbox <- cmd:
		return true
	case <-r.quit:
		return false
	}
}

// submitCtx is submit for bot runners, which also stop on their own context.
func (r *Room) submitCtx(ctx context.Context, cmd command) bool {
	select {
	case r.inbox <- cmd:
		return true
	case <-r.quit:
		return false
	case <-ctx.Done():
		return false
	}
}

func (r *Room) run() {
	defer close(r.done)
	defer r.stopBots()

	ticker := time.NewTicker(r.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.quit:
			return
		case cmd := <-r.inbox:
			r.dispatch(cmd)
		case <-ticker.C:
			r.tick()
		}
	}
}

// dispatch applies one command, isolating panics so a poisoned message
// cannot take the room down with it.
func (r *Room) dispatch(cmd command) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Error(r.ctx, "room command panicked",
				zap.Any("panic", rec), zap.String("command", fmt.Sprintf("%T", cmd)))
			if c, ok := cmd.(joinCmd); ok {
				c.reply <- &Rejection{Code: protocol.CodeInternal, Reason: "internal error"}
			}
		}
	}()

	r.lastActive = time.Now()
	switch c := cmd.(type) {
	case joinCmd:
		c.reply <- r.handleJoin(c.sub, c.name)
	case leaveCmd:
		r.handleLeave(c.subID)
	case keyCmd:
		r.handleKey(c.subID, c.ch)
	case resetCmd:
		r.handleReset(c.subID)
	case botAdvanceCmd:
		r.handleBotAdvance(c.name, c.adv)
	}
}

func (r *Room) tick() {
	if r.state == StateCountdown && !r.countdownDeadline.IsZero() && !time.Now().Before(r.countdownDeadline) {
		r.startRace()
	}
	if r.state == StateWaiting && len(r.players) == 0 && len(r.subs) == 0 &&
		time.Since(r.lastActive) > r.opts.IdleReap && r.opts.OnEmpty != nil {
		r.lastActive = time.Now()
		r.opts.OnEmpty(r.name)
	}
}

// --- Join / Leave ---

func (r *Room) handleJoin(sub *Subscriber, name string) error {
	if r.state == StateCountdown || r.state == StateRacing {
		return &Rejection{Code: protocol.CodeWrongState, Reason: "race in progress"}
	}
	if !validName(name) {
		return &Rejection{Code: protocol.CodeNameInvalid, Reason: "name must be 1-32 printable characters"}
	}
	if p, taken := r.players[name]; taken && (!p.IsBot || r.state != StateFinished) {
		// Bot names are free again once a Finished room resets below.
		return &Rejection{Code: protocol.CodeNameTaken, Reason: "name already in use"}
	}
	if r.humanCount() >= maxHumans {
		return &Rejection{Code: protocol.CodeRoomFull, Reason: "room is full"}
	}

	if r.state == StateFinished {
		// A fresh arrival after a race restarts the lobby for everyone.
		r.resetToWaiting()
		r.broadcast(r.stateMsg())
	}

	r.subs[sub.ID] = sub
	r.occupancy.Add(1)
	r.players[name] = &Player{
		Name:     name,
		JoinedAt: time.Now(),
		connID:   sub.ID,
	}
	r.order = append(r.order, name)
	metrics.RoomPlayers.WithLabelValues(r.name).Set(float64(len(r.players)))
	logging.Info(logging.WithPlayer(r.ctx, name), "player joined",
		zap.Int("players", len(r.players)))

	r.broadcast(r.lobbyMsg())
	if r.state == StateWaiting && r.humanCount() >= 2 {
		r.startCountdown()
	}
	return nil
}

func (r *Room) handleLeave(subID string) {
	if _, ok := r.subs[subID]; ok {
		delete(r.subs, subID)
		r.occupancy.Add(-1)
	}

	var removed *Player
	for _, p := range r.players {
		if !p.IsBot && p.connID == subID {
			removed = p
			break
		}
	}
	if removed == nil {
		r.maybeEmpty()
		return
	}

	r.removePlayer(removed.Name)
	logging.Info(logging.WithPlayer(r.ctx, removed.Name), "player left",
		zap.Int("players", len(r.players)))

	switch {
	case r.state == StateCountdown && r.humanCount() < 2:
		// Quorum lost before the race began.
		r.clearRace()
		r.setState(EventAbort)
		r.broadcast(r.lobbyMsg())
		r.broadcast(r.stateMsg())
	case r.humanCount() == 0 && r.state != StateWaiting:
		// Bots never race alone.
		r.clearRace()
		r.setState(EventAbort)
	default:
		r.broadcast(r.lobbyMsg())
		if r.state == StateRacing {
			r.maybeFinishRace()
		}
	}
	r.maybeEmpty()
}

func (r *Room) maybeEmpty() {
	if len(r.subs) == 0 && len(r.players) == 0 && r.opts.OnEmpty != nil {
		r.opts.OnEmpty(r.name)
	}
}

func (r *Room) removePlayer(name string) {
	delete(r.players, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	metrics.RoomPlayers.WithLabelValues(r.name).Set(float64(len(r.players)))
}

func (r *Room) humanCount() int {
	n := 0
	for _, p := range r.players {
		if !p.IsBot {
			n++
		}
	}
	return n
}

func validName(name string) bool {
	if len(name) == 0 || len(name) > maxNameLen {
		return false
	}
	for _, c := range name {
		if c < 0x20 || c == 0x7f {
			return false
		}
	}
	return true
}

// --- Race lifecycle ---

func (r *Room) startCountdown() {
	r.passage = r.opts.Provider.RandomPassage(r.ctx)
	r.seedBots()
	r.setState(EventQuorum)
	r.countdownDeadline = time.Now().Add(r.opts.CountdownDelay)

	r.broadcast(r.lobbyMsg())
	r.broadcast(protocol.ServerMsg{Countdown: &protocol.Countdown{
		Passage:    r.passage,
		StartsInMs: r.opts.CountdownDelay.Milliseconds(),
	}})
	r.broadcast(r.stateMsg())
	logging.Info(r.ctx, "countdown started",
		zap.Int("players", len(r.players)), zap.Int("passage_len", len(r.passage)))
}

func (r *Room) startRace() {
	r.setState(EventCountdownElapsed)
	r.countdownDeadline = time.Time{}
	r.raceStart = time.Now()

	r.broadcast(protocol.ServerMsg{Start: &protocol.Start{
		T0Ms: uint64(r.raceStart.UnixMilli()),
	}})
	r.broadcast(r.stateMsg())
	r.startBots()
	metrics.RacesStarted.Inc()
	logging.Info(r.ctx, "race started", zap.Int("players", len(r.players)))
}

// maybeFinishRace checks the all-done condition after any finish or leave.
func (r *Room) maybeFinishRace() {
	if len(r.players) == 0 {
		return
	}
	for _, p := range r.players {
		if !p.Done {
			return
		}
	}
	r.setState(EventAllDone)
	r.stopBots()
	r.broadcast(r.stateMsg())
	metrics.RacesFinished.Inc()
	logging.Info(r.ctx, "race finished",
		zap.Duration("duration", time.Since(r.raceStart)))
}

func (r *Room) handleReset(subID string) {
	p := r.playerBySub(subID)
	if p == nil {
		r.sendTo(subID, protocol.ErrorMsg(protocol.CodeWrongState, "not in this room"))
		return
	}
	switch r.state {
	case StateFinished:
		r.resetToWaiting()
		r.broadcast(r.lobbyMsg())
		r.broadcast(r.stateMsg())
		logging.Info(r.ctx, "room reset", zap.String("by", p.Name))
	case StateWaiting:
		// Duplicate reset; another player got there first.
	default:
		r.sendTo(subID, protocol.ErrorMsg(protocol.CodeWrongState, "race in progress"))
	}
}

// resetToWaiting drops bots, zeroes progress, and returns to Waiting. Humans
// keep their seats and join order.
func (r *Room) resetToWaiting() {
	r.clearRace()
	r.setState(EventReset)
	for _, p := range r.players {
		p.Position = 0
		p.Errors = 0
		p.Done = false
		p.DoneAt = time.Time{}
		p.keyWindow = nil
	}
}

// clearRace removes bots and race context without touching human players.
func (r *Room) clearRace() {
	r.stopBots()
	for name, p := range r.players {
		if p.IsBot {
			r.removePlayer(name)
		}
	}
	r.passage = ""
	r.countdownDeadline = time.Time{}
	r.raceStart = time.Time{}
}

func (r *Room) setState(e Event) {
	next, ok := transition(r.state, e)
	if !ok {
		logging.Error(r.ctx, "invalid state transition",
			zap.String("state", string(r.state)), zap.String("event", string(e)))
		return
	}
	r.state = next
}

// --- Keystrokes ---

func (r *Room) handleKey(subID, ch string) {
	p := r.playerBySub(subID)
	if p == nil {
		r.sendTo(subID, protocol.ErrorMsg(protocol.CodeWrongState, "not in this room"))
		metrics.Keystrokes.WithLabelValues("dropped").Inc()
		return
	}
	if r.state != StateRacing {
		r.sendTo(subID, protocol.ErrorMsg(protocol.CodeWrongState, "race has not started"))
		metrics.Keystrokes.WithLabelValues("dropped").Inc()
		return
	}
	if p.Done {
		metrics.Keystrokes.WithLabelValues("dropped").Inc()
		return
	}

	now := time.Now()
	if !r.admitKey(p, now) {
		r.sendTo(subID, protocol.ErrorMsg(protocol.CodeRateLimited, "too many keystrokes"))
		metrics.Keystrokes.WithLabelValues("limited").Inc()
		return
	}

	elapsed := now.Sub(r.raceStart)
	if elapsed >= speedCheckGrace && wpm.Gross(p.Position+1, elapsed.Seconds()) > maxHumanWPM {
		r.sendTo(subID, protocol.ErrorMsg(protocol.CodeRateLimited, "typing speed over limit"))
		metrics.Keystrokes.WithLabelValues("limited").Inc()
		return
	}

	if len(ch) != 1 || p.Position >= len(r.passage) || ch[0] != r.passage[p.Position] {
		p.Errors++
		metrics.Keystrokes.WithLabelValues("miss").Inc()
		return
	}

	p.Position++
	metrics.Keystrokes.WithLabelValues("ok").Inc()
	r.broadcast(protocol.ServerMsg{Progress: &protocol.Progress{ID: p.Name, Pos: p.Position}})
	if p.Position == len(r.passage) {
		r.finishPlayer(p, now)
	}
}

// admitKey applies the sliding-window flood gate. Rejected keystrokes do not
// extend the window, so a burst drains after keyWindowSpan.
func (r *Room) admitKey(p *Player, now time.Time) bool {
	cutoff := now.Add(-keyWindowSpan)
	w := p.keyWindow
	for len(w) > 0 && w[0].Before(cutoff) {
		w = w[1:]
	}
	p.keyWindow = w
	if len(w) >= keyWindowLimit {
		return false
	}
	p.keyWindow = append(p.keyWindow, now)
	return true
}

func (r *Room) finishPlayer(p *Player, now time.Time) {
	p.Done = true
	p.DoneAt = now
	seconds := now.Sub(r.raceStart).Seconds()
	gross := wpm.Gross(len(r.passage), seconds)
	net := wpm.Net(len(r.passage), seconds, p.Errors)

	r.broadcast(protocol.ServerMsg{Finish: &protocol.Finish{
		ID:     p.Name,
		WPM:    gross,
		NetWPM: net,
	}})
	logging.Info(logging.WithPlayer(r.ctx, p.Name), "player finished",
		zap.Float64("wpm", gross), zap.Float64("net_wpm", net), zap.Int("errors", p.Errors))
	r.maybeFinishRace()
}

func (r *Room) playerBySub(subID string) *Player {
	for _, p := range r.players {
		if !p.IsBot && p.connID == subID {
			return p
		}
	}
	return nil
}

// --- Broadcast ---

// broadcast publishes to every subscriber without blocking. A subscriber
// whose queue is full is dropped from the bus and marked lagging; its
// connection delivers the final Error{Lagging} and closes the socket.
func (r *Room) broadcast(msg protocol.ServerMsg) {
	for id, sub := range r.subs {
		if sub.TrySend(msg) {
			continue
		}
		delete(r.subs, id)
		r.occupancy.Add(-1)
		sub.drop()
		metrics.SubscribersDropped.Inc()
		logging.Warn(logging.WithConn(r.ctx, id), "subscriber dropped for lagging")
	}
}

// sendTo addresses one subscriber, for errors that must not fan out.
func (r *Room) sendTo(subID string, msg protocol.ServerMsg) {
	if sub, ok := r.subs[subID]; ok {
		_ = sub.TrySend(msg)
	}
}

func (r *Room) lobbyMsg() protocol.ServerMsg {
	players := make([]string, len(r.order))
	copy(players, r.order)
	return protocol.ServerMsg{Lobby: &protocol.Lobby{Players: players}}
}

func (r *Room) stateMsg() protocol.ServerMsg {
	return protocol.ServerMsg{StateChange: &protocol.StateChange{State: string(r.state)}}
}

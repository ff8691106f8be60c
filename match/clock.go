package match

import (
	"time"

	"github.com/wfunc/bombarena/logger"
	"github.com/wfunc/bombarena/network"
)

// Timer callbacks re-enter through do, so they are serialized with client
// events. A tick that lands after the phase moved on does nothing.

func (m *Match) startCountdown() {
	if m.rules.CountdownTicks <= 0 {
		m.startClock()
		return
	}
	m.phase = phaseCountdown
	m.countdownLeft = m.rules.CountdownTicks
	m.broadcast(network.EventStartTimerGame, Countdown{GameID: m.ID, Time: m.countdownLeft})
	logger.Log.Infow("match countdown started", "match", m.ID, "ticks", m.countdownLeft)

	m.countdownTimer = m.scheduler.AddTimer(m.tick(), m.tick(), func() {
		m.do(m.countdownTick)
	})
}

func (m *Match) countdownTick() {
	if m.phase != phaseCountdown {
		return
	}
	m.countdownLeft--
	m.broadcast(network.EventStartTimerGame, Countdown{GameID: m.ID, Time: m.countdownLeft})
	if m.countdownLeft > 0 {
		return
	}
	m.scheduler.RemoveTimer(m.countdownTimer)
	m.countdownTimer = 0
	m.startClock()
}

func (m *Match) startClock() {
	m.phase = phaseRunning
	m.timeLeft = m.totalSeconds
	m.broadcast(network.EventGameTimerTick, ClockTick{GameID: m.ID, TimeLeft: m.timeLeft})
	logger.Log.Infow("match clock started", "match", m.ID, "seconds", m.timeLeft)

	if m.timeLeft <= 0 {
		m.checkWin(m.aliveCount())
		return
	}
	m.clockTimer = m.scheduler.AddTimer(m.tick(), m.tick(), func() {
		m.do(m.clockTick)
	})
}

func (m *Match) clockTick() {
	if m.phase != phaseRunning || m.timeLeft <= 0 {
		return
	}
	m.timeLeft--
	m.broadcast(network.EventGameTimerTick, ClockTick{GameID: m.ID, TimeLeft: m.timeLeft})
	if m.timeLeft == 0 {
		m.checkWin(m.aliveCount())
	}
}

func (m *Match) clockExpired() bool {
	return m.phase == phaseRunning && m.timeLeft == 0
}

func (m *Match) tick() time.Duration {
	if m.rules.TickInterval <= 0 {
		return time.Second
	}
	return m.rules.TickInterval
}

func (m *Match) stopTimers() {
	if m.countdownTimer != 0 {
		m.scheduler.RemoveTimer(m.countdownTimer)
		m.countdownTimer = 0
	}
	if m.clockTimer != 0 {
		m.scheduler.RemoveTimer(m.clockTimer)
		m.clockTimer = 0
	}
}

// checkWin ends the match when Resolve says so. Alive players get their
// survival time stamped before ranking.
func (m *Match) checkWin(aliveBefore int) {
	if m.phase == phaseOver {
		return
	}

	players := m.snapshot()
	elapsed := m.elapsed()
	for i := range players {
		if !players[i].timeAliveSet {
			players[i].TimeAlive = elapsed
		}
	}

	out := Resolve(players, aliveBefore, m.clockExpired(), m.rules.Ranking)
	if !out.Terminal {
		return
	}
	m.finish(out)
}

func (m *Match) finish(out Outcome) {
	m.stopTimers()
	for _, p := range m.players {
		m.setTimeAlive(p)
		p.Rank = out.Ranks[p.ID]
	}
	m.phase = phaseOver

	final := m.snapshot()
	winners := make([]Player, 0, len(out.Winners))
	for _, id := range out.Winners {
		winners = append(winners, *m.byID[id])
	}

	m.resultMu.Lock()
	m.outcome = &out
	m.finalPlayers = final
	m.finishedAt = time.Now()
	m.resultMu.Unlock()

	m.broadcast(network.EventGameOver, GameOver{
		GameID:  m.ID,
		Reason:  out.Reason,
		Winners: winners,
		Players: final,
	})
	logger.Log.Infow("match over", "match", m.ID, "room", m.RoomID, "reason", out.Reason, "winners", out.Winners)

	m.shutdown()
	if m.onOver != nil {
		m.onOver(m, out)
	}
}

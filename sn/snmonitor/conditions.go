package snmonitor

import (
	"fmt"

	"github.com/gordian-engine/gsentor/sn/snevent"
	"github.com/gordian-engine/gsentor/sn/snsubject"
)

// checkLiveness samples the rate monitor once and drives the liveness transitions.
func (m *Monitor) checkLiveness() {
	_, live := m.rate.Rate()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped || m.killed {
		return
	}

	if live {
		if !m.isLive {
			m.log.Debug("Subject is live again")
		}
		m.isLive = true

		stopTimer(&m.liveTimer)
		stopTimer(&m.liveRepeat)

		if m.cfg.Liveness == LivenessNotPublished {
			m.setLivenessSafeLocked(true)
		}
		return
	}

	if !m.isLive {
		return
	}
	m.isLive = false
	m.log.Debug("Subject went silent")

	if m.cfg.Liveness != LivenessNotPublished {
		return
	}

	oneShot := &timerEntry{}
	oneShot.t = m.clk.AfterFunc(m.cfg.Timeout, func() { m.silenceElapsed(oneShot) })
	m.liveTimer = oneShot

	if m.cfg.RepeatExec {
		rep := &timerEntry{}
		rep.t = m.clk.AfterFunc(m.cfg.Timeout, func() { m.silenceRepeat(rep) })
		m.liveRepeat = rep
	}
}

// silenceElapsed runs when the subject stayed silent for a full timeout.
func (m *Monitor) silenceElapsed(e *timerEntry) {
	m.mu.Lock()
	if m.liveTimer != e || m.killed {
		m.mu.Unlock()
		return
	}
	m.liveTimer = nil

	critical := m.cfg.SafetyCritical
	if critical {
		m.setLivenessSafeLocked(false)
	}
	m.mu.Unlock()

	if m.cfg.DefaultNotifications {
		if critical {
			m.notify(snevent.SeverityError, fmt.Sprintf(
				"SAFETY CRITICAL: Subject %s is not published anymore", m.cfg.Subject,
			), nil)
		} else {
			m.notify(snevent.SeverityWarn, fmt.Sprintf(
				"Subject %s is not published anymore", m.cfg.Subject,
			), nil)
		}
	}

	if !m.cfg.RepeatExec {
		m.execute(nil, m.cfg.ProcessIndices)
	}
}

// silenceRepeat runs every timeout while the subject stays silent
// and repeat execution is configured.
func (m *Monitor) silenceRepeat(e *timerEntry) {
	m.mu.Lock()
	if m.liveRepeat != e || m.killed {
		m.mu.Unlock()
		return
	}

	next := &timerEntry{}
	next.t = m.clk.AfterFunc(m.cfg.Timeout, func() { m.silenceRepeat(next) })
	m.liveRepeat = next
	m.mu.Unlock()

	m.execute(nil, m.cfg.ProcessIndices)
}

// published is the publication-detection callback for the "published" condition.
// Publication is a point event, so nothing restores safety afterwards.
func (m *Monitor) published(snsubject.Message) {
	m.mu.Lock()
	if m.stopped || m.killed {
		m.mu.Unlock()
		return
	}
	critical := m.cfg.SafetyCritical
	if critical {
		m.setLivenessSafeLocked(false)
	}
	m.mu.Unlock()

	if !m.cfg.DefaultNotifications {
		return
	}
	if critical {
		m.notify(snevent.SeverityError, fmt.Sprintf("SAFETY CRITICAL: Subject %s is published", m.cfg.Subject), nil)
	} else {
		m.notify(snevent.SeverityWarn, fmt.Sprintf("Subject %s is published", m.cfg.Subject), nil)
	}
}

func (m *Monitor) setLivenessSafeLocked(safe bool) {
	m.livenessSafe = safe
	if m.cfg.SafetyCritical && m.cfg.Liveness != LivenessNone {
		m.reg.SetSafe(m.livenessKey(), safe)
	}
}

// satisfied handles one message that satisfied l's expression.
// Only the first satisfying message of an episode arms the debounce timer;
// the repeat timer, when configured, always carries the latest one.
func (m *Monitor) satisfied(l *lambda, msg snsubject.Message) {
	expr := l.cfg.Expression

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped || m.killed {
		return
	}

	if _, ok := m.debounce[expr]; !ok {
		e := &timerEntry{msg: msg}
		e.t = m.clk.AfterFunc(l.cfg.Timeout, func() { m.expressionElapsed(l, e) })
		m.debounce[expr] = e
	}

	if !l.cfg.RepeatExec {
		return
	}
	if e, ok := m.repeat[expr]; ok {
		e.msg = msg
		return
	}
	e := &timerEntry{msg: msg}
	e.t = m.clk.AfterFunc(l.cfg.Timeout, func() { m.expressionRepeat(l, e) })
	m.repeat[expr] = e
}

// unsatisfied handles one message that did not satisfy l's expression.
func (m *Monitor) unsatisfied(l *lambda) {
	expr := l.cfg.Expression

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped || m.killed {
		return
	}

	if e, ok := m.debounce[expr]; ok {
		e.t.Stop()
		delete(m.debounce, expr)
	}
	if e, ok := m.repeat[expr]; ok {
		e.t.Stop()
		delete(m.repeat, expr)
	}

	if _, ok := m.activeViolations[expr]; ok {
		delete(m.activeViolations, expr)
		m.reg.SetSafe(m.lambdaKey(expr), true)
	}
	if len(m.activeViolations) == 0 {
		m.lambdasSafe = true
	}
}

// gateOpenLocked reports whether l may act right now.
// When it may not, the timer entry in timers is discarded,
// so that the next satisfying message starts over.
func (m *Monitor) gateOpenLocked(l *lambda, timers map[string]*timerEntry) bool {
	if !l.cfg.WhenPublished {
		return true
	}
	if _, live := m.rate.Rate(); live {
		return true
	}

	if e, ok := timers[l.cfg.Expression]; ok {
		e.t.Stop()
		delete(timers, l.cfg.Expression)
	}
	m.log.Debug("Subject not live; discarding expression timer", "expr", l.cfg.Expression)
	return false
}

// expressionElapsed runs when l's expression stayed satisfied for a full timeout.
// The debounce entry is kept afterwards,
// so one satisfied episode notifies only once.
func (m *Monitor) expressionElapsed(l *lambda, e *timerEntry) {
	expr := l.cfg.Expression

	m.mu.Lock()
	if m.debounce[expr] != e || m.killed {
		m.mu.Unlock()
		return
	}
	if !m.gateOpenLocked(l, m.debounce) {
		m.mu.Unlock()
		return
	}

	critical := l.cfg.SafetyCritical
	if critical {
		m.activeViolations[expr] = struct{}{}
		m.lambdasSafe = false
		m.reg.SetSafe(m.lambdaKey(expr), false)
	}
	msg := e.msg
	m.mu.Unlock()

	if l.cfg.DefaultNotifications {
		text := fmt.Sprintf(
			"Expression '%s' for %s seconds on subject %s satisfied",
			expr, seconds(l.cfg.Timeout), m.cfg.Subject,
		)
		if critical {
			m.notify(snevent.SeverityError, "SAFETY CRITICAL: "+text, msg.Data)
		} else {
			m.notify(snevent.SeverityWarn, text, msg.Data)
		}
	}

	if !l.cfg.RepeatExec {
		m.execute(&msg, l.cfg.ProcessIndices)
	}
}

// expressionRepeat runs every timeout while l's expression stays satisfied
// and repeat execution is configured.
func (m *Monitor) expressionRepeat(l *lambda, e *timerEntry) {
	expr := l.cfg.Expression

	m.mu.Lock()
	if m.repeat[expr] != e || m.killed {
		m.mu.Unlock()
		return
	}
	if !m.gateOpenLocked(l, m.repeat) {
		m.mu.Unlock()
		return
	}

	msg := e.msg
	next := &timerEntry{msg: msg}
	next.t = m.clk.AfterFunc(l.cfg.Timeout, func() { m.expressionRepeat(l, next) })
	m.repeat[expr] = next
	m.mu.Unlock()

	m.execute(&msg, l.cfg.ProcessIndices)
}

package install

import "github.com/distantorigin/modpack-installer/internal/events"

// progress turns step and byte counts into strictly increasing progress events
type progress struct {
	em        *events.Emitter
	total     int
	completed int
	last      float64
	sent      bool
}

func newProgress(em *events.Emitter, total int) *progress {
	return &progress{em: em, total: total}
}

func (p *progress) report(v float64) {
	if v > 1 {
		v = 1
	}
	if v < p.last || (p.sent && v == p.last) {
		return
	}
	p.last = v
	p.sent = true
	p.em.UpdateProgress(v)
}

// step marks one planned step as done
func (p *progress) step() {
	p.completed++
	if p.total > 0 {
		p.report(float64(p.completed) / float64(p.total))
	}
}

// partial interpolates within the current step; unknown sizes report nothing
func (p *progress) partial(bytesComplete, size int64) {
	if size <= 0 || p.total <= 0 {
		return
	}
	fraction := float64(bytesComplete) / float64(size)
	if fraction > 1 {
		fraction = 1
	}
	p.report((float64(p.completed) + fraction) / float64(p.total))
}

func (p *progress) finish() {
	p.report(1)
}

package provider

import "time"

// StartBackgroundTick runs Tick every interval (TickInterval if zero) until
// StopBackgroundTick or Shutdown.
func (p *Provider) StartBackgroundTick(interval time.Duration) {
	if interval <= 0 {
		interval = p.cfg.TickInterval
	}
	p.tickMu.Lock()
	defer p.tickMu.Unlock()
	if p.tickStop != nil {
		return // already running
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	p.tickStop, p.tickDone = stop, done
	p.tickEvery = interval

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				p.Tick()
			}
		}
	}()

	p.log.Info().Dur("interval", interval).Msg("started background tick")
}

// StopBackgroundTick stops the background tick goroutine and waits for a
// running Tick to return.
func (p *Provider) StopBackgroundTick() {
	p.tickMu.Lock()
	defer p.tickMu.Unlock()
	if p.tickStop == nil {
		return
	}
	close(p.tickStop)
	<-p.tickDone
	p.tickStop = nil
	p.tickDone = nil
	p.tickEvery = 0
	p.log.Info().Msg("stopped background tick")
}

// tickInterval returns the background tick period, or 0 if it is not running.
func (p *Provider) tickInterval() time.Duration {
	p.tickMu.Lock()
	defer p.tickMu.Unlock()
	return p.tickEvery
}

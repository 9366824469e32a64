package util

import "time"

// ImmediateTicker is a time.Ticker that also ticks right after creation.
type ImmediateTicker struct {
	C      <-chan time.Time
	ticker *time.Ticker
	done   chan struct{}
}

func NewImmediateTicker(d time.Duration) *ImmediateTicker {
	c := make(chan time.Time, 1)
	c <- time.Now()
	t := &ImmediateTicker{
		C:      c,
		ticker: time.NewTicker(d),
		done:   make(chan struct{}),
	}
	go func() {
		for {
			select {
			case <-t.done:
				return
			case tm := <-t.ticker.C:
				select {
				case c <- tm:
				default:
				}
			}
		}
	}()
	return t
}

func (t *ImmediateTicker) Stop() {
	t.ticker.Stop()
	close(t.done)
}

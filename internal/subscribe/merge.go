package subscribe

import (
	"sync"

	"github.com/hoppxi/backlightd/internal/backlight"
)

// Merge fans several event channels into one. The result is closed as soon
// as any input closes or stop is closed, so a source that dies cannot leave
// the others running on their own.
func Merge(stop <-chan struct{}, chans ...<-chan backlight.Event) <-chan backlight.Event {
	out := make(chan backlight.Event, 64)
	quit := make(chan struct{})
	var once sync.Once
	var wg sync.WaitGroup

	for _, ch := range chans {
		wg.Add(1)
		go func(ch <-chan backlight.Event) {
			defer wg.Done()
			for {
				select {
				case ev, ok := <-ch:
					if !ok {
						once.Do(func() { close(quit) })
						return
					}
					select {
					case out <- ev:
					case <-stop:
						return
					case <-quit:
						return
					}
				case <-stop:
					return
				case <-quit:
					return
				}
			}
		}(ch)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

package eventbus

import "context"

// SubscribeTyped returns a channel receiving only events of type T. The
// subscription ends when ctx is cancelled.
func SubscribeTyped[T any](ctx context.Context, bus EventBus) <-chan T {
	in := bus.Subscribe()
	out := make(chan T, 16)
	go func() {
		defer close(out)
		defer bus.Unsubscribe(in)
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-in:
				if !ok {
					return
				}
				if t, match := e.(T); match {
					select {
					case out <- t:
					default:
					}
				}
			}
		}
	}()
	return out
}

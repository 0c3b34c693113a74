// internal/browser/session/context_utils.go
package session

import "context"

// CombineContext derives a context from tab that is also canceled when op
// is. The tab context must be the parent: chromedp stores the CDP target in
// context values, so the result has to inherit from it while the
// operational deadline rides on op.
func CombineContext(tab, op context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(tab)
	stop := context.AfterFunc(op, cancel)
	return merged, func() {
		stop()
		cancel()
	}
}

// Detach returns a context that keeps ctx's values (including the CDP
// target) but survives its cancellation. Used for cleanup that must still
// reach the browser after an operation is abandoned.
func Detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

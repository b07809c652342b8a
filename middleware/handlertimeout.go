package middleware

import (
	"log"
	"time"

	"iot-proto/frame"
)

// HandlerTimeout logs when the rest of the chain takes longer than d to
// call next, adapted from the teacher's TimeOutMiddleware. Like the
// teacher's version it only observes and logs; it cannot cancel
// downstream work started by a middleware that ignores the timeout,
// since Go gives no safe way to preempt an arbitrary goroutine.
func HandlerTimeout(d time.Duration, logger *log.Logger) Middleware {
	if logger == nil {
		logger = log.Default()
	}
	return func(req *frame.Request, next Next) {
		done := make(chan struct{})
		go func() {
			next()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(d):
			logger.Printf("handler timeout: %s %s id=%d exceeded %s", req.Method, req.Path, req.ID, d)
			<-done
		}
	}
}

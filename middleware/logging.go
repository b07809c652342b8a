package middleware

import (
	"log"
	"time"

	"iot-proto/frame"
)

// Logging reports the method, path, and processing latency of every frame
// that reaches the chain, mirroring the teacher's LoggingMiddleware shape
// (log before, call next, log after with elapsed time).
func Logging(logger *log.Logger) Middleware {
	if logger == nil {
		logger = log.Default()
	}
	return func(req *frame.Request, next Next) {
		start := time.Now()
		logger.Printf("-> %s %s id=%d", req.Method, req.Path, req.ID)
		next()
		logger.Printf("<- %s %s id=%d (%s)", req.Method, req.Path, req.ID, time.Since(start))
	}
}

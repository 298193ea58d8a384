package safe

import (
	"PShare/logger"
	"PShare/tools/errs"
	"runtime/debug"

	"go.uber.org/zap"
)

// SafeGo starts a new goroutine that recovers from panic,
// so that panics don't crash the entire program.
func SafeGo(f func()) {
	go Run(f)
}

// Run calls f in the current goroutine, logging and swallowing a panic.
func Run(f func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("[SafeGo] panic recovered",
				zap.Error(errs.ErrPanic(r)),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	f()
}

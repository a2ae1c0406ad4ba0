package async

import "runtime/debug"

// PanicLogger captures panic reports from background goroutines.
type PanicLogger interface {
	Error(format string, args ...any)
}

// Go runs fn in a goroutine guarded by panic recovery.
func Go(logger PanicLogger, name string, fn func()) {
	GoWithPanicHandler(logger, name, fn, nil)
}

// GoWithPanicHandler runs fn in a goroutine; a panic is logged and, when
// onPanic is set, handed to it so the owner can record the failure.
func GoWithPanicHandler(logger PanicLogger, name string, fn func(), onPanic func(recovered any)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				report(logger, name, r)
				if onPanic != nil {
					onPanic(r)
				}
			}
		}()
		fn()
	}()
}

// Recover logs panic details without crashing the process.
func Recover(logger PanicLogger, name string) {
	if r := recover(); r != nil {
		report(logger, name, r)
	}
}

func report(logger PanicLogger, name string, r any) {
	if logger == nil {
		return
	}
	if name == "" {
		logger.Error("goroutine panic: %v, stack: %s", r, debug.Stack())
		return
	}
	logger.Error("goroutine panic [%s]: %v, stack: %s", name, r, debug.Stack())
}

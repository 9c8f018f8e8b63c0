package petra

import (
	"log"
	"os"
)

// Logger is the sink for operational messages. A host application can
// supply its own implementation to route petra's output into its own
// logging pipeline; the zero value of Options uses stdLogger, which writes
// through a standard-library log.Logger to standard output.
type Logger interface {
	Println(v ...interface{})
	Printf(format string, v ...interface{})
}

// stdoutLog is the standard-library logger behind stdLogger.
var stdoutLog = log.New(os.Stdout, "", log.LstdFlags)

// stdLogger adapts the standard library's log package to Logger.
type stdLogger struct{}

func (stdLogger) Println(v ...interface{})               { stdoutLog.Println(v...) }
func (stdLogger) Printf(format string, v ...interface{}) { stdoutLog.Printf(format, v...) }

// debugLogger wraps a Logger and only forwards Debugf calls when enabled.
// The probe uses this for verbose trace messages gated by the debug
// option.
type debugLogger struct {
	Logger
	enabled bool
}

func (d debugLogger) Debugf(format string, v ...interface{}) {
	if d.enabled {
		d.Printf("[debug] "+format, v...)
	}
}

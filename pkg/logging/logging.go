package logging

// Log levels in increasing order of severity.
const (
	LogLevelDebug = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// Logger is the logging interface handed to collectors, the supervisor,
// and the observer core. Implementations prepend a component prefix so
// output from the concurrent collector workers stays attributable.
type Logger interface {
	LogLevelf(level int, format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type LogLevelFunc func(level int, format string, args ...interface{})
type LogFunc func(format string, args ...interface{})

// LogFuncs carries the backend functions a Logger dispatches to.
// When LogLevelf is set, it receives every line regardless of level;
// otherwise lines route to the matching per-level function. Unset
// functions silently discard their level.
type LogFuncs struct {
	LogLevelf LogLevelFunc
	Debugf    LogFunc
	Infof     LogFunc
	Warnf     LogFunc
	Errorf    LogFunc
}

// NewLogger wraps funcs with a prefix applied to every format string.
func NewLogger(prefix string, funcs LogFuncs) Logger {
	return &prefixLogger{prefix: prefix, funcs: funcs}
}

type prefixLogger struct {
	prefix string
	funcs  LogFuncs
}

func (l *prefixLogger) funcForLevel(level int) LogFunc {
	switch level {
	case LogLevelDebug:
		return l.funcs.Debugf
	case LogLevelWarn:
		return l.funcs.Warnf
	case LogLevelError:
		return l.funcs.Errorf
	default:
		return l.funcs.Infof
	}
}

func (l *prefixLogger) LogLevelf(level int, format string, args ...interface{}) {
	format = l.prefix + format
	if l.funcs.LogLevelf != nil {
		l.funcs.LogLevelf(level, format, args...)
		return
	}
	if logf := l.funcForLevel(level); logf != nil {
		logf(format, args...)
	}
}

func (l *prefixLogger) Debugf(format string, args ...interface{}) {
	l.LogLevelf(LogLevelDebug, format, args...)
}

func (l *prefixLogger) Infof(format string, args ...interface{}) {
	l.LogLevelf(LogLevelInfo, format, args...)
}

func (l *prefixLogger) Warnf(format string, args ...interface{}) {
	l.LogLevelf(LogLevelWarn, format, args...)
}

func (l *prefixLogger) Errorf(format string, args ...interface{}) {
	l.LogLevelf(LogLevelError, format, args...)
}

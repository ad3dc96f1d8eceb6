package logger

type LevelWrapper struct {
	Base
	kv []any
}

func WrapLogger(l Base) Logger {
	return &LevelWrapper{Base: l}
}

func (w *LevelWrapper) Log(level LogLevel, msg string, kv ...any) {
	if len(w.kv) > 0 {
		merged := make([]any, 0, len(w.kv)+len(kv))
		merged = append(merged, w.kv...)
		merged = append(merged, kv...)
		kv = merged
	}
	w.Base.Log(level, msg, kv...)
}

func (w *LevelWrapper) Debug(msg string, kv ...any) {
	w.Log(DebugLevel, msg, kv...)
}

func (w *LevelWrapper) Info(msg string, kv ...any) {
	w.Log(InfoLevel, msg, kv...)
}

func (w *LevelWrapper) Warn(msg string, kv ...any) {
	w.Log(WarnLevel, msg, kv...)
}

func (w *LevelWrapper) Error(msg string, kv ...any) {
	w.Log(ErrorLevel, msg, kv...)
}

func (w *LevelWrapper) With(kv ...any) Logger {
	merged := make([]any, 0, len(w.kv)+len(kv))
	merged = append(merged, w.kv...)
	merged = append(merged, kv...)
	return &LevelWrapper{Base: w.Base, kv: merged}
}

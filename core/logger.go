package core

// Logger logs messages and reports errors.
// args may contain errors, extra fields (map[string]interface{}) and the Principal the log entry is about.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Principal identifies the account a log entry or request is about.
type Principal struct {
	ID    string
	Name  string
	Email string
}

package lifecycle

// Instance is a resource that is opened once and closed once.
type Instance interface {
	Close() error
	String() string
}

// Manager guards the open and close of an Instance. Close only reaches the
// instance when Start succeeded, and only the first time.
type Manager[T Instance] interface {
	Start(func(T) error) error
	Started() bool
	Close() error
}

type StartedAlreadyError struct{}

func (*StartedAlreadyError) Error() string {
	return "started already"
}

type StartedAfterCloseError struct{}

func (*StartedAfterCloseError) Error() string {
	return "start after close"
}

package logger

import (
	"bytes"
	"fmt"
	"reflect"
	"sync"

	"github.com/sirupsen/logrus"
)

type stringer interface {
	String() string
}

type logPair struct {
	logFn func(...any)
	obj   string
	msg   string
}

const (
	logSize = 1000
	objSize = 20
)

var (
	mu      sync.RWMutex
	logCh   chan logPair
	drained chan struct{}
)

func objToString(obj any) (objStr string) {
	if obj == nil {
		objStr = "NIL"
	} else if stringerObj, ok := obj.(stringer); ok {
		objStr = stringerObj.String()
	} else if objStr, ok = obj.(string); ok {
	} else {
		t := reflect.TypeOf(obj)
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		objStr = t.Name()
	}
	if len(objStr) > objSize {
		objStr = objStr[:objSize]
	}
	return
}

func format(p logPair) string {
	return fmt.Sprintf("|%20s|%-100s", p.obj, p.msg)
}

// Init configures logrus and starts the asynchronous writer. Before Init is
// called every message is written synchronously.
func Init(lvl logrus.Level) {
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{
		ForceColors:     true,
		FullTimestamp:   true,
		PadLevelText:    true,
		TimestampFormat: "2006/01/02 15:04:05",
	})

	mu.Lock()
	defer mu.Unlock()
	if logCh != nil {
		return
	}
	logCh = make(chan logPair, logSize)
	drained = make(chan struct{})

	go func(ch <-chan logPair, done chan<- struct{}) {
		defer close(done)
		sb := new(bytes.Buffer)
		for p := range ch {
			sb.WriteString(format(p))
			p.logFn(sb.String())
			sb.Reset()
		}
	}(logCh, drained)
}

// Flush stops the asynchronous writer after every queued message has been
// written. Later messages are written synchronously.
func Flush() {
	mu.Lock()
	ch, done := logCh, drained
	logCh, drained = nil, nil
	mu.Unlock()

	if ch == nil {
		return
	}
	close(ch)
	<-done
}

func send(lvl logrus.Level, fn func(...any), object any, msg string) {
	if logrus.GetLevel() < lvl {
		return
	}
	p := logPair{logFn: fn, obj: objToString(object), msg: msg}

	mu.RLock()
	defer mu.RUnlock()
	if logCh == nil {
		p.logFn(format(p))
		return
	}
	logCh <- p
}

func Trace(object any, message string) {
	send(logrus.TraceLevel, logrus.Trace, object, message)
}

func Tracef(object any, message string, args ...any) {
	if logrus.GetLevel() < logrus.TraceLevel {
		return
	}
	send(logrus.TraceLevel, logrus.Trace, object, fmt.Sprintf(message, args...))
}

func Debug(object any, message string) {
	send(logrus.DebugLevel, logrus.Debug, object, message)
}

func Debugf(object any, message string, args ...any) {
	if logrus.GetLevel() < logrus.DebugLevel {
		return
	}
	send(logrus.DebugLevel, logrus.Debug, object, fmt.Sprintf(message, args...))
}

func Info(object any, message string) {
	send(logrus.InfoLevel, logrus.Info, object, message)
}

func Infof(object any, message string, args ...any) {
	if logrus.GetLevel() < logrus.InfoLevel {
		return
	}
	send(logrus.InfoLevel, logrus.Info, object, fmt.Sprintf(message, args...))
}

func Warning(object any, message string) {
	send(logrus.WarnLevel, logrus.Warning, object, message)
}

func Warningf(object any, message string, args ...any) {
	if logrus.GetLevel() < logrus.WarnLevel {
		return
	}
	send(logrus.WarnLevel, logrus.Warning, object, fmt.Sprintf(message, args...))
}

func Error(object any, message string) {
	send(logrus.ErrorLevel, logrus.Error, object, message)
}

func Errorf(object any, message string, args ...any) {
	if logrus.GetLevel() < logrus.ErrorLevel {
		return
	}
	send(logrus.ErrorLevel, logrus.Error, object, fmt.Sprintf(message, args...))
}

// Fatal bypasses the queue so the message is written before the process exits.
func Fatal(object any, message string) {
	Flush()
	logrus.Fatal(format(logPair{obj: objToString(object), msg: message}))
}

func Fatalf(object any, message string, args ...any) {
	Flush()
	logrus.Fatal(format(logPair{obj: objToString(object), msg: fmt.Sprintf(message, args...)}))
}

package logger

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

type named struct{}

func (named) String() string { return "named-object" }

type plain struct{}

func TestObjToString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		obj  any
		want string
	}{
		{name: "nil", obj: nil, want: "NIL"},
		{name: "stringer", obj: named{}, want: "named-object"},
		{name: "string", obj: "remuxer", want: "remuxer"},
		{name: "type name", obj: plain{}, want: "plain"},
		{name: "pointer type name", obj: &plain{}, want: "plain"},
		{name: "truncated", obj: strings.Repeat("x", 40), want: strings.Repeat("x", objSize)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, objToString(tt.obj))
		})
	}
}

func TestSyncAndAsyncDelivery(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	logrus.SetLevel(logrus.InfoLevel)
	Info("sync", "before init")
	require.Len(t, hook.AllEntries(), 1)
	require.Contains(t, hook.LastEntry().Message, "before init")

	Debugf("sync", "filtered %d", 1)
	require.Len(t, hook.AllEntries(), 1)

	Init(logrus.InfoLevel)
	for i := 0; i < 10; i++ {
		Infof("async", "message %d", i)
	}
	Flush()

	entries := hook.AllEntries()
	require.Len(t, entries, 11)
	require.Contains(t, entries[10].Message, "message 9")
	require.Contains(t, entries[10].Message, "|")

	Warning("after", "flush")
	require.Len(t, hook.AllEntries(), 12)
	require.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

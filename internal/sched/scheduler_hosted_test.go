package sched_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickos/internal/cpu"
	"tickos/internal/msg"
	"tickos/internal/sched"
)

// These tests run on the goroutine backed CPU: the test goroutine is the
// main task and every switch really transfers control.

func TestSleepResumesOnlyAfterWakeup(t *testing.T) {
	c := cpu.New()
	m, err := sched.NewManager(c, sched.WithMainLevel(1))
	require.NoError(t, err)
	main := m.CurrentTask()

	var trace []string
	var wakeErr error
	a := m.NewTask().SetLevel(1)
	_, err = a.InitContext(func(id sched.TaskID, arg int64) {
		trace = append(trace, "a: running")
		trace = append(trace, "a: waking main")
		wakeErr = m.WakeupID(main.ID(), -1)
		trace = append(trace, "a: sleeping")
		for {
			m.Sleep(a)
		}
	}, 0)
	require.NoError(t, err)
	a.Wakeup()

	trace = append(trace, "main: sleeping")
	main.Sleep()
	trace = append(trace, "main: resumed")

	require.NoError(t, wakeErr)
	assert.Equal(t, []string{
		"main: sleeping",
		"a: running",
		"a: waking main",
		"a: sleeping",
		"main: resumed",
	}, trace)
	assert.True(t, main.Running())
	assert.False(t, a.Running())
	assert.Same(t, main, m.CurrentTask())
	assert.True(t, c.InterruptsEnabled())
}

func TestEntryReceivesIDAndArgument(t *testing.T) {
	c := cpu.New()
	m, err := sched.NewManager(c, sched.WithMainLevel(1))
	require.NoError(t, err)
	main := m.CurrentTask()

	var gotID sched.TaskID
	var gotArg int64
	a := m.NewTask().SetLevel(2)
	_, err = a.InitContext(func(id sched.TaskID, arg int64) {
		gotID, gotArg = id, arg
		for {
			m.Sleep(a)
		}
	}, 42)
	require.NoError(t, err)
	m.Wakeup(a, -1)

	// a is above main, so one yield runs it until it sleeps
	m.SwitchTask(false)

	assert.Equal(t, a.ID(), gotID)
	assert.Equal(t, int64(42), gotArg)
	assert.Same(t, main, m.CurrentTask())
}

func TestMessagesWakeSleepingReceiver(t *testing.T) {
	c := cpu.New()
	m, err := sched.NewManager(c, sched.WithMainLevel(1))
	require.NoError(t, err)
	main := m.CurrentTask()

	var received []byte
	echo := m.NewTask().SetLevel(2)
	_, err = echo.InitContext(func(id sched.TaskID, arg int64) {
		for {
			mm, ok := echo.ReceiveMessage()
			if !ok {
				m.Sleep(echo)
				continue
			}
			received = append(received, mm.Keyboard.ASCII)
		}
	}, 0)
	require.NoError(t, err)

	// echo has never run; it is woken by the first message
	for _, ch := range []byte("hi") {
		require.NoError(t, m.SendMessage(echo.ID(), msg.KeyPush(uint64(main.ID()), ch, true)))
	}
	m.SwitchTask(false)
	assert.Equal(t, []byte("hi"), received)
	assert.False(t, echo.Running(), "receiver went back to sleep with an empty inbox")

	require.NoError(t, m.SendMessage(echo.ID(), msg.KeyPush(uint64(main.ID()), '!', true)))
	m.SwitchTask(false)
	assert.Equal(t, []byte("hi!"), received)
}

package job

import (
	"io"

	"tickos/internal/kernel"
	"tickos/internal/msg"
	"tickos/internal/sched"
)

// Echo returns an entry that writes the ASCII of every pressed key it
// receives to out. It sleeps while its inbox is empty; SendMessage wakes it.
// Write errors are logged and the key is dropped.
func Echo(k *kernel.Kernel, out io.Writer) sched.TaskFunc {
	return func(id sched.TaskID, arg int64) {
		t, err := k.Tasks().Task(id)
		if err != nil {
			panic(err)
		}
		for {
			prev := k.CPU().DisableInterrupts()
			m, ok := t.ReceiveMessage()
			if !ok {
				k.Tasks().Sleep(t)
				k.CPU().RestoreInterrupts(prev)
				continue
			}
			k.CPU().RestoreInterrupts(prev)

			if m.Kind != msg.KindKeyPush || !m.Keyboard.Press || m.Keyboard.ASCII == 0 {
				continue
			}
			if _, err := out.Write([]byte{m.Keyboard.ASCII}); err != nil {
				k.Logger().Printf("task %d: echo: %v", id, err)
			}
		}
	}
}

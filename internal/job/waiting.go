// Package job holds ready-made task entry points used by the demo binary
// and by tests that need realistic workloads on the scheduler.
package job

import (
	"sync/atomic"

	"tickos/internal/kernel"
	"tickos/internal/sched"
)

// SleepWork returns an entry that busy-waits for the given number of timer
// ticks, calls done once and then sleeps for good. The task stays runnable
// while it waits, so it is preempted by the heartbeat like any CPU-bound job.
func SleepWork(k *kernel.Kernel, ticks uint64, done func(sched.TaskID)) sched.TaskFunc {
	return func(id sched.TaskID, arg int64) {
		deadline := k.Timers().CurrentTick() + ticks
		for k.Timers().CurrentTick() < deadline {
			k.CPU().Pause()
		}
		if done != nil {
			done(id)
		}
		park(k, id)
	}
}

// Spin returns an entry that counts loop iterations forever.
func Spin(k *kernel.Kernel, count *atomic.Int64) sched.TaskFunc {
	return func(id sched.TaskID, arg int64) {
		for {
			count.Add(1)
			k.CPU().Pause()
		}
	}
}

// park puts the task to sleep until the end of time. Entries never return.
func park(k *kernel.Kernel, id sched.TaskID) {
	for {
		if err := k.Tasks().SleepID(id); err != nil {
			panic(err)
		}
	}
}

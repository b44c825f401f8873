// Package arch describes the amd64 execution context and the platform
// contracts the scheduler core relies on. Nothing in here interprets a
// Context after it has been built; it is handed to the switch routine as is.
package arch

import "reflect"

const (
	// KernelCS is the code segment selector for ring 0 tasks.
	KernelCS uint64 = 1 << 3
	// KernelSS is the stack segment selector for ring 0 tasks.
	KernelSS uint64 = 2 << 3

	// RFlagsIF is the interrupt enable flag.
	RFlagsIF uint64 = 1 << 9
	// RFlagsInit is the flags value a fresh task starts with: the
	// always-one bit 1 plus IF.
	RFlagsInit uint64 = 0x202

	// MXCSRDefault masks all SIMD floating point exceptions.
	MXCSRDefault uint32 = 0x1f80
	// MXCSROffset is the byte offset of MXCSR inside the FXSAVE area.
	MXCSROffset = 24

	// StackAlign is the call ABI stack alignment.
	StackAlign = 16
)

// Context is the register file saved and restored by SwitchContext.
//
// The layout is fixed; the switch routine addresses fields by offset:
//
//	0x00 CR3  0x08 RIP  0x10 RFLAGS  0x18 reserved
//	0x20 CS   0x28 SS   0x30 FS      0x38 GS
//	0x40 RAX RBX RCX RDX RDI RSI RSP RBP
//	0x80 R8 .. R15
//	0xc0 FXSAVE area (512 bytes)
type Context struct {
	CR3, RIP, RFlags, Reserved1 uint64
	CS, SS, FS, GS              uint64
	RAX, RBX, RCX, RDX          uint64
	RDI, RSI, RSP, RBP          uint64
	R8, R9, R10, R11            uint64
	R12, R13, R14, R15          uint64
	FXSaveArea                  [512]byte
}

// InterruptsEnabled reports whether the saved flags have IF set.
func (c *Context) InterruptsEnabled() bool {
	return c.RFlags&RFlagsIF != 0
}

// Switcher transfers the CPU between two execution contexts.
type Switcher interface {
	// SwitchContext saves the running register file into from and loads
	// to. It returns only when from is switched back to.
	SwitchContext(to, from *Context)
}

// Interrupts brackets critical sections on a single CPU.
type Interrupts interface {
	// DisableInterrupts clears IF and returns whether it was set.
	DisableInterrupts() bool
	// RestoreInterrupts sets IF again if enabled is true.
	RestoreInterrupts(enabled bool)
}

// AddressSpace exposes the active page table root.
type AddressSpace interface {
	CR3() uint64
}

// Halter stops the CPU until the next interrupt.
type Halter interface {
	Halt()
}

// Platform is everything the scheduler core needs from the machine.
type Platform interface {
	Switcher
	Interrupts
	AddressSpace
	Halter
}

// Binder is implemented by platforms that cannot jump to RIP and need the
// entry closure of a context instead.
type Binder interface {
	Bind(ctx *Context, entry func())
}

// EntryPC returns the code address of fn, or 0 for a nil func.
func EntryPC(fn any) uint64 {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return 0
	}
	return uint64(v.Pointer())
}

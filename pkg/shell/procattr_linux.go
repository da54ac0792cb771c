package shell

import "syscall"

// ProcAttr will stop child if parent died (even with SIGKILL)
func ProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Pdeathsig: syscall.SIGTERM}
}

//go:build !linux

package shell

import "syscall"

func ProcAttr() *syscall.SysProcAttr {
	return nil
}

//go:build windows

package utils

import (
	"syscall"
)

func setSocketOptions(fd uintptr, size int) {
	syscall.SetsockoptInt(syscall.Handle(fd), syscall.SOL_SOCKET, syscall.SO_RCVBUF, size)
}

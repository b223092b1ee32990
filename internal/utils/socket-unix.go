//go:build linux || darwin

package utils

import (
	"syscall"
)

func setSocketOptions(fd uintptr, size int) {
	syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_RCVBUF, size)
}

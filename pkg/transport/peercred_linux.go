//go:build linux

package transport

import (
	"net"
	"os"

	"golang.org/x/sys/unix"

	"github.com/localbridge/localbridged/pkg/log"
)

// peerIsSameUser reads the peer's credentials via SO_PEERCRED and
// rejects the connection unless the peer's effective UID matches ours.
// If the kernel cannot report a peer credential, the connection is
// rejected (spec.md §4.1: "If the OS does not expose a peer credential,
// the connection is rejected").
func peerIsSameUser(conn *net.UnixConn) bool {
	raw, err := conn.SyscallConn()
	if err != nil {
		log.Logf("- could not obtain raw connection for peer credential check: %v", err)
		return false
	}

	var ucred *unix.Ucred
	var getErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		ucred, getErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if ctrlErr != nil {
		log.Logf("- peer credential control error: %v", ctrlErr)
		return false
	}
	if getErr != nil {
		log.Logf("- peer credential lookup failed: %v", getErr)
		return false
	}

	return int(ucred.Uid) == os.Geteuid()
}

//go:build !linux

package transport

import "net"

// peerIsSameUser has no portable implementation outside Linux in this
// build; per spec.md §4.1 ("if the OS does not expose a peer credential,
// the connection is rejected") every connection is rejected rather than
// silently skipping authentication.
func peerIsSameUser(conn *net.UnixConn) bool {
	return false
}

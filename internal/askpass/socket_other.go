//go:build !unix

package askpass

import (
	"context"
	"errors"
	"net"
)

// ErrUnsupportedPlatform is returned by operations that require a
// named-pipe implementation not yet written for this platform.
var ErrUnsupportedPlatform = errors.New("askpass: not implemented on this platform")

func listenSocket(string) (net.Listener, error) {
	return nil, ErrUnsupportedPlatform
}

func dialSocket(context.Context, string) (net.Conn, error) {
	return nil, ErrUnsupportedPlatform
}

func checkPeer(net.Conn) error {
	return ErrUnsupportedPlatform
}

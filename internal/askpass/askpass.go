// Package askpass implements a credential broker for Git child
// processes, speaking the protocol described by
// GITBUTLER_ASKPASS_SOCKET: a Unix domain socket that accepts a
// shared secret followed by newline-delimited credential requests.
package askpass

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"

	"go.abhg.dev/but/internal/silog"
)

// Request is a single credential request from the invoked Git
// process: a credential kind ("username" or "password", matching
// Git's credential helper protocol) and the URL it's authenticating
// against.
type Request struct {
	Kind string
	URL  string
}

// Provider answers a credential request. It may prompt a user, consult
// a secret stash, or fail the request by returning an error.
type Provider func(ctx context.Context, req Request) (string, error)

// Server accepts connections on a Unix domain socket and answers
// credential requests by delegating to a [Provider]. Peers must
// present the server's shared secret and, where the platform
// supports it, run under the server's own UID. The peer's PID is not
// checked.
type Server struct {
	log      *silog.Logger
	provider Provider
	secret   string

	listener net.Listener
	path     string

	wg sync.WaitGroup
}

// NewServer creates a Server listening on a Unix domain socket at
// path, which must not already exist. The socket is created with mode
// 0600 so only the invoking user can connect.
func NewServer(path string, provider Provider, log *silog.Logger) (*Server, error) {
	if log == nil {
		log = silog.Nop()
	}

	secret, err := randomSecret()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	ln, err := listenSocket(path)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", path, err)
	}

	return &Server{
		log:      log,
		provider: provider,
		secret:   secret,
		listener: ln,
		path:     path,
	}, nil
}

// Secret returns the shared secret a client must present before
// issuing requests.
func (s *Server) Secret() string {
	return s.secret
}

// Env returns the environment variables an invoked Git process needs
// to reach this server, suitable for appending to an *exec.Cmd's
// Env.
func (s *Server) Env() []string {
	return []string{
		"GITBUTLER_ASKPASS_SOCKET=" + s.path,
		"GITBUTLER_ASKPASS_SECRET=" + s.secret,
	}
}

// Serve accepts connections until ctx is canceled or Close is called.
// Each connection is handled in its own goroutine; Serve returns once
// the listener is closed and all in-flight connections have finished.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.wg.Wait()
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

// Close tears down the socket. Serve returns shortly after.
func (s *Server) Close() error {
	err := s.listener.Close()
	s.wg.Wait()
	_ = os.Remove(s.path)
	return err
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if err := checkPeer(conn); err != nil {
		s.log.Warn("askpass: rejecting connection", "error", err)
		return
	}

	r := bufio.NewReader(conn)

	line, err := r.ReadString('\n')
	if err != nil {
		return
	}
	if subtle.ConstantTimeCompare([]byte(strings.TrimSuffix(line, "\n")), []byte(s.secret)) != 1 {
		s.log.Warn("askpass: rejecting connection with bad secret")
		return
	}

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSuffix(line, "\n")
		if line == "" {
			continue
		}

		kind, url, ok := strings.Cut(line, "\t")
		if !ok {
			_, _ = fmt.Fprintln(conn, "")
			continue
		}

		value, err := s.provider(ctx, Request{Kind: kind, URL: url})
		if err != nil {
			s.log.Warn("askpass: provider failed", "kind", kind, "url", url, "error", err)
			_, _ = fmt.Fprintln(conn, "")
			continue
		}

		_, _ = fmt.Fprintln(conn, value)
	}
}

func randomSecret() (string, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}

// Client is a minimal client for the askpass protocol, used by tests
// and by any process acting as a Git credential helper against a
// running [Server].
type Client struct {
	path, secret string
}

// NewClient returns a client that will dial the socket at path,
// authenticating with secret.
func NewClient(path, secret string) *Client {
	return &Client{path: path, secret: secret}
}

// Request asks the server for a credential, returning the empty
// string if the server declined to answer.
func (c *Client) Request(ctx context.Context, kind, url string) (string, error) {
	conn, err := dialSocket(ctx, c.path)
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", c.path, err)
	}
	defer conn.Close()

	if _, err := fmt.Fprintln(conn, c.secret); err != nil {
		return "", err
	}
	if _, err := fmt.Fprintf(conn, "%s\t%s\n", kind, url); err != nil {
		return "", err
	}

	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(line, "\n"), nil
}

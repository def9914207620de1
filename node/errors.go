package node

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is the end-of-connection signal: the stream yielded no data or failed.
	ErrClosed = errors.New("rmi: connection closed")

	// ErrProtocol marks malformed traffic: unknown tags, dangling back-references,
	// unencodable values or a message kind that makes no sense where it arrived.
	ErrProtocol = errors.New("rmi: protocol error")

	ErrNotSupported  = errors.New("rmi: not supported")
	ErrEvalDisabled  = errors.New("rmi: expression evaluation is not enabled on this node")
	ErrNoResolver    = errors.New("rmi: no resolver configured")
	ErrNotCallable   = errors.New("rmi: value is not callable")
	ErrNoSuchSymbol  = errors.New("rmi: no such symbol")
	ErrWrongArgCount = errors.New("rmi: wrong number of arguments")
)

// RemoteError is an application failure raised on the peer. Only its text survives the trip.
type RemoteError string

func (e RemoteError) Error() string {
	return string(e)
}

func protocolError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, args...))
}

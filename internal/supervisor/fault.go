package supervisor

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	goredis "github.com/redis/go-redis/v9"
)

// faultHook reports connection-level failures of one connection to the supervisor
type faultHook struct {
	conn string
	s    *Supervisor
}

var _ goredis.Hook = faultHook{}

// DialHook passes through: a failed dial surfaces as the error of the
// command that needed the connection.
func (h faultHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return next
}

func (h faultHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		err := next(ctx, cmd)
		if isConnectionError(err) {
			h.s.Fault(h.conn, err)
		}
		return err
	}
}

func (h faultHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		err := next(ctx, cmds)
		if isConnectionError(err) {
			h.s.Fault(h.conn, err)
		}
		return err
	}
}

// isConnectionError reports whether err means the connection itself is
// unusable. Server replies, empty results, cancellation and use after
// Close are not connection errors.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, goredis.Nil) ||
		errors.Is(err, goredis.ErrClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var rerr goredis.Error
	if errors.As(err, &rerr) {
		return false
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

package session

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"wirdbot/internal/metrics"
	logx "wirdbot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

// MWTimeout bounds a single message. d is read per call so the timeout
// follows config reloads.
func MWTimeout(d func() time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			td := d()
			if td <= 0 {
				return next(ctx, req)
			}
			cctx, cancel := context.WithTimeout(ctx, td)
			defer cancel()
			return next(cctx, req)
		}
	}
}

var errPanic = errors.New("handler panic")

func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger := log
					if req != nil && !req.Logger.IsZero() {
						logger = req.Logger
					}
					logger.Error("panic recovered",
						logx.Any("panic", r),
						logx.Stack(string(debug.Stack())),
					)
					err = fmt.Errorf("%w: %v", errPanic, r)
				}
			}()
			return next(ctx, req)
		}
	}
}

func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			logger := log
			if req != nil && !req.Logger.IsZero() {
				logger = req.Logger
			}
			err := next(ctx, req)
			d := time.Since(start)

			fields := []logx.Field{
				logx.Int64("chat_id", req.Message.ChatID),
				logx.Int("len", len(req.Message.Text)),
				logx.Duration("dur", d),
			}
			switch {
			case err == nil:
				metrics.MessageHandled("ok", d)
				// Keep INFO useful: short successful messages go to DEBUG.
				if d >= 750*time.Millisecond {
					logger.Info("message ok", fields...)
				} else {
					logger.Debug("message ok", fields...)
				}
			case errors.Is(err, errPanic):
				metrics.MessageHandled("panic", d)
				logger.Warn("message failed", append(fields, logx.Err(err))...)
			case errors.Is(err, context.DeadlineExceeded):
				metrics.MessageHandled("timeout", d)
				logger.Warn("message timed out", append(fields, logx.Err(err))...)
			default:
				metrics.MessageHandled("error", d)
				logger.Warn("message failed", append(fields, logx.Err(err))...)
			}
			return err
		}
	}
}

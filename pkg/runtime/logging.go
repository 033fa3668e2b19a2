package runtime

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LoggingClient wraps a Client and records every runtime operation, with
// its outcome, in the run log before control returns to the caller. The
// executor and rollback controller are always given a wrapped client so
// no externally visible command escapes the log.
type LoggingClient struct {
	inner  Client
	logger zerolog.Logger
}

// WithLogging wraps client so every operation is logged
func WithLogging(client Client, logger zerolog.Logger) *LoggingClient {
	return &LoggingClient{inner: client, logger: logger}
}

func (l *LoggingClient) Ping(ctx context.Context) error {
	err := l.inner.Ping(ctx)
	l.record("ping", "", err).Send()
	return err
}

func (l *LoggingClient) Running(ctx context.Context, containerID string) (ImageState, error) {
	state, err := l.inner.Running(ctx, containerID)
	l.record("inspect", containerID, err).
		Str("image", state.Ref).
		Str("digest", state.Digest).
		Bool("running", state.Running).
		Send()
	return state, err
}

func (l *LoggingClient) Pull(ctx context.Context, imageRef string) (string, error) {
	start := time.Now()
	digest, err := l.inner.Pull(ctx, imageRef)
	l.record("pull", imageRef, err).
		Str("digest", digest).
		Dur("took", time.Since(start)).
		Send()
	return digest, err
}

func (l *LoggingClient) Start(ctx context.Context, containerID, imageRef string) error {
	err := l.inner.Start(ctx, containerID, imageRef)
	l.record("start", containerID, err).Str("image", imageRef).Send()
	return err
}

func (l *LoggingClient) Stop(ctx context.Context, containerID string, timeout time.Duration) error {
	err := l.inner.Stop(ctx, containerID, timeout)
	l.record("stop", containerID, err).Dur("timeout", timeout).Send()
	return err
}

func (l *LoggingClient) Exec(ctx context.Context, containerID string, command []string) (ExecResult, error) {
	result, err := l.inner.Exec(ctx, containerID, command)
	l.record("exec", containerID, err).
		Strs("cmd", command).
		Int("exit", result.ExitCode).
		Send()
	return result, err
}

func (l *LoggingClient) Close() error {
	return l.inner.Close()
}

func (l *LoggingClient) record(op, target string, err error) *zerolog.Event {
	var event *zerolog.Event
	if err != nil {
		event = l.logger.Error().Err(err)
	} else {
		event = l.logger.Info()
	}
	event = event.Str("cmd_op", op)
	if target != "" {
		event = event.Str("target", target)
	}
	return event
}

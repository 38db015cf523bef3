package grace

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// SetupSignalHandler returns a context canceled on the first interrupt or termination signal.
// A second signal terminates the process immediately.
func SetupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signals
		cancel()
		<-signals
		os.Exit(1)
	}()

	return ctx
}

// ExitOrLog logs the error and exits unless the error is nil or a result of cancellation
func ExitOrLog(logger log.Logger, err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}

	level.Error(logger).Log("msg", "exiting", "err", err)
	os.Exit(1)
}

// SuccessRequired exits if err is not nil, logging the message and what to do about it when known
func SuccessRequired(logger log.Logger, err error, msg string) {
	if err == nil {
		return
	}

	var actionable Error
	if errors.As(err, &actionable) {
		level.Error(logger).Log("msg", msg, "expected", actionable.WhatExpected(), "got", actionable.WhatHappened(), "todo", actionable.WhatToDo())
	} else {
		level.Error(logger).Log("msg", msg, "err", err)
	}
	os.Exit(1)
}

package system

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"
)

type ShutdownHandler func()

// RegisterGracefulShutdownHandler calls handler on the first SIGINT or SIGTERM
// so the running scan can stop cleanly. A second signal exits immediately.
// The returned function unregisters the handler.
func RegisterGracefulShutdownHandler(handler ShutdownHandler) func() {
	sigChannel := make(chan os.Signal, 2)
	signal.Notify(sigChannel, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			signal.Stop(sigChannel)
			close(done)
		})
	}

	go func() {
		select {
		case <-sigChannel:
			log.Info().Msg("Received interrupt signal, shutting down gracefully...")
			handler()
		case <-done:
			return
		}

		select {
		case <-sigChannel:
			log.Warn().Msg("Received second interrupt signal, exiting")
			os.Exit(130)
		case <-done:
		}
	}()

	return stop
}

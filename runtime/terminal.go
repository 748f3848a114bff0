package runtime

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/term"
)

type terminalState struct {
	state *term.State
	fd    int
}

// saveTerminal snapshots f's terminal mode. It returns nil when f is not a
// terminal.
func saveTerminal(f *os.File) *terminalState {
	if f == nil {
		f = os.Stdin
	}
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return nil
	}
	st, err := term.GetState(fd)
	if err != nil {
		Logger().Warn("cannot save terminal state", zap.Error(err))
		return nil
	}
	return &terminalState{fd: fd, state: st}
}

func (t *terminalState) restore() error {
	if t == nil {
		return nil
	}
	return term.Restore(t.fd, t.state)
}

// forwardSignals relays SIGINT, SIGTERM and SIGQUIT to handler until the
// returned stop function is called.
func forwardSignals(handler func(os.Signal)) (stop func()) {
	if handler == nil {
		handler = func(sig os.Signal) {
			Logger().Info("signal received", zap.Stringer("signal", sig))
		}
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case sig := <-ch:
				handler(sig)
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
		wg.Wait()
	}
}

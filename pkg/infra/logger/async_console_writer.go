package logger

import (
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// AsyncConsoleHook mirrors entries to stderr without holding up the caller.
type AsyncConsoleHook struct {
	logChan   chan string
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewAsyncConsoleHook(bufferSize int) *AsyncConsoleHook {
	hook := &AsyncConsoleHook{
		logChan: make(chan string, bufferSize),
		done:    make(chan struct{}),
	}
	hook.wg.Add(1)
	go hook.processLogs()
	return hook
}

func (h *AsyncConsoleHook) Fire(entry *logrus.Entry) error {
	line, err := entry.String()
	if err != nil {
		return err
	}
	select {
	case h.logChan <- line:
	default:
	}
	return nil
}

func (h *AsyncConsoleHook) processLogs() {
	defer h.wg.Done()
	for {
		select {
		case line := <-h.logChan:
			fmt.Fprint(os.Stderr, line)
		case <-h.done:
			for len(h.logChan) > 0 {
				fmt.Fprint(os.Stderr, <-h.logChan)
			}
			return
		}
	}
}

func (h *AsyncConsoleHook) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
		h.wg.Wait()
	})
}

func (h *AsyncConsoleHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

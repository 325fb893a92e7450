package cli

import (
	"os"
	"syscall"
	"testing"
	"time"
)

func TestSetupSignalHandler(t *testing.T) {
	ctx := SetupSignalHandler()

	select {
	case <-ctx.Done():
		t.Error("context cancelled before any signal")
	default:
	}

	if ctx.Done() == nil {
		t.Error("context has no Done channel")
	}
}

func TestSetupSignalHandlerCancelsOnSIGTERM(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping signal delivery test in short mode")
	}

	ctx := SetupSignalHandler()

	go func() {
		time.Sleep(50 * time.Millisecond)
		p, _ := os.FindProcess(os.Getpid())
		_ = p.Signal(syscall.SIGTERM)
	}()

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not cancelled after SIGTERM")
	}
}

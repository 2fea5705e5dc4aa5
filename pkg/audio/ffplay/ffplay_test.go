package ffplay_test

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/audio/ffplay"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestPlay_CompletesWhenProcessExits(t *testing.T) {
	requireShell(t)
	p := ffplay.New(ffplay.WithBinary("sh"), ffplay.WithArgs("-c", "cat >/dev/null"))
	if err := p.Play(context.Background(), []byte("ID3 fake mp3")); err != nil {
		t.Fatalf("Play: %v", err)
	}
}

func TestPlay_NonZeroExitIsDecodeError(t *testing.T) {
	requireShell(t)
	p := ffplay.New(ffplay.WithBinary("sh"), ffplay.WithArgs("-c", "cat >/dev/null; echo 'Invalid data found' >&2; exit 1"))
	err := p.Play(context.Background(), []byte("garbage"))
	if !errors.Is(err, audio.ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}
}

func TestPlay_EmptyPayloadIsDecodeError(t *testing.T) {
	requireShell(t)
	p := ffplay.New(ffplay.WithBinary("sh"), ffplay.WithArgs("-c", "true"))
	if err := p.Play(context.Background(), nil); !errors.Is(err, audio.ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}
}

func TestPlay_ContextCancelKillsProcess(t *testing.T) {
	requireShell(t)
	p := ffplay.New(ffplay.WithBinary("sh"), ffplay.WithArgs("-c", "sleep 10"))
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := p.Play(ctx, []byte("x"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Play did not return promptly after cancellation")
	}
}

func TestReady_MissingBinary(t *testing.T) {
	p := ffplay.New(ffplay.WithBinary("definitely-not-ffplay-xyz"))
	if err := p.Ready(); !errors.Is(err, audio.ErrUnavailable) {
		t.Fatalf("Ready = %v, want ErrUnavailable", err)
	}
	if err := p.Play(context.Background(), []byte("x")); !errors.Is(err, audio.ErrUnavailable) {
		t.Errorf("Play = %v, want ErrUnavailable", err)
	}
}

func TestClose_RejectsPlay(t *testing.T) {
	requireShell(t)
	p := ffplay.New(ffplay.WithBinary("sh"), ffplay.WithArgs("-c", "cat >/dev/null"))
	_ = p.Close()
	if err := p.Play(context.Background(), []byte("x")); err == nil {
		t.Error("expected error after Close")
	}
}

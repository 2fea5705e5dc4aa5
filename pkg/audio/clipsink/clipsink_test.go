package clipsink

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/intervox/pkg/audio"
)

func TestPlay_WritesNumberedClips(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "clips")
	p, err := New(dir, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, clip := range []string{"first", "second"} {
		if err := p.Play(context.Background(), []byte(clip)); err != nil {
			t.Fatalf("Play: %v", err)
		}
	}

	got, err := os.ReadFile(filepath.Join(dir, "0002.mp3"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "second" {
		t.Errorf("0002.mp3 = %q, want second", got)
	}
}

func TestPlay_EmptyPayload(t *testing.T) {
	p, _ := New(t.TempDir(), "wav")
	if err := p.Play(context.Background(), nil); !errors.Is(err, audio.ErrDecode) {
		t.Errorf("err = %v, want ErrDecode", err)
	}
}

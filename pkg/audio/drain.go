package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use it on transcript channels nobody consumes so their producers can exit.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}

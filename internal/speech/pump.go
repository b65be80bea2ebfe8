package speech

import (
	"errors"
	"fmt"
	"io"
	"time"

	"voicequery/internal/domain"
	"voicequery/internal/errorsx"
	"voicequery/internal/ports"
)

const defaultChunkSize = 4096

// errStreamSend marks pump failures on the provider side of the copy.
var errStreamSend = errors.New("stream audio")

// pumpAudio copies microphone audio into the stream until either side ends.
// Failures are passed to fail; a clean EOF is not a failure.
func pumpAudio(
	audio ports.AudioSession,
	stream ports.StreamingSession,
	chunkSize int,
	fail func(error),
	done chan<- struct{},
) {
	defer close(done)

	if chunkSize < 256 {
		chunkSize = defaultChunkSize
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := audio.Read(buf)
		if n > 0 {
			if sendErr := stream.SendAudio(buf[:n]); sendErr != nil {
				fail(errorsx.Wrap(fmt.Errorf("%w: %w", errStreamSend, sendErr), domain.ErrorCodeAudioStream))
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				fail(errorsx.Wrap(fmt.Errorf("capture audio: %w", err), domain.ErrorCodeAudioStream))
			}
			return
		}
	}
}

// waitForStream waits for the provider to finish, closing it after timeout.
func waitForStream(session ports.StreamingSession, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		_ = session.Close()
		return <-done
	}
}

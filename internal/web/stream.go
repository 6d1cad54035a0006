package web

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"net/http"
	"sync"
	"time"

	"github.com/hybridgroup/mjpeg"
)

// streamRetry is the pause after a failed frame.
const streamRetry = 500 * time.Millisecond

var (
	blankOnce sync.Once
	blankJPEG []byte
)

// blankFrame is sent when no frame could be captured yet, so the client
// sees the stream open and a dead client is noticed on write.
func blankFrame() []byte {
	blankOnce.Do(func() {
		var buf bytes.Buffer
		jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 320, 240)), nil)
		blankJPEG = buf.Bytes()
	})
	return blankJPEG
}

// errStreamClosed ends a live view when the server shuts down.
var errStreamClosed = errors.New("web: stream closed")

// quitWriter fails every write once quit is closed.
type quitWriter struct {
	http.ResponseWriter
	quit <-chan struct{}
}

func (w quitWriter) Write(p []byte) (int, error) {
	select {
	case <-w.quit:
		return 0, errStreamClosed
	default:
	}
	return w.ResponseWriter.Write(p)
}

func (w quitWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// handleStream serves an MJPEG live view. Each client gets its own stream
// fed by a producer that stops once the client is gone or the server shuts
// down.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	stream := mjpeg.NewStream()
	done := make(chan struct{})
	go s.produce(r.Context(), stream, done)

	// Returns only when a write fails: the client disconnected or quit
	// was closed
	stream.ServeHTTP(quitWriter{ResponseWriter: w, quit: s.quit}, r)
	close(done)
}

// produce keeps feeding frames until done is closed. Frames keep coming
// after the request context ends or the server quits so the blocked writer
// gets to its failing write.
func (s *Server) produce(ctx context.Context, stream *mjpeg.Stream, done <-chan struct{}) {
	last := blankFrame()
	for {
		pause := stream.FrameInterval
		if ctx.Err() != nil || s.stopping() {
			stream.UpdateJPEG(last)
		} else if frame, err := s.core.StreamFrame(ctx); err != nil {
			stream.UpdateJPEG(last)
			pause = streamRetry
		} else {
			last = frame
			stream.UpdateJPEG(frame)
		}
		if !sleep(done, pause) {
			return
		}
	}
}

func (s *Server) stopping() bool {
	select {
	case <-s.quit:
		return true
	default:
		return false
	}
}

func sleep(done <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-done:
		return false
	case <-t.C:
		return true
	}
}

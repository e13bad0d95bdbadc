package gateway

import (
	"bufio"
	"os"

	"github.com/yanun0323/errors"

	"main/internal/shm"
)

// FlowRecorder appends market frames to a flat binary file, one fixed-size
// record per frame. busctl's flow command reads the same format back.
// Only the public reader goroutine writes, so no locking.
type FlowRecorder struct {
	file *os.File
	w    *bufio.Writer
	buf  []byte
}

// OpenFlowRecorder creates or truncates the recording file.
func OpenFlowRecorder(path string) (*FlowRecorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "create flow file")
	}
	return &FlowRecorder{
		file: f,
		w:    bufio.NewWriterSize(f, 1<<20),
		buf:  make([]byte, shm.MarketRecordSize),
	}, nil
}

// Record appends one frame.
func (r *FlowRecorder) Record(frame *shm.MarketFrame) {
	if r == nil {
		return
	}
	r.buf = shm.EncodeMarket(r.buf, frame)
	_, _ = r.w.Write(r.buf)
}

// Close flushes and closes the file.
func (r *FlowRecorder) Close() error {
	if r == nil {
		return nil
	}
	if err := r.w.Flush(); err != nil {
		_ = r.file.Close()
		return err
	}
	return r.file.Close()
}

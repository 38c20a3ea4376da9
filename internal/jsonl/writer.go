package jsonl

import (
	"bufio"
	"io"
)

// Writer emits raw JSONL lines through a buffer. Call Flush when done.
type Writer struct {
	w *bufio.Writer
	n int
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriterSize(w, 1<<16)}
}

// Write appends raw followed by a newline.
func (w *Writer) Write(raw []byte) error {
	if _, err := w.w.Write(raw); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	w.n++
	return nil
}

// Lines returns the number of lines written.
func (w *Writer) Lines() int { return w.n }

// Flush writes any buffered data to the underlying writer.
func (w *Writer) Flush() error {
	return w.w.Flush()
}

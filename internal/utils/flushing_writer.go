package utils

import (
	"io"
	"strings"
	"sync"
)

// FlushingWriter ensures data written to buffered writers becomes visible immediately by invoking Flush when available.
type FlushingWriter struct {
	writer io.Writer
	mutex  sync.Mutex
}

// NewFlushingWriter wraps the provided writer and flushes it after each write when the writer supports flushing.
func NewFlushingWriter(writer io.Writer) io.Writer {
	if writer == nil {
		return nil
	}
	if _, alreadyWrapped := writer.(*FlushingWriter); alreadyWrapped {
		return writer
	}
	return &FlushingWriter{writer: writer}
}

// Write delegates to the underlying writer and flushes it when possible.
func (flushingWriter *FlushingWriter) Write(data []byte) (int, error) {
	if flushingWriter == nil || flushingWriter.writer == nil {
		return 0, nil
	}

	flushingWriter.mutex.Lock()
	defer flushingWriter.mutex.Unlock()

	bytesWritten, writeError := flushingWriter.writer.Write(data)
	if writeError != nil {
		return bytesWritten, writeError
	}

	if flushableWriter, implementsFlush := flushingWriter.writer.(interface{ Flush() error }); implementsFlush {
		if flushError := flushableWriter.Flush(); flushError != nil {
			return bytesWritten, flushError
		}
	}

	return bytesWritten, nil
}

// IncrementalPrinter turns cumulative snapshots of a stream into writes of the unseen suffix.
// Shell output callbacks deliver everything captured so far; the printer only forwards what is new.
// When a snapshot does not extend the previous one (the stream was reset), it is written in full.
type IncrementalPrinter struct {
	writer  io.Writer
	printed string
	mutex   sync.Mutex
}

// NewIncrementalPrinter wraps writer in a FlushingWriter and tracks what has been printed.
func NewIncrementalPrinter(writer io.Writer) *IncrementalPrinter {
	return &IncrementalPrinter{writer: NewFlushingWriter(writer)}
}

// Print writes the part of snapshot not yet printed.
func (printer *IncrementalPrinter) Print(snapshot string) error {
	if printer == nil || printer.writer == nil {
		return nil
	}

	printer.mutex.Lock()
	defer printer.mutex.Unlock()

	pending := snapshot
	if strings.HasPrefix(snapshot, printer.printed) {
		pending = snapshot[len(printer.printed):]
	}
	printer.printed = snapshot
	if len(pending) == 0 {
		return nil
	}

	_, writeError := io.WriteString(printer.writer, pending)
	return writeError
}

// Printed reports everything forwarded so far.
func (printer *IncrementalPrinter) Printed() string {
	if printer == nil {
		return ""
	}
	printer.mutex.Lock()
	defer printer.mutex.Unlock()
	return printer.printed
}

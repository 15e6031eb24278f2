package tradelog

// jsonl.go — trade log append-only en JSONL, una línea por resultado
// terminal del pipeline. El archivo se abre en el primer Append para
// no crear archivos vacíos cuando el bot nunca llega a actuar.

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/alejandrodnm/polywhaler/internal/domain"
)

// Writer implementa ports.TradeLog sobre un archivo JSONL.
// Seguro para uso concurrente.
type Writer struct {
	mu   sync.Mutex
	path string
	file *os.File
	buf  *bufio.Writer
}

// NewWriter crea un Writer que hace append sobre path.
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Append escribe el registro como un objeto JSON seguido de '\n' y
// hace flush inmediato: el trade log es el registro de auditoría y
// tiene que ser visible para tailers aunque el proceso muera después.
func (w *Writer) Append(rec domain.TradeRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("tradelog.Append: marshal: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ensureOpenLocked(); err != nil {
		return fmt.Errorf("tradelog.Append: open %q: %w", w.path, err)
	}
	if _, err := w.buf.Write(b); err != nil {
		return fmt.Errorf("tradelog.Append: write: %w", err)
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return fmt.Errorf("tradelog.Append: write: %w", err)
	}
	return w.buf.Flush()
}

func (w *Writer) ensureOpenLocked() error {
	if w.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	w.file = f
	w.buf = bufio.NewWriter(f)
	return nil
}

// Close hace flush y cierra el archivo.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	if w.buf != nil {
		if err := w.buf.Flush(); err != nil {
			firstErr = err
		}
	}
	if w.file != nil {
		if err := w.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	w.buf = nil
	w.file = nil
	return firstErr
}

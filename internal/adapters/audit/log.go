// Package audit es el registro append-only, verificado por hash, de cada
// acción de trading, transición de posición y snapshot de capital.
//
// Layout: un directorio con tres archivos JSONL. Las líneas nunca se
// reescriben. trades.jsonl es la fuente de verdad; el Index en memoria se
// reconstruye desde él en Open y después se mantiene incrementalmente.
package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// Nombres de archivo dentro del directorio de auditoría.
const (
	TradesFile    = "trades.jsonl"
	PositionsFile = "positions.jsonl"
	CapitalFile   = "capital.jsonl"

	maxLineBytes = 1 << 20
)

var fileFor = map[Kind]string{
	KindTrade:    TradesFile,
	KindPosition: PositionsFile,
	KindCapital:  CapitalFile,
}

// ReplayReport resume una pasada sobre un archivo de log.
type ReplayReport struct {
	Lines        int
	Applied      int
	Duplicates   int
	Corrupt      int
	CorruptLines []int
}

// Log es el audit log. Es seguro para uso concurrente.
type Log struct {
	mu          sync.Mutex
	dir         string
	files       map[Kind]*os.File
	seq         map[Kind]uint64
	index       *Index
	lastCapital *domain.CapitalState
}

// Open crea el directorio si hace falta, reproduce el trade log sobre un
// índice nuevo y abre todos los archivos en modo append.
func Open(dir string) (*Log, ReplayReport, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, ReplayReport{}, fmt.Errorf("audit.Open: mkdir %q: %w", dir, err)
	}

	l := &Log{
		dir:   dir,
		files: make(map[Kind]*os.File, len(fileFor)),
		seq:   make(map[Kind]uint64, len(fileFor)),
	}

	report, err := l.rebuild()
	if err != nil {
		return nil, report, fmt.Errorf("audit.Open: %w", err)
	}
	if err := l.scanTail(KindPosition); err != nil {
		return nil, report, fmt.Errorf("audit.Open: %w", err)
	}
	if err := l.scanTail(KindCapital); err != nil {
		return nil, report, fmt.Errorf("audit.Open: %w", err)
	}

	for kind, name := range fileFor {
		path := filepath.Join(dir, name)
		if err := terminateLastLine(path); err != nil {
			l.Close()
			return nil, report, fmt.Errorf("audit.Open: %w", err)
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			l.Close()
			return nil, report, fmt.Errorf("audit.Open: open %q: %w", path, err)
		}
		l.files[kind] = f
	}
	return l, report, nil
}

// Dir devuelve el directorio de auditoría.
func (l *Log) Dir() string { return l.dir }

// Index devuelve el índice vivo. Solo lectura para quien lo llame.
func (l *Log) Index() *Index {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.index
}

// Records devuelve todos los trade records aplicados en orden de log.
func (l *Log) Records() []domain.TradeRecord { return l.Index().All() }

// Positions devuelve las posiciones reconstruidas desde el trade log.
func (l *Log) Positions() []domain.Position { return l.Index().Positions() }

// SignalExecuted indica si un signal id ya produjo una entrada.
func (l *Log) SignalExecuted(signalID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.index.SignalExecuted(signalID)
}

// AppendTrade añade un trade record salvo que la misma acción lógica ya
// esté registrada; en ese caso devuelve false sin error. Los registros sin
// id reciben uno determinista.
func (l *Log) AppendTrade(r domain.TradeRecord) (bool, error) {
	if r.ID == "" {
		r = r.WithID()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.index.Has(r.LogicalKey()) {
		slog.Debug("audit: duplicate action discarded", "key", r.LogicalKey())
		return false, nil
	}
	if err := l.write(KindTrade, r); err != nil {
		return false, fmt.Errorf("audit.AppendTrade: %w", err)
	}
	l.index.Apply(r)
	return true, nil
}

// AppendPosition añade una línea de estado de posición.
func (l *Log) AppendPosition(p domain.Position) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.write(KindPosition, p); err != nil {
		return fmt.Errorf("audit.AppendPosition: %w", err)
	}
	return nil
}

// AppendCapital añade un snapshot de capital.
func (l *Log) AppendCapital(c domain.CapitalState) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.write(KindCapital, c); err != nil {
		return fmt.Errorf("audit.AppendCapital: %w", err)
	}
	l.lastCapital = &c
	return nil
}

// LastCapital devuelve el último snapshot de capital verificado.
func (l *Log) LastCapital() (domain.CapitalState, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lastCapital == nil {
		return domain.CapitalState{}, false
	}
	return *l.lastCapital, true
}

// Rebuild descarta el índice y reproduce el trade log desde cero.
func (l *Log) Rebuild() (ReplayReport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	report, err := l.rebuild()
	if err != nil {
		return report, fmt.Errorf("audit.Rebuild: %w", err)
	}
	return report, nil
}

// Close cierra todos los archivos.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var errs []error
	for kind, f := range l.files {
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", kind, err))
		}
		delete(l.files, kind)
	}
	return errors.Join(errs...)
}

func (l *Log) write(kind Kind, v any) error {
	f, ok := l.files[kind]
	if !ok {
		return fmt.Errorf("%s log is closed", kind)
	}
	next := l.seq[kind] + 1
	line, err := seal(kind, next, v)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write %s: %w", kind, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", kind, err)
	}
	l.seq[kind] = next
	return nil
}

func (l *Log) rebuild() (ReplayReport, error) {
	ix := NewIndex()
	var last uint64
	report, err := replay(filepath.Join(l.dir, TradesFile), func(env Envelope) bool {
		last = max(last, env.Seq)
		if env.Kind != KindTrade {
			return false
		}
		var r domain.TradeRecord
		if err := json.Unmarshal(env.Data, &r); err != nil {
			return false
		}
		return ix.Apply(r)
	})
	if err != nil {
		return report, err
	}
	if report.Corrupt > 0 {
		slog.Warn("audit: corrupt lines skipped during rebuild",
			"err", domain.ErrCorruptRecord,
			"file", TradesFile,
			"count", report.Corrupt,
			"lines", report.CorruptLines,
		)
	}
	l.index = ix
	l.seq[KindTrade] = last
	return report, nil
}

func (l *Log) scanTail(kind Kind) error {
	var last uint64
	_, err := replay(filepath.Join(l.dir, fileFor[kind]), func(env Envelope) bool {
		last = max(last, env.Seq)
		if kind == KindCapital {
			var c domain.CapitalState
			if err := json.Unmarshal(env.Data, &c); err == nil {
				l.lastCapital = &c
			}
		}
		return true
	})
	l.seq[kind] = last
	return err
}

// replay recorre un archivo JSONL. apply devuelve false cuando un registro
// verificado no se aplicó (duplicado o payload indecodificable).
func replay(path string, apply func(Envelope) bool) (ReplayReport, error) {
	var report ReplayReport
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return report, nil
	}
	if err != nil {
		return report, fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		report.Lines++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		env, err := unseal(line)
		if err != nil {
			report.Corrupt++
			report.CorruptLines = append(report.CorruptLines, report.Lines)
			slog.Debug("audit: corrupt line", "file", filepath.Base(path), "line", report.Lines, "err", err)
			continue
		}
		if apply(env) {
			report.Applied++
		} else {
			report.Duplicates++
		}
	}
	if err := sc.Err(); err != nil {
		return report, fmt.Errorf("scan %q: %w", path, err)
	}
	return report, nil
}

// Verify comprueba cada línea de un archivo de auditoría sin tocar estado.
func Verify(path string) (ReplayReport, error) {
	return replay(path, func(Envelope) bool { return true })
}

// terminateLastLine añade un salto de línea si un crash dejó la última
// línea a medias, para que el siguiente registro empiece en su propia línea.
func terminateLastLine(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.Size() == 0 {
		return err
	}
	buf := make([]byte, 1)
	if _, err := f.ReadAt(buf, info.Size()-1); err != nil && err != io.EOF {
		return fmt.Errorf("read tail %q: %w", path, err)
	}
	if buf[0] == '\n' {
		return nil
	}
	if _, err := f.WriteAt([]byte{'\n'}, info.Size()); err != nil {
		return fmt.Errorf("terminate %q: %w", path, err)
	}
	return nil
}

// Package pipelog 管理任务执行日志：每个任务一个受大小限制的日志文件，
// 长时间无写入时自动关闭句柄。
package pipelog

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type FS interface {
	io.Closer

	// Open 打开（或创建）名为 name 的日志文件。
	Open(name string) (File, error)
	// Tail 输出日志的最后 n 行，n < 0 代表全部。
	Tail(w io.Writer, name string, n int) error
	Remove(name string) error
}

type File interface {
	io.WriteCloser
}

func NewFS(dir string, maxsize int64, idle time.Duration) FS {
	return &logFS{
		dir:     dir,
		maxsize: maxsize,
		idle:    idle,
	}
}

type logFS struct {
	dir     string
	maxsize int64
	idle    time.Duration
	mutex   sync.Mutex
	files   map[string]*capFile
}

func (fs *logFS) Open(name string) (File, error) {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()

	if cf := fs.files[name]; cf != nil {
		return cf, nil
	}
	if fs.files == nil {
		fs.files = make(map[string]*capFile, 16)
	}
	cf := &capFile{fs: fs, name: name}
	fs.files[name] = cf

	return cf, nil
}

func (fs *logFS) Tail(w io.Writer, name string, n int) error {
	f, err := os.Open(filepath.Join(fs.dir, filepath.Base(name)))
	if err != nil {
		return err
	}
	defer f.Close()

	if n < 0 {
		_, err = io.Copy(w, f)
		return err
	}

	return tailN(w, f, n)
}

func (fs *logFS) Remove(name string) error {
	fs.mutex.Lock()
	if cf := fs.files[name]; cf != nil {
		delete(fs.files, name)
		_ = cf.Close()
	}
	fs.mutex.Unlock()

	return os.Remove(filepath.Join(fs.dir, filepath.Base(name)))
}

func (fs *logFS) Close() error {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()

	for _, cf := range fs.files {
		_ = cf.Close()
	}
	fs.files = nil

	return nil
}

func (fs *logFS) forget(name string) {
	fs.mutex.Lock()
	delete(fs.files, name)
	fs.mutex.Unlock()
}

// capFile 带大小上限的日志文件，写满后从头覆盖（truncate）。
type capFile struct {
	fs    *logFS
	name  string
	mutex sync.Mutex
	file  *os.File
	size  int64
	timer *time.Timer
}

func (cf *capFile) Write(p []byte) (int, error) {
	cf.mutex.Lock()
	defer cf.mutex.Unlock()

	f, err := cf.open()
	if err != nil {
		return 0, err
	}

	n, err := f.Write(p)
	cf.size += int64(n)
	if err == nil && cf.timer != nil {
		cf.timer.Reset(cf.fs.idle)
	}
	if max := cf.fs.maxsize; max > 0 && cf.size >= max {
		if terr := f.Truncate(0); terr == nil {
			_, _ = f.Seek(0, io.SeekStart)
			cf.size = 0
		}
	}

	return n, err
}

func (cf *capFile) open() (*os.File, error) {
	if cf.file != nil {
		return cf.file, nil
	}

	if err := os.MkdirAll(cf.fs.dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(cf.fs.dir, filepath.Base(cf.name))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	if stat, _ := f.Stat(); stat != nil {
		cf.size = stat.Size()
	}

	cf.file = f
	if idle := cf.fs.idle; idle > 0 {
		cf.timer = time.AfterFunc(idle, cf.autoclose)
	}

	return f, nil
}

func (cf *capFile) autoclose() {
	cf.fs.forget(cf.name)
	_ = cf.Close()
}

func (cf *capFile) Close() error {
	cf.mutex.Lock()
	defer cf.mutex.Unlock()

	if t := cf.timer; t != nil {
		t.Stop()
		cf.timer = nil
	}
	if f := cf.file; f != nil {
		cf.file = nil
		cf.size = 0
		return f.Close()
	}

	return nil
}

func tailN(w io.Writer, f *os.File, n int) error {
	stat, err := f.Stat()
	if err != nil {
		return err
	}

	pos := stat.Size()
	var buffer []byte
	var lines [][]byte

	for pos > 0 && countLines(buffer) <= n {
		readSize := int64(4096)
		if pos < readSize {
			readSize = pos
		}
		pos -= readSize

		chunk := make([]byte, readSize)
		if _, err = f.ReadAt(chunk, pos); err != nil && err != io.EOF {
			return err
		}
		buffer = append(chunk, buffer...)
	}

	lines = splitLines(buffer)
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	for _, line := range lines {
		if _, err = w.Write(line); err != nil {
			return err
		}
	}

	return nil
}

func countLines(b []byte) int { return len(splitLines(b)) }

func splitLines(b []byte) [][]byte {
	var lines [][]byte
	for len(b) > 0 {
		i := 0
		for i < len(b) && b[i] != '\n' {
			i++
		}
		if i < len(b) {
			i++
		}
		lines = append(lines, b[:i])
		b = b[i:]
	}
	return lines
}

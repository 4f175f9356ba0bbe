// Package output writes the generated looker-hub tree, either to a
// local directory or to a GCS bucket.
package output

import (
	"context"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/m-lab/go/uploader"
)

// Writer writes one generated artifact at a path relative to the output
// root. Paths follow the looker-hub layout: the namespace directory,
// then views/, explores/ or datagroups/, then the artifact file.
// Implementations must be safe for concurrent use.
type Writer interface {
	Write(ctx context.Context, path string, content []byte) error
}

// GCSWriter publishes artifacts to the bucket that downstream Looker
// projects import from.
type GCSWriter struct {
	up *uploader.Uploader
}

// NewGCSWriter wraps an uploader bound to the target bucket.
func NewGCSWriter(up *uploader.Uploader) *GCSWriter {
	return &GCSWriter{up: up}
}

// Write creates a new object at path containing content.
func (w *GCSWriter) Write(ctx context.Context, path string, content []byte) error {
	_, err := w.up.Upload(ctx, path, content)
	return err
}

// diskPollInterval is how often LocalWriter re-checks the output volume.
const diskPollInterval = time.Second

// minFreeRatio is the inode and block headroom below which writes pause.
// A generation run that fills the volume would leave a truncated tree
// that a later commit could push as-is.
const minFreeRatio = 0.1

// LocalWriter writes artifacts into a directory, typically a looker-hub
// checkout. Writes block while the output volume is low on space.
type LocalWriter struct {
	dir  string
	c    *sync.Cond
	safe bool
}

// NewLocalWriter creates a writer rooted at dir and starts the disk
// watcher, which runs until ctx is done.
func NewLocalWriter(ctx context.Context, dir string) *LocalWriter {
	lw := &LocalWriter{dir: dir, c: sync.NewCond(&sync.Mutex{}), safe: true}
	go lw.watchDisk(ctx)
	return lw
}

// lowOnSpace reports whether the volume is close to running out of
// inodes or blocks.
func lowOnSpace(stat *syscall.Statfs_t) bool {
	return float64(stat.Ffree)/float64(stat.Files) < minFreeRatio ||
		float64(stat.Bfree)/float64(stat.Blocks) < minFreeRatio
}

// watchDisk polls the filesystem under the output directory and flips
// the write gate accordingly.
func (lw *LocalWriter) watchDisk(ctx context.Context) {
	for ctx.Err() == nil {
		time.Sleep(diskPollInterval)

		stat := syscall.Statfs_t{}
		if err := syscall.Statfs(lw.dir, &stat); err != nil {
			log.Printf("statfs on %s failed: %v, stopping disk watcher", lw.dir, err)
			return
		}

		lw.c.L.Lock()
		lw.safe = !lowOnSpace(&stat)
		if lw.safe {
			lw.c.Broadcast()
		}
		lw.c.L.Unlock()
	}
}

func (lw *LocalWriter) waitUntilSafeToWrite() {
	lw.c.L.Lock()
	for !lw.safe {
		lw.c.Wait()
	}
	lw.c.L.Unlock()
}

// Write creates a new file at path containing content. Intermediate
// directories (namespace, views/explores/datagroups) are created as
// needed.
func (lw *LocalWriter) Write(ctx context.Context, path string, content []byte) error {
	p := filepath.Join(lw.dir, path)
	if err := os.MkdirAll(filepath.Dir(p), os.ModePerm); err != nil {
		return err
	}
	lw.waitUntilSafeToWrite()
	return ioutil.WriteFile(p, content, 0664)
}

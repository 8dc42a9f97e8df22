package job

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/tbillet/routier/internal/store"
)

// CorpusReloadJob watches the chunk file's mtime and hot-reloads the corpus
// store when ingestion has written a new build. This is the serving side of
// the rebuild handoff: indexing replaces the files on disk, this job swaps
// them into the running process.
type CorpusReloadJob struct {
	corpus     *store.Store
	chunksPath string

	mu        sync.Mutex
	lastMtime time.Time
}

func NewCorpusReloadJob(corpus *store.Store, chunksPath string) *CorpusReloadJob {
	job := &CorpusReloadJob{corpus: corpus, chunksPath: chunksPath}
	if stat, err := os.Stat(chunksPath); err == nil {
		job.lastMtime = stat.ModTime()
	}
	return job
}

func (j *CorpusReloadJob) Name() string {
	return "corpus_reload"
}

func (j *CorpusReloadJob) Run(ctx context.Context) error {
	stat, err := os.Stat(j.chunksPath)
	if err != nil {
		return err
	}
	j.mu.Lock()
	changed := stat.ModTime().After(j.lastMtime)
	j.mu.Unlock()
	if !changed {
		return nil
	}
	logutil.GetLogger(ctx).Info("corpus files changed, reloading",
		zap.String("path", j.chunksPath), zap.Time("mtime", stat.ModTime()))
	if err := j.corpus.Reload(ctx); err != nil {
		return err
	}
	j.mu.Lock()
	j.lastMtime = stat.ModTime()
	j.mu.Unlock()
	return nil
}

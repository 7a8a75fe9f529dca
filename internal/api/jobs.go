package api

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"flashgen/internal/models"
)

const (
	JobStatusRunning  = "running"
	JobStatusComplete = "complete"
	JobStatusFailed   = "failed"

	FileStatusQueued = "queued"
	FileStatusActive = "active"
	FileStatusDone   = "done"
	FileStatusError  = "error"
)

// GenerationJob is a snapshot of one multi-file upload. Each file yields its
// own batch.
type GenerationJob struct {
	ID      string    `json:"jobId"`
	Subject string    `json:"subject"`
	Status  string    `json:"status"`
	Started time.Time `json:"started"`
	Updated time.Time `json:"updated"`
	Files   []JobFile `json:"files"`
	Error   string    `json:"error,omitempty"`
}

// JobFile reports the generator step reached for one file.
type JobFile struct {
	Name    string      `json:"name"`
	Status  string      `json:"status"`
	Step    string      `json:"step,omitempty"`
	Percent int         `json:"percent"`
	Result  *FileResult `json:"result,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// JobManager keeps job state in memory for polling clients.
type JobManager struct {
	mu   sync.RWMutex
	jobs map[string]*GenerationJob
}

func NewJobManager() *JobManager {
	return &JobManager{jobs: map[string]*GenerationJob{}}
}

// Create registers a running job with one queued entry per file name.
func (m *JobManager) Create(subject string, names []string) *GenerationJob {
	now := time.Now().UTC()
	job := &GenerationJob{
		ID:      uuid.NewString(),
		Subject: subject,
		Status:  JobStatusRunning,
		Started: now,
		Updated: now,
		Files:   make([]JobFile, len(names)),
	}
	for i, name := range names {
		job.Files[i] = JobFile{Name: name, Status: FileStatusQueued}
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()
	return job.snapshot()
}

func (m *JobManager) Get(id string) (*GenerationJob, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if job, ok := m.jobs[id]; ok {
		return job.snapshot(), true
	}
	return nil, false
}

// Progress matches services.ProgressCallback once bound to a job and file.
func (m *JobManager) Progress(id string, index int, step string, current, total int) {
	m.updateFile(id, index, func(f *JobFile) {
		f.Status = FileStatusActive
		f.Step = step
		f.Percent = percent(current, total)
	})
}

func (m *JobManager) Done(id string, index int, result FileResult) {
	m.updateFile(id, index, func(f *JobFile) {
		f.Status = FileStatusDone
		f.Step = "complete"
		f.Percent = 100
		f.Result = &result
	})
}

func (m *JobManager) Fail(id string, index int, err error) {
	m.updateFile(id, index, func(f *JobFile) {
		f.Status = FileStatusError
		f.Percent = 100
		f.Error = err.Error()
	})
}

// Finish settles the job status. An empty batch is how a failed generation
// looks, so a job that produced no cards at all is failed too.
func (m *JobManager) Finish(id string) {
	m.update(id, func(job *GenerationJob) {
		failed, cards := 0, 0
		for _, f := range job.Files {
			if f.Status == FileStatusError {
				failed++
			}
			if f.Result != nil {
				cards += f.Result.Count
			}
		}
		switch {
		case failed == len(job.Files):
			job.Status = JobStatusFailed
			job.Error = "every file failed"
		case cards == 0:
			job.Status = JobStatusFailed
			job.Error = "no file produced flashcards"
		default:
			job.Status = JobStatusComplete
		}
	})
}

func (m *JobManager) update(id string, fn func(job *GenerationJob)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[id]; ok {
		fn(job)
		job.Updated = time.Now().UTC()
	}
}

func (m *JobManager) updateFile(id string, index int, fn func(f *JobFile)) {
	m.update(id, func(job *GenerationJob) {
		if index >= 0 && index < len(job.Files) {
			fn(&job.Files[index])
		}
	})
}

func (job *GenerationJob) snapshot() *GenerationJob {
	out := *job
	out.Files = make([]JobFile, len(job.Files))
	for i, f := range job.Files {
		if f.Result != nil {
			res := *f.Result
			res.Flashcards = append([]models.Flashcard(nil), f.Result.Flashcards...)
			f.Result = &res
		}
		out.Files[i] = f
	}
	return &out
}

func percent(current, total int) int {
	if total <= 0 {
		return min(max(current, 0), 100)
	}
	return min(max(current, 0)*100/total, 100)
}

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ppiankov/patchpilot/internal/model"
)

// MemoryStore keeps everything in process memory. Returned values are
// copies; callers cannot mutate stored state.
type MemoryStore struct {
	mu       sync.RWMutex
	repos    map[string]model.Repo
	prs      map[string]model.PullRequest
	runs     map[string]model.Run
	findings map[string]model.Finding
	patches  map[string]model.SuggestedPatch
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		repos:    make(map[string]model.Repo),
		prs:      make(map[string]model.PullRequest),
		runs:     make(map[string]model.Run),
		findings: make(map[string]model.Finding),
		patches:  make(map[string]model.SuggestedPatch),
	}
}

func (m *MemoryStore) SaveRepo(_ context.Context, r *model.Repo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.repos[r.ID] = *r
	return nil
}

func (m *MemoryStore) Repo(_ context.Context, id string) (*model.Repo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.repos[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *MemoryStore) RepoByName(_ context.Context, name string) (*model.Repo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.repos {
		if r.Name == name {
			return &r, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) Repos(_ context.Context) ([]model.Repo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Repo, 0, len(m.repos))
	for _, r := range m.repos {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) SavePullRequest(_ context.Context, pr *model.PullRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prs[pr.ID] = *pr
	return nil
}

func (m *MemoryStore) PullRequest(_ context.Context, id string) (*model.PullRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pr, ok := m.prs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &pr, nil
}

func (m *MemoryStore) PullRequestByNumber(_ context.Context, repoID string, number int) (*model.PullRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, pr := range m.prs {
		if pr.RepoID == repoID && pr.Number == number {
			return &pr, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) PullRequestsForRepo(_ context.Context, repoID string) ([]model.PullRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.PullRequest
	for _, pr := range m.prs {
		if pr.RepoID == repoID {
			out = append(out, pr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *MemoryStore) SaveRun(_ context.Context, r *model.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.runs[r.ID]; ok && prev.Status.IsTerminal() {
		return ErrRunTerminal
	}
	m.runs[r.ID] = cloneRun(*r)
	return nil
}

func (m *MemoryStore) ClaimRun(_ context.Context, id string, at time.Time) (*model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if r.Status != model.RunPending {
		return nil, ErrRunNotPending
	}
	r.Status = model.RunInProgress
	r.StartedAt = &at
	m.runs[id] = cloneRun(r)
	out := cloneRun(r)
	return &out, nil
}

func (m *MemoryStore) Run(_ context.Context, id string) (*model.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	r = cloneRun(r)
	return &r, nil
}

func (m *MemoryStore) RunsForPullRequest(_ context.Context, pullRequestID string) ([]model.Run, error) {
	return m.filterRuns(func(r model.Run) bool { return r.PullRequestID == pullRequestID }, 0), nil
}

func (m *MemoryStore) RunsByStatus(_ context.Context, status model.RunStatus) ([]model.Run, error) {
	return m.filterRuns(func(r model.Run) bool { return r.Status == status }, 0), nil
}

func (m *MemoryStore) RecentRuns(_ context.Context, limit int) ([]model.Run, error) {
	return m.filterRuns(func(model.Run) bool { return true }, limit), nil
}

// filterRuns returns matching runs newest first, truncated to limit when
// limit is positive.
func (m *MemoryStore) filterRuns(keep func(model.Run) bool, limit int) []model.Run {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Run
	for _, r := range m.runs {
		if keep(r) {
			out = append(out, cloneRun(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *MemoryStore) CompleteRun(_ context.Context, r *model.Run, findings []model.Finding, patches []model.SuggestedPatch) error {
	if err := checkCompletion(r, findings, patches); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.runs[r.ID]; ok && prev.Status.IsTerminal() {
		return ErrRunTerminal
	}
	m.runs[r.ID] = cloneRun(*r)
	for _, f := range findings {
		f.SuggestedPatches = nil
		m.findings[f.ID] = f
	}
	for _, p := range patches {
		m.patches[p.ID] = p
	}
	return nil
}

func (m *MemoryStore) FindingsForRun(_ context.Context, runID string) ([]model.Finding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Finding
	for _, f := range m.findings {
		if f.RunID == runID {
			out = append(out, f)
		}
	}
	sortFindings(out)
	return out, nil
}

func (m *MemoryStore) Patch(_ context.Context, id string) (*model.SuggestedPatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.patches[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *MemoryStore) PatchesForFinding(_ context.Context, findingID string) ([]model.SuggestedPatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.SuggestedPatch
	for _, p := range m.patches {
		if p.FindingID == findingID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) ApplyPatch(_ context.Context, id, appliedBy string, at time.Time) (*model.SuggestedPatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patches[id]
	if !ok {
		return nil, ErrNotFound
	}
	if p.Applied {
		return nil, ErrPatchAlreadyApplied
	}
	p.Applied = true
	p.AppliedAt = &at
	p.AppliedBy = appliedBy
	m.patches[id] = p
	return &p, nil
}

func (m *MemoryStore) DeleteRun(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[id]; !ok {
		return ErrNotFound
	}
	for fid, f := range m.findings {
		if f.RunID != id {
			continue
		}
		for pid, p := range m.patches {
			if p.FindingID == fid {
				delete(m.patches, pid)
			}
		}
		delete(m.findings, fid)
	}
	delete(m.runs, id)
	return nil
}

func (m *MemoryStore) Close() error { return nil }

func cloneRun(r model.Run) model.Run {
	if r.Metrics != nil {
		mc := *r.Metrics
		r.Metrics = &mc
	}
	return r
}

// sortFindings orders findings by file, then line.
func sortFindings(fs []model.Finding) {
	sort.SliceStable(fs, func(i, j int) bool {
		if fs[i].FilePath != fs[j].FilePath {
			return fs[i].FilePath < fs[j].FilePath
		}
		if fs[i].LineNumber != fs[j].LineNumber {
			return fs[i].LineNumber < fs[j].LineNumber
		}
		return fs[i].ID < fs[j].ID
	})
}

package cron

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// jobFile is the on-disk shape of the job store.
type jobFile struct {
	Jobs []*Job `json:"jobs"`
}

// loadJobs reads the job file. A missing file is an empty store.
func loadJobs(path string) (map[string]*Job, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]*Job{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cron: read job store: %w", err)
	}

	var file jobFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("cron: decode job store: %w", err)
	}
	jobs := make(map[string]*Job, len(file.Jobs))
	for _, job := range file.Jobs {
		if job != nil && job.ID != "" {
			jobs[job.ID] = job
		}
	}
	return jobs, nil
}

// saveJobs writes the job file atomically, ordered by creation time for
// stable diffs.
func saveJobs(path string, jobs map[string]*Job) error {
	list := make([]*Job, 0, len(jobs))
	for _, job := range jobs {
		list = append(list, job)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Created.Equal(list[j].Created) {
			return list[i].ID < list[j].ID
		}
		return list[i].Created.Before(list[j].Created)
	})

	data, err := json.MarshalIndent(jobFile{Jobs: list}, "", "  ")
	if err != nil {
		return fmt.Errorf("cron: encode job store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cron: create store directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("cron: write job store: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("cron: replace job store: %w", err)
	}
	return nil
}

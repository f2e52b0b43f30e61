package docker

import (
	"sync"

	"scholarsource/internal/apperrors"
)

// containers tracks the container running each job's discovery. An entry
// is reserved before the container exists so a job id can never start two
// containers.
type containers struct {
	mu   sync.Mutex
	jobs map[string]string
}

func newContainers() *containers {
	return &containers{jobs: make(map[string]string)}
}

// reserve claims jobID. It fails if the job already has a container.
func (c *containers) reserve(jobID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.jobs[jobID]; exists {
		return apperrors.Conflict("job", "discovery already running for job "+jobID)
	}
	c.jobs[jobID] = ""
	return nil
}

// commit records the container created for a reserved job.
func (c *containers) commit(jobID, containerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs[jobID] = containerID
}

// release forgets jobID and returns its container id, if any.
func (c *containers) release(jobID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.jobs[jobID]
	delete(c.jobs, jobID)
	return id
}

// active returns the ids of all committed containers.
func (c *containers) active() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.jobs))
	for _, id := range c.jobs {
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

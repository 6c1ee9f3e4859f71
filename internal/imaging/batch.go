package imaging

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Job is one image to normalize as part of a batch.
type Job struct {
	Name     string
	Raw      []byte
	MaxWidth int
}

// NormalizeAll runs the jobs concurrently and returns artifacts in job
// order. The first failure cancels the remaining jobs and is returned
// wrapped with the job name. Jobs with no bytes yield a nil artifact.
func (c Codec) NormalizeAll(ctx context.Context, jobs []Job) ([]*Artifact, error) {
	out := make([]*Artifact, len(jobs))

	g, ctx := errgroup.WithContext(ctx)
	for i, job := range jobs {
		if job.Raw == nil {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			a, err := c.Normalize(job.Raw, job.MaxWidth)
			if c.OnDone != nil {
				c.OnDone(job.Name, time.Since(start), err)
			}
			if err != nil {
				return fmt.Errorf("%s: %w", job.Name, err)
			}
			out[i] = a
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

package subtitle

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sync/errgroup"
)

// EnvWorkers overrides the number of concurrent raster workers.
const EnvWorkers = "SUB_PNG_WORKERS"

// Job is one subtitle image to produce.
type Job struct {
	Text    string
	OutPath string
}

// RenderAll rasterizes all jobs concurrently. Each worker owns its own
// Renderer since font faces are not goroutine-safe. The first failure
// cancels the remaining work.
func RenderAll(ctx context.Context, style Style, jobs []Job, workers int) error {
	if len(jobs) == 0 {
		return nil
	}
	if v, err := strconv.Atoi(os.Getenv(EnvWorkers)); err == nil && v > 0 {
		workers = v
	}
	if workers < 1 {
		workers = 1
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	jobCh := make(chan Job)
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			r, err := NewRenderer(style)
			if err != nil {
				return err
			}
			defer r.Close()

			for job := range jobCh {
				img, err := r.Render(job.Text)
				if err != nil {
					return fmt.Errorf("rasterizing subtitle %s: %w", job.OutPath, err)
				}
				if err := WritePNG(img, job.OutPath); err != nil {
					return err
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(jobCh)
		for _, job := range jobs {
			select {
			case jobCh <- job:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	return g.Wait()
}

package audiocore

import "golang.org/x/sync/errgroup"

// BatchJob is one independent ConvertAudio request inside ConvertBatch.
type BatchJob struct {
	InPath  string
	OutPath string
	Opts    ConvertOptions
}

// BatchResult pairs a BatchJob's outcome with its index in the input slice.
type BatchResult struct {
	Result ConversionResult
	Err    error
}

// ConvertBatch runs jobs concurrently, each on its own pipeline with its
// own demuxer/codec/muxer (§5: independent tasks share no mutable state).
// One job failing does not cancel the others; every job's outcome is
// reported in the returned slice at its original index.
func ConvertBatch(jobs []BatchJob) []BatchResult {
	results := make([]BatchResult, len(jobs))

	var g errgroup.Group
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			result, err := ConvertAudio(job.InPath, job.OutPath, job.Opts)
			results[i] = BatchResult{Result: result, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

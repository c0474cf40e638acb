package ingestion

// Stage names one step of a pipeline run.
type Stage string

const (
	StageResolve  Stage = "resolve"
	StageParse    Stage = "parse"
	StageMetadata Stage = "metadata"
	StageSplit    Stage = "split"
	StageEmbed    Stage = "embed"
	StagePersist  Stage = "persist"
	StageComplete Stage = "complete"
)

// StageError reports which stage of a run failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return string(e.Stage) + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

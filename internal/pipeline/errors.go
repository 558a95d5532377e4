package pipeline

import "fmt"

// Stage names the pipeline step in which an error occurred.
type Stage string

const (
	StageEncode      Stage = "encode"
	StageDetect      Stage = "detect"
	StagePostprocess Stage = "postprocess"
	StageCrop        Stage = "crop"
	StageRecognize   Stage = "recognize"
	StageDecode      Stage = "decode"
)

// StageError wraps a fatal failure with the stage that produced it.
// Region is the index of the region being recognized, or -1 for image-level stages.
type StageError struct {
	Stage  Stage
	Region int
	Err    error
}

func (e *StageError) Error() string {
	if e.Region >= 0 {
		return fmt.Sprintf("%s failed for region %d: %v", e.Stage, e.Region, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func imageErr(stage Stage, err error) error {
	return &StageError{Stage: stage, Region: -1, Err: err}
}

func regionErr(stage Stage, region int, err error) error {
	return &StageError{Stage: stage, Region: region, Err: err}
}

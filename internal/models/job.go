package models

import (
	"fmt"
	"time"
)

// AnyVersion marks a discovery job: the pipeline should look for every
// released version of the package rather than import a single one.
const AnyVersion = "*"

// MessageWaiting is the neutral status of a job that is due to run.
const MessageWaiting = "Waiting to execute"

// Step is the pipeline stage a job occupies.
type Step int

const (
	// StepUnknown is what a stored step that fails to parse decodes to.
	StepUnknown Step = iota
	StepFindMissingVersions
	StepCloneRepo
	StepBuildDocs
	StepAddToSearchIndex
	StepNotify
)

var stepNames = map[Step]string{
	StepFindMissingVersions: "FIND_MISSING_VERSIONS",
	StepCloneRepo:           "CLONE_REPO",
	StepBuildDocs:           "BUILD_DOCS",
	StepAddToSearchIndex:    "ADD_TO_SEARCH_INDEX",
	StepNotify:              "NOTIFY",
}

// Steps lists the pipeline steps in execution order.
func Steps() []Step {
	return []Step{StepFindMissingVersions, StepCloneRepo, StepBuildDocs, StepAddToSearchIndex, StepNotify}
}

// ParseStep converts a stored step code into a Step.
func ParseStep(s string) (Step, error) {
	for step, name := range stepNames {
		if name == s {
			return step, nil
		}
	}
	return StepUnknown, fmt.Errorf("unknown pipeline step %q", s)
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Next returns the step that follows s. ok is false for the last step, whose
// successor is the implicit terminal state, and for StepUnknown.
func (s Step) Next() (next Step, ok bool) {
	switch s {
	case StepFindMissingVersions:
		return StepCloneRepo, true
	case StepCloneRepo:
		return StepBuildDocs, true
	case StepBuildDocs:
		return StepAddToSearchIndex, true
	case StepAddToSearchIndex:
		return StepNotify, true
	case StepNotify, StepUnknown:
		return StepUnknown, false
	}
	return StepUnknown, false
}

func (s Step) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Step) UnmarshalText(b []byte) error {
	step, err := ParseStep(string(b))
	if err != nil {
		return err
	}
	*s = step
	return nil
}

// ImportJob is one unit of pipeline work, keyed by package name and version.
type ImportJob struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	Version    string    `json:"version"`
	Step       Step      `json:"step"`
	InProgress bool      `json:"in_progress"`
	RetryCount int       `json:"retry_count"`
	ResumeAt   time.Time `json:"resume_at"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`

	// RawStep keeps the stored code of a step that decoded to StepUnknown.
	RawStep string `json:"-"`
}

// StepCode is the stored code of the job's step.
func (j ImportJob) StepCode() string {
	if j.Step == StepUnknown && j.RawStep != "" {
		return j.RawStep
	}
	return j.Step.String()
}

// IsDiscovery reports whether the job looks for new versions rather than
// importing one.
func (j ImportJob) IsDiscovery() bool {
	return j.Version == AnyVersion
}

package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepTransitions(t *testing.T) {
	steps := Steps()
	for i, s := range steps {
		next, ok := s.Next()
		if i == len(steps)-1 {
			assert.False(t, ok, "%s is the last step", s)
			continue
		}
		require.True(t, ok)
		assert.Equal(t, steps[i+1], next)
	}

	_, ok := StepUnknown.Next()
	assert.False(t, ok)
}

func TestParseStep(t *testing.T) {
	for _, s := range Steps() {
		parsed, err := ParseStep(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}

	step, err := ParseStep("CLEANUP")
	assert.Error(t, err)
	assert.Equal(t, StepUnknown, step)
}

func TestImportJobJSONUsesStepCode(t *testing.T) {
	raw, err := json.Marshal(ImportJob{Name: "acme/widgets", Version: AnyVersion, Step: StepFindMissingVersions})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"step":"FIND_MISSING_VERSIONS"`)

	var job ImportJob
	assert.Error(t, json.Unmarshal([]byte(`{"step":"NOPE"}`), &job))
}

func TestStepCode(t *testing.T) {
	assert.Equal(t, "CLONE_REPO", ImportJob{Step: StepCloneRepo}.StepCode())
	assert.Equal(t, "CLEANUP", ImportJob{RawStep: "CLEANUP"}.StepCode())
	assert.Equal(t, "UNKNOWN", ImportJob{}.StepCode())
}

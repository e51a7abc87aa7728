package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStepForStage(t *testing.T) {
	tests := []struct {
		stage PipelineStage
		want  string
	}{
		{StageRetrieving, "Retrieving precedents"},
		{StageSelecting, "Retrieving precedents"},
		{StageFetchingDetails, "Retrieving precedents"},
		{StageAnalyzing, "Analyzing similarity"},
		{StageAggregating, "Aggregating prediction"},
		{StageValidating, ""},
		{StageDone, ""},
		{StageFailed, ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, stepForStage(tt.stage), "stage %s", tt.stage)
	}
}

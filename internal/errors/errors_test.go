package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	cause := errors.New("open .: permission denied")
	err := New(WorkspaceUnreadable, "cannot enumerate workspace", cause)

	if err.Code != WorkspaceUnreadable {
		t.Errorf("Code = %v, want %v", err.Code, WorkspaceUnreadable)
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable via errors.Is")
	}
}

func TestCodedError_Error(t *testing.T) {
	tests := []struct {
		name      string
		err       *CodedError
		wantParts []string
	}{
		{
			name:      "with cause",
			err:       New(IndexStale, "graph out of date", errors.New("3 files changed")),
			wantParts: []string{"INDEX_STALE", "graph out of date", "3 files changed"},
		},
		{
			name:      "without cause",
			err:       Newf(RebuildInProgress, "rebuild held by pid %d", 42),
			wantParts: []string{"REBUILD_IN_PROGRESS", "rebuild held by pid 42"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			for _, part := range tt.wantParts {
				if !strings.Contains(got, part) {
					t.Errorf("Error() = %q, missing %q", got, part)
				}
			}
		})
	}
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("rebuild: %w", New(RebuildCancelled, "cancelled", nil))
	if got := CodeOf(wrapped); got != RebuildCancelled {
		t.Errorf("CodeOf = %v, want %v", got, RebuildCancelled)
	}
	if got := CodeOf(errors.New("plain")); got != InternalError {
		t.Errorf("CodeOf(plain) = %v, want %v", got, InternalError)
	}
	if !Is(wrapped, RebuildCancelled) {
		t.Error("Is should match wrapped code")
	}
}

func TestSuggestedFixes(t *testing.T) {
	err := New(IndexMissing, "no graph", nil)
	if len(err.SuggestedFixes) == 0 {
		t.Fatal("expected default fixes for INDEX_MISSING")
	}
	if err.SuggestedFixes[0].Command != "codekb index" {
		t.Errorf("unexpected fix: %+v", err.SuggestedFixes[0])
	}
	if GetSuggestedFixes(InternalError) != nil {
		t.Error("expected no fixes for INTERNAL_ERROR")
	}
}

func TestWithDetails(t *testing.T) {
	err := New(ConfigInvalid, "bad workers", nil).WithDetails(map[string]int{"workers": -1})
	if err.Details == nil {
		t.Error("expected details to be set")
	}
}

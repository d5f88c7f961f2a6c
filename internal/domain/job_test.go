package domain

import "testing"

func TestClampProgress(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{"negative", -5, 0},
		{"zero", 0, 0},
		{"mid", 42, 42},
		{"max", 100, 100},
		{"overflow", 250, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClampProgress(tt.in); got != tt.want {
				t.Errorf("ClampProgress(%d) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestJobStatus(t *testing.T) {
	if !JobStatusDone.IsTerminal() || !JobStatusError.IsTerminal() {
		t.Error("done and error must be terminal")
	}
	if JobStatusQueued.IsTerminal() || JobStatusRunning.IsTerminal() {
		t.Error("queued and running must not be terminal")
	}
	if !JobStatusRunning.IsValid() {
		t.Error("running must be valid")
	}
	if JobStatus("banana").IsValid() {
		t.Error("unknown status must be invalid")
	}
}

func TestJobPatchIsEmpty(t *testing.T) {
	if empty := (&JobPatch{}).IsEmpty(); !empty {
		t.Error("zero patch should be empty")
	}

	msg := "hello"
	if (&JobPatch{Message: &msg}).IsEmpty() {
		t.Error("patch with message should not be empty")
	}
	if (&JobPatch{AppendLogs: []string{"x"}}).IsEmpty() {
		t.Error("patch with logs should not be empty")
	}
}

func TestJobClone(t *testing.T) {
	job := &Job{
		ID:   "j1",
		Logs: StringArray{"a", "b"},
	}
	cp := job.Clone()
	cp.Logs = append(cp.Logs, "c")

	if len(job.Logs) != 2 {
		t.Errorf("clone mutated original logs: %v", job.Logs)
	}
}

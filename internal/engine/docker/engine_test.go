package docker

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/docker/docker/pkg/stdcopy"

	"scholarsource/internal/job"
)

func TestContainerEnv(t *testing.T) {
	t.Parallel()
	in := job.Inputs{CourseName: "Intro to Algorithms", DesiredResourceTypes: []string{"video"}}

	env, err := containerEnv("job-1", in, "http://host.docker.internal:8001/internal/tools")
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]string{}
	for _, kv := range env {
		k, v, _ := strings.Cut(kv, "=")
		got[k] = v
	}

	if got[envJobID] != "job-1" {
		t.Errorf("%s = %q", envJobID, got[envJobID])
	}
	if got[envToolsURL] != "http://host.docker.internal:8001/internal/tools" {
		t.Errorf("%s = %q", envToolsURL, got[envToolsURL])
	}
	var decoded job.Inputs
	if err := json.Unmarshal([]byte(got[envInputs]), &decoded); err != nil {
		t.Fatalf("inputs env is not JSON: %v", err)
	}
	if decoded.CourseName != in.CourseName || decoded.DesiredResourceTypes[0] != "video" {
		t.Errorf("decoded inputs = %+v", decoded)
	}

	env, _ = containerEnv("job-1", in, "")
	for _, kv := range env {
		if strings.HasPrefix(kv, envToolsURL+"=") {
			t.Error("tools url should be omitted when unset")
		}
	}
}

func TestDemux(t *testing.T) {
	t.Parallel()
	var stream bytes.Buffer
	outW := stdcopy.NewStdWriter(&stream, stdcopy.Stdout)
	errW := stdcopy.NewStdWriter(&stream, stdcopy.Stderr)
	_, _ = outW.Write([]byte(`{"search_title":`))
	_, _ = errW.Write([]byte("warning: slow\n"))
	_, _ = outW.Write([]byte(`"x"}`))

	stdout, stderr, err := demux(&stream)
	if err != nil {
		t.Fatal(err)
	}
	if string(stdout) != `{"search_title":"x"}` {
		t.Errorf("stdout = %q", stdout)
	}
	if stderr != "warning: slow\n" {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestExitError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		code   int
		stderr string
		want   string
	}{
		{1, "Traceback...\n  File x\nValueError: bad key\n\n", "engine exited with code 1: ValueError: bad key"},
		{137, "", "engine exited with code 137"},
		{2, "  \n \n", "engine exited with code 2"},
	}
	for _, tt := range tests {
		if got := exitError(tt.code, tt.stderr).Error(); got != tt.want {
			t.Errorf("exitError(%d, %q) = %q, want %q", tt.code, tt.stderr, got, tt.want)
		}
	}
}

func TestShortID(t *testing.T) {
	t.Parallel()
	if got := shortID("0123456789abcdef"); got != "0123456789ab" {
		t.Errorf("shortID = %q", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID = %q", got)
	}
}

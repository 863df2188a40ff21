package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"analysisbridge/internal/bridge"
)

func testConfig() bridge.Config {
	cfg := bridge.DefaultConfig()
	cfg.Checker.BinaryPath = "../../internal/checkerpool/testdata/fake_checker.sh"
	cfg.Linter.BinaryPath = "../../internal/linterpool/testdata/fake_linter_json.sh"
	return cfg
}

func TestServeStdioHandlesAnalyzeAndInspect(t *testing.T) {
	b, cleanup, err := buildBridge(testConfig())
	if err != nil {
		t.Fatalf("buildBridge: %v", err)
	}
	defer cleanup()

	cfgPath := ""
	input := strings.Join([]string{
		`{"id":"1","op":"analyze","uri":"a.sg","content":"let x = 1;"}`,
		`{"id":"2","op":"inspector-data"}`,
	}, "\n") + "\n"

	var out bytes.Buffer
	if err := serveStdio(strings.NewReader(input), &out, b, &cfgPath); err != nil {
		t.Fatalf("serveStdio: %v", err)
	}

	scanner := bufio.NewScanner(&out)
	var responses []wireResponse
	for scanner.Scan() {
		var resp wireResponse
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal response: %v", err)
		}
		responses = append(responses, resp)
	}
	if len(responses) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(responses))
	}
	if responses[0].Error != "" {
		t.Fatalf("unexpected error on analyze: %s", responses[0].Error)
	}
	if responses[1].Op != "inspector-data" || responses[1].Error != "" {
		t.Fatalf("unexpected inspector-data response: %+v", responses[1])
	}
}

func TestHandleRequestUnrecognizedOp(t *testing.T) {
	b, cleanup, err := buildBridge(testConfig())
	if err != nil {
		t.Fatalf("buildBridge: %v", err)
	}
	defer cleanup()

	cfgPath := ""
	resp := handleRequest(b, &cfgPath, wireRequest{ID: "x", Op: "bogus"})
	if resp.Error == "" {
		t.Fatalf("expected an error for an unrecognized op")
	}
}

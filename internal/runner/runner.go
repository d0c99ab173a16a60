package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/monlaf-sfk/battle-stack-sub001/internal/store"
)

// Result is the verdict for one run of user code against a case set.
type Result struct {
	Passed  int    `json:"passed"`
	Total   int    `json:"total"`
	Output  string `json:"stdout"`
	Success bool   `json:"success"`
}

// Runner executes user code against test cases. The sandbox implementation
// shells out; tests use Static.
type Runner interface {
	Run(ctx context.Context, code, language string, cases []store.TestCase) (Result, error)
}

type sandboxRequest struct {
	Code     string           `json:"code"`
	Language string           `json:"language"`
	Tests    []store.TestCase `json:"tests"`
}

// Sandbox pipes a JSON request into an external judge process and parses
// the JSON verdict from its combined output.
type Sandbox struct {
	cmd  string
	args []string
}

// NewSandbox splits a command line like "python3 sandbox.py" into the
// executable and its arguments.
func NewSandbox(cmdline string) *Sandbox {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		fields = []string{"python3", "sandbox.py"}
	}
	return &Sandbox{cmd: fields[0], args: fields[1:]}
}

func (s *Sandbox) Run(ctx context.Context, code, language string, cases []store.TestCase) (Result, error) {
	req, err := json.Marshal(sandboxRequest{Code: code, Language: language, Tests: cases})
	if err != nil {
		return Result{}, fmt.Errorf("marshal sandbox request: %w", err)
	}

	cmd := exec.CommandContext(ctx, s.cmd, s.args...)
	cmd.Stdin = bytes.NewReader(req)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return Result{}, fmt.Errorf("sandbox: %w: %s", err, bytes.TrimSpace(out))
	}

	var res Result
	if err := json.Unmarshal(out, &res); err != nil {
		// The judge crashed and printed a traceback instead of JSON.
		return Result{}, fmt.Errorf("sandbox verdict not JSON: %s", bytes.TrimSpace(out))
	}
	res.Total = len(cases)
	return res, nil
}

// Static returns a fixed verdict; used in tests and in PvE simulations.
type Static struct {
	Result Result
	Err    error
}

func (s Static) Run(_ context.Context, _, _ string, cases []store.TestCase) (Result, error) {
	if s.Err != nil {
		return Result{}, s.Err
	}
	res := s.Result
	res.Total = len(cases)
	return res, nil
}

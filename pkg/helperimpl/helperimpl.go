// Package helperimpl invokes external helper executables declared by a
// manifest's helper implementation (spec.md §4.7).
package helperimpl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"time"

	"github.com/google/shlex"

	"github.com/localbridge/localbridged/pkg/manifest"
	"github.com/localbridge/localbridged/pkg/rpcerr"
)

// DefaultTimeout is the per-call ceiling when a manifest does not
// override it (spec.md §4.7: "default ~30 s").
const DefaultTimeout = 30 * time.Second

// envelope is the single line written to the child's stdin.
type envelope struct {
	Method string         `json:"method"`
	Token  string         `json:"token,omitempty"`
	Params map[string]any `json:"params"`
}

// reply is the first line read from the child's stdout.
type reply struct {
	OK     bool   `json:"ok"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Invoke spawns the helper declared by impl, writes the method envelope
// to its stdin, and decodes its first stdout line.
func Invoke(ctx context.Context, impl manifest.Implementation, method, token string, params map[string]any, timeout time.Duration) (any, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	entrypoint, err := ResolveHelper(impl.Entrypoint)
	if err != nil {
		return nil, rpcerr.New(rpcerr.InternalError, "resolving helper entrypoint: %v", err)
	}

	args := make([]string, 0, len(impl.Args))
	for _, a := range impl.Args {
		expanded, err := shlex.Split(a)
		if err != nil {
			return nil, rpcerr.New(rpcerr.InternalError, "parsing helper args: %v", err)
		}
		args = append(args, expanded...)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(callCtx, entrypoint, args...)
	// cmd.Env replaces rather than extends the inherited environment once
	// set, so the manifest's env overlay must start from os.Environ().
	cmd.Env = os.Environ()
	for k, v := range impl.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := json.Marshal(envelope{Method: method, Token: token, Params: params})
	if err != nil {
		return nil, rpcerr.New(rpcerr.InternalError, "marshaling helper envelope: %v", err)
	}
	cmd.Stdin = bytes.NewReader(append(stdin, '\n'))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return nil, rpcerr.New(rpcerr.InternalError, "helper call timed out").WithData(map[string]any{"timeout": true})
	}

	firstLine, _, _ := bytes.Cut(stdout.Bytes(), []byte("\n"))
	var r reply
	parseErr := json.Unmarshal(firstLine, &r)

	if runErr != nil {
		if parseErr == nil && !r.OK {
			return nil, rpcerr.New(rpcerr.InternalError, "%s", r.Error).WithData(map[string]any{"stderr": stderr.String()})
		}
		return nil, rpcerr.New(rpcerr.InternalError, "helper exited with error: %v", runErr).WithData(map[string]any{"stderr": stderr.String()})
	}

	if parseErr != nil {
		return nil, rpcerr.New(rpcerr.InternalError, "helper produced unparseable output: %v", parseErr).WithData(map[string]any{"stderr": stderr.String()})
	}
	if !r.OK {
		return nil, rpcerr.New(rpcerr.InternalError, "%s", r.Error).WithData(map[string]any{"stderr": stderr.String()})
	}
	return r.Result, nil
}

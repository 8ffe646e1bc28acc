package exec

import (
	"context"
	"encoding/json"
	"io"
)

// RunnerDumper is a Runner middleware that dumps requests and responses
// as JSON lines to an output writer.
type RunnerDumper struct {
	next   Runner
	output io.Writer
}

func NewRunnerDumper(next Runner, output io.Writer) *RunnerDumper {
	return &RunnerDumper{next: next, output: output}
}

// Run dumps the request, runs the next runner, and dumps its response.
func (d *RunnerDumper) Run(ctx context.Context, req *Request) (*Response, error) {
	if raw, err := json.Marshal(req); err == nil {
		d.output.Write(append(raw, '\n'))
	}
	resp, err := d.next.Run(ctx, req)
	if resp != nil {
		if raw, err := json.Marshal(resp); err == nil {
			d.output.Write(append(raw, '\n'))
		}
	}
	return resp, err
}

// Supports runs the next runner's Supports.
func (d *RunnerDumper) Supports(operation string) bool {
	return d.next.Supports(operation)
}

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aurumdesk/riskgate/internal/loop"
	"github.com/aurumdesk/riskgate/models"
)

// stdinProposer turns standard input into a plan proposer: the initial plan
// comes from the --plan file, and each revision is read as one JSON line.
// Breaches and hints are echoed to stderr so an operator (or a wrapping
// agent process) can act on them.
type stdinProposer struct {
	initial models.Plan
	scanner *bufio.Scanner
	out     io.Writer
}

func newStdinProposer(initial models.Plan, in io.Reader, out io.Writer) *stdinProposer {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	return &stdinProposer{initial: initial, scanner: scanner, out: out}
}

func (p *stdinProposer) Propose(context.Context) (models.Plan, error) {
	return p.initial, nil
}

func (p *stdinProposer) Revise(ctx context.Context, rejected models.Plan, breaches []models.Breach, hints []loop.Hint) (models.Plan, error) {
	report := struct {
		Rejected models.Plan     `json:"rejected"`
		Breaches []models.Breach `json:"breaches"`
		Hints    []loop.Hint     `json:"hints,omitempty"`
	}{rejected, breaches, hints}
	if data, err := json.Marshal(report); err == nil {
		fmt.Fprintln(p.out, string(data))
	}
	fmt.Fprintln(p.out, "enter revised plan as one JSON line:")

	if err := ctx.Err(); err != nil {
		return models.Plan{}, err
	}
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return models.Plan{}, err
		}
		return models.Plan{}, io.EOF
	}

	var revised models.Plan
	if err := json.Unmarshal(p.scanner.Bytes(), &revised); err != nil {
		return models.Plan{}, fmt.Errorf("parsing revised plan: %w", err)
	}
	return revised, nil
}

package matrix

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minhyannv/anbud-assistant-go/pkg/localfile"
	loggerpkg "github.com/minhyannv/anbud-assistant-go/pkg/logger"
)

// Aggregator streams one structured completion into a string.
type Aggregator interface {
	Aggregate(ctx context.Context, system, user string, observer io.Writer) (string, error)
}

// Request names the input files. An empty SummaryPath uses SampleSummary.
type Request struct {
	SummaryPath  string
	ProfilesPath string
}

type Result struct {
	Raw    string
	Matrix Matrix
}

type Generator struct {
	aggregator   Aggregator
	files        *localfile.Guard
	instructions string
	validator    *Validator
	logger       loggerpkg.Logger
	audit        loggerpkg.Logger
	verbose      bool
}

type Option func(*Generator)

func WithLogger(l loggerpkg.Logger, verbose bool) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
		g.verbose = verbose
	}
}

// WithAudit records the request and the raw result on l.
func WithAudit(l loggerpkg.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.audit = l
		}
	}
}

// NewGenerator prepares a generator whose system prompt is instructions
// followed by the matrix schema.
func NewGenerator(a Aggregator, files *localfile.Guard, instructions string, opts ...Option) (*Generator, error) {
	if strings.TrimSpace(instructions) == "" {
		return nil, fmt.Errorf("competency matrix instructions are empty")
	}
	system, err := SystemInstructions(instructions)
	if err != nil {
		return nil, err
	}
	v, err := NewValidator()
	if err != nil {
		return nil, err
	}
	if files == nil {
		files = localfile.NewGuard(nil, nil)
	}
	g := &Generator{
		aggregator:   a,
		files:        files,
		instructions: system,
		validator:    v,
		logger:       loggerpkg.NopLogger{},
		audit:        loggerpkg.NopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g, nil
}

// Generate reads the inputs, streams the completion to observer and validates
// the result. Unreadable inputs fail with a localfile error before any remote
// call. A result that does not match the schema is returned alongside a
// *MalformedOutputError so the raw text can still be shown.
func (g *Generator) Generate(ctx context.Context, req Request, observer io.Writer) (Result, error) {
	summary := SampleSummary()
	if strings.TrimSpace(req.SummaryPath) != "" {
		data, err := g.files.ReadFile(req.SummaryPath)
		if err != nil {
			return Result{}, err
		}
		summary = strings.TrimSpace(string(data))
	}

	profiles, err := g.files.ReadFile(req.ProfilesPath)
	if err != nil {
		return Result{}, err
	}
	user, err := BuildUserContent(summary, profiles)
	if err != nil {
		return Result{}, &localfile.LocalIOError{Path: req.ProfilesPath, Err: err}
	}

	g.audit.Info("Creating kompetansematrise with consultant data", map[string]any{
		"profiles": req.ProfilesPath,
	})
	loggerpkg.Debug(g.verbose, g.logger, "matrix request", map[string]any{
		"system_bytes": len(g.instructions),
		"user_bytes":   len(user),
	})

	raw, err := g.aggregator.Aggregate(ctx, g.instructions, user, observer)
	if err != nil {
		return Result{}, err
	}
	g.audit.Info("Kompetansematrise data:\n"+raw, nil)

	m, err := g.validator.Parse(raw)
	if err != nil {
		loggerpkg.Warn(g.logger, "matrix output rejected", map[string]any{"error": err.Error()})
		return Result{Raw: raw}, err
	}
	return Result{Raw: raw, Matrix: m}, nil
}

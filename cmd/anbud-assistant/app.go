package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	configpkg "github.com/minhyannv/anbud-assistant-go/pkg/config"
	"github.com/minhyannv/anbud-assistant-go/pkg/conversation"
	"github.com/minhyannv/anbud-assistant-go/pkg/instructions"
	"github.com/minhyannv/anbud-assistant-go/pkg/localfile"
	loggerpkg "github.com/minhyannv/anbud-assistant-go/pkg/logger"
	"github.com/minhyannv/anbud-assistant-go/pkg/matrix"
	"github.com/minhyannv/anbud-assistant-go/pkg/metrics"
	"github.com/minhyannv/anbud-assistant-go/pkg/remote"
	"github.com/minhyannv/anbud-assistant-go/pkg/run"
	"github.com/minhyannv/anbud-assistant-go/pkg/session"
	"github.com/minhyannv/anbud-assistant-go/pkg/stream"
)

// app is the wired object graph behind every command.
type app struct {
	cfg     configpkg.Config
	session *session.Session
	matrix  *matrix.Generator
	metrics *metrics.Metrics
	logger  loggerpkg.Logger

	stopMetrics context.CancelFunc
	closeLog    func() error
}

func newOpenAIClient(cfg configpkg.Config) remote.Client {
	return remote.NewOpenAI(remote.OpenAIConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
	})
}

func newApp(ctx context.Context, cfg configpkg.Config, client remote.Client, diag io.Writer) (*app, error) {
	diagLogger := loggerpkg.NewWriterLogger(diag)

	var audit loggerpkg.Logger = loggerpkg.NopLogger{}
	closeLog := func() error { return nil }
	if cfg.LogFile != "" {
		l, closeFn, err := loggerpkg.NewFileLogger(cfg.LogFile)
		if err != nil {
			return nil, err
		}
		audit, closeLog = l, closeFn
	}
	logger := loggerpkg.Tee(diagLogger, audit)

	loggerpkg.Debug(cfg.Verbose, logger, "app init", map[string]any{
		"model":         cfg.Model,
		"base_url":      cfg.BaseURL,
		"poll_interval": cfg.PollInterval.String(),
		"run_timeout":   cfg.RunTimeout.String(),
		"message_order": cfg.MessageOrder,
		"allowed_dirs":  cfg.AllowedDirs,
		"log_file":      cfg.LogFile,
	})

	m := metrics.New()
	poller := run.NewPoller(client,
		run.WithInterval(cfg.PollInterval),
		run.WithTimeout(cfg.RunTimeout),
		run.WithLogger(logger, cfg.Verbose),
		run.WithMetrics(m),
	)
	driver := conversation.New(client, poller,
		conversation.WithOrder(remote.Order(cfg.MessageOrder)),
		conversation.WithLogger(logger, cfg.Verbose),
		conversation.WithAudit(audit),
		conversation.WithMetrics(m),
	)

	catalog := instructions.Default()
	files := localfile.NewGuard(nil, cfg.AllowedDirs)
	loggerpkg.Debug(cfg.Verbose, logger, "upload roots", map[string]any{"roots": files.Roots()})
	sess := session.New(client, driver,
		session.WithCatalog(catalog),
		session.WithFiles(files),
		session.WithModel(cfg.Model),
		session.WithLogger(logger, cfg.Verbose),
		session.WithAudit(audit),
	)

	entry, ok := catalog.Get(instructions.KeyCompetencyMatrix)
	if !ok {
		_ = closeLog()
		return nil, fmt.Errorf("instruction catalog has no %q entry", instructions.KeyCompetencyMatrix)
	}
	// Matrix inputs are local configuration, not uploads, so they are not
	// confined to the upload roots.
	gen, err := matrix.NewGenerator(
		stream.New(client, stream.WithLogger(logger, cfg.Verbose), stream.WithMetrics(m)),
		localfile.NewGuard(nil, nil),
		entry.Instructions,
		matrix.WithLogger(logger, cfg.Verbose),
		matrix.WithAudit(audit),
	)
	if err != nil {
		_ = closeLog()
		return nil, err
	}

	a := &app{
		cfg:         cfg,
		session:     sess,
		matrix:      gen,
		metrics:     m,
		logger:      logger,
		stopMetrics: func() {},
		closeLog:    closeLog,
	}
	if cfg.MetricsAddr != "" {
		metricsCtx, cancel := context.WithCancel(ctx)
		a.stopMetrics = cancel
		go func() {
			if err := metrics.Serve(metricsCtx, cfg.MetricsAddr, m); err != nil {
				loggerpkg.Error(logger, "metrics server stopped", map[string]any{"error": err.Error()})
			}
		}()
	}
	return a, nil
}

// generateMatrix streams the matrix to out, then prints it indented and as a
// table once it validates.
func (a *app) generateMatrix(ctx context.Context, out io.Writer) error {
	res, err := a.matrix.Generate(ctx, matrix.Request{
		SummaryPath:  a.cfg.SummaryFile,
		ProfilesPath: a.cfg.ConsultantsFile,
	}, out)
	_, _ = fmt.Fprintln(out)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprint(out, matrix.Pretty(res.Raw))
	_, _ = fmt.Fprintln(out)
	matrix.RenderTable(out, res.Matrix)
	return nil
}

func (a *app) Close() error {
	a.stopMetrics()
	return a.closeLog()
}

// describeError maps an operation error to the line shown to the user.
func describeError(err error) string {
	var runFailed *conversation.RunFailedError
	var malformed *matrix.MalformedOutputError
	switch {
	case errors.Is(err, session.ErrNoAssistant):
		return "You need to create an assistant first"
	case errors.Is(err, session.ErrNoThread):
		return "You need to create a thread first"
	case localfile.IsNotExist(err):
		return "File not found"
	case errors.As(err, &runFailed):
		return runFailed.Error()
	case errors.Is(err, run.ErrTimeout):
		return fmt.Sprintf("Run did not finish in time: %v", err)
	case errors.As(err, &malformed):
		return fmt.Sprintf("The competency matrix could not be read: %v", malformed.Err)
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}

package flash

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/embedops/flashgate/pkg/config"
	"github.com/embedops/flashgate/pkg/metrics"
	"github.com/embedops/flashgate/pkg/runner"
)

// Stage names the workflow step a failure occurred in.
type Stage string

const (
	StageValidate Stage = "validate"
	StageProbe    Stage = "probe"
	StageCompile  Stage = "compile"
	StageUpload   Stage = "upload"
)

// FlashRequest is a validated-on-use flash request. Nothing here is persisted.
type FlashRequest struct {
	SketchPath string `json:"sketchPath" binding:"required"`
	Port       string `json:"port" binding:"required"`
	FQBN       string `json:"fqbn"`
}

// FlashError is the tagged failure variant of the workflow. Exactly one
// stage produced it; TimedOut and Output only carry meaning for the compile
// and upload stages.
type FlashError struct {
	Stage    Stage
	TimedOut bool
	Output   []byte
	Err      error
}

func (e *FlashError) Error() string {
	return fmt.Sprintf("flash %s stage: %v", e.Stage, e.Err)
}

func (e *FlashError) Unwrap() error { return e.Err }

// Service runs the compile-then-upload workflow. Each request spawns fresh
// tool processes; the only state carried between the two phases is the
// validated, resolved sketch path.
type Service struct {
	runner runner.Runner
	cfg    config.Flash
	log    *zap.SugaredLogger
	ports  *portLocks
}

// NewService creates a flash service around the given runner.
func NewService(log *zap.SugaredLogger, cfg config.Flash, r runner.Runner) *Service {
	return &Service{
		runner: r,
		cfg:    cfg,
		log:    log,
		ports:  newPortLocks(),
	}
}

// Flash validates req, probes the build tool, compiles the sketch and then
// uploads it to the requested port. Upload is never attempted unless compile
// succeeded in the same call. The request context is propagated into every
// tool invocation, so a dropped client connection terminates the subprocess.
func (s *Service) Flash(ctx context.Context, req FlashRequest) error {
	if err := ValidatePort(req.Port); err != nil {
		return stageError(StageValidate, err)
	}
	if err := ValidateFQBN(req.FQBN); err != nil {
		return stageError(StageValidate, err)
	}
	sketch, err := ResolveSketch(s.cfg.SketchRoot, req.SketchPath, s.cfg.AllowedExtensions)
	if err != nil {
		return stageError(StageValidate, err)
	}

	if err := runner.Probe(ctx, s.runner, s.cfg.CLIPath); err != nil {
		s.log.Errorw("build tool probe failed", "tool", s.cfg.CLIPath, "error", err)
		metrics.FlashRequests.WithLabelValues(string(StageProbe), "failure").Inc()
		return stageError(StageProbe, err)
	}

	opts := runner.Options{
		Timeout:   s.cfg.Timeout.Std(),
		MaxOutput: s.cfg.MaxOutputBytes,
	}

	// Exclusive access to the physical port for the whole compile+upload
	// span, released on all exit paths.
	lock := s.ports.get(req.Port)
	lock.Lock()
	defer lock.Unlock()

	compileArgs := []string{"compile", sketch}
	if req.FQBN != "" {
		compileArgs = append(compileArgs, "--fqbn", req.FQBN)
	}
	s.log.Infow("compiling sketch", "sketch", sketch, "fqbn", req.FQBN)
	if _, err := s.runner.Run(ctx, s.cfg.CLIPath, compileArgs, opts); err != nil {
		metrics.FlashRequests.WithLabelValues(string(StageCompile), "failure").Inc()
		return stageError(StageCompile, err)
	}

	uploadArgs := []string{"upload", sketch, "--port", req.Port}
	if req.FQBN != "" {
		uploadArgs = append(uploadArgs, "--fqbn", req.FQBN)
	}
	s.log.Infow("uploading sketch", "sketch", sketch, "port", req.Port)
	if _, err := s.runner.Run(ctx, s.cfg.CLIPath, uploadArgs, opts); err != nil {
		metrics.FlashRequests.WithLabelValues(string(StageUpload), "failure").Inc()
		return stageError(StageUpload, err)
	}

	metrics.FlashRequests.WithLabelValues(string(StageUpload), "success").Inc()
	s.log.Infow("flash complete", "sketch", sketch, "port", req.Port)
	return nil
}

// stageError tags err with the stage it came from, lifting runner details
// (timeout flag, captured output) into the FlashError.
func stageError(stage Stage, err error) *FlashError {
	fe := &FlashError{Stage: stage, Err: err}
	var exitErr *runner.ExitError
	if errors.As(err, &exitErr) {
		fe.TimedOut = exitErr.TimedOut
		fe.Output = exitErr.Output
	}
	return fe
}

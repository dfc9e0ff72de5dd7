package flash

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embedops/flashgate/pkg/config"
	"github.com/embedops/flashgate/pkg/runner"
	"github.com/embedops/flashgate/pkg/system"
)

// spyRunner records every invocation and fails the subcommands it is told to.
type spyRunner struct {
	mu       sync.Mutex
	calls    [][]string
	failOn   map[string]error
	blockFor time.Duration
}

func newSpyRunner() *spyRunner {
	return &spyRunner{failOn: make(map[string]error)}
}

func (s *spyRunner) Run(ctx context.Context, name string, args []string, opts runner.Options) ([]byte, error) {
	s.mu.Lock()
	call := append([]string{name}, args...)
	s.calls = append(s.calls, call)
	block := s.blockFor
	var err error
	if len(args) > 0 {
		err = s.failOn[args[0]]
	}
	s.mu.Unlock()

	if block > 0 {
		time.Sleep(block)
	}
	if err != nil {
		return nil, err
	}
	return []byte("ok"), nil
}

func (s *spyRunner) countSub(sub string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, call := range s.calls {
		if len(call) > 1 && call[1] == sub {
			n++
		}
	}
	return n
}

func testFlashConfig(t *testing.T) (config.Flash, string) {
	t.Helper()
	root := t.TempDir()
	sketch := filepath.Join(root, "blink.ino")
	require.NoError(t, os.WriteFile(sketch, []byte("void loop() {}"), 0o644))
	cfg := config.Flash{
		CLIPath:           "arduino-cli",
		SketchRoot:        root,
		AllowedExtensions: []string{".ino", ".hex", ".bin"},
		Timeout:           config.Duration(time.Minute),
		MaxOutputBytes:    1024,
	}
	return cfg, sketch
}

func TestFlashHappyPath(t *testing.T) {
	cfg, sketch := testFlashConfig(t)
	spy := newSpyRunner()
	svc := NewService(system.NewTestLogger(), cfg, spy)

	err := svc.Flash(context.Background(), FlashRequest{
		SketchPath: "blink.ino",
		Port:       "/dev/ttyUSB0",
		FQBN:       "arduino:avr:uno",
	})
	require.NoError(t, err)

	require.Len(t, spy.calls, 3)
	assert.Equal(t, []string{"arduino-cli", "version"}, spy.calls[0])
	assert.Equal(t, []string{"arduino-cli", "compile", sketch, "--fqbn", "arduino:avr:uno"}, spy.calls[1])
	assert.Equal(t, []string{"arduino-cli", "upload", sketch, "--port", "/dev/ttyUSB0", "--fqbn", "arduino:avr:uno"}, spy.calls[2])
}

func TestFlashOmitsFQBNWhenEmpty(t *testing.T) {
	cfg, sketch := testFlashConfig(t)
	spy := newSpyRunner()
	svc := NewService(system.NewTestLogger(), cfg, spy)

	require.NoError(t, svc.Flash(context.Background(), FlashRequest{
		SketchPath: "blink.ino",
		Port:       "/dev/ttyUSB0",
	}))
	assert.Equal(t, []string{"arduino-cli", "compile", sketch}, spy.calls[1])
	assert.Equal(t, []string{"arduino-cli", "upload", sketch, "--port", "/dev/ttyUSB0"}, spy.calls[2])
}

func TestFlashValidationFailsFast(t *testing.T) {
	cfg, _ := testFlashConfig(t)
	spy := newSpyRunner()
	svc := NewService(system.NewTestLogger(), cfg, spy)

	cases := []FlashRequest{
		{SketchPath: "../secret.ino", Port: "/dev/ttyUSB0"},
		{SketchPath: "blink.ino", Port: "COM3; rm -rf /"},
		{SketchPath: "blink.ino", Port: "/dev/ttyUSB0", FQBN: "a b"},
		{SketchPath: "missing.ino", Port: "/dev/ttyUSB0"},
	}
	for _, req := range cases {
		err := svc.Flash(context.Background(), req)
		require.Error(t, err)

		var fe *FlashError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, StageValidate, fe.Stage)
	}

	// no process was ever spawned for invalid input
	assert.Empty(t, spy.calls)
}

func TestFlashProbeFailure(t *testing.T) {
	cfg, _ := testFlashConfig(t)
	spy := newSpyRunner()
	spy.failOn["version"] = &runner.StartError{Name: "arduino-cli", Err: errors.New("not found")}
	svc := NewService(system.NewTestLogger(), cfg, spy)

	err := svc.Flash(context.Background(), FlashRequest{SketchPath: "blink.ino", Port: "/dev/ttyUSB0"})
	require.Error(t, err)

	var fe *FlashError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, StageProbe, fe.Stage)
	assert.Zero(t, spy.countSub("compile"))
	assert.Zero(t, spy.countSub("upload"))
}

func TestFlashCompileFailureSkipsUpload(t *testing.T) {
	cfg, _ := testFlashConfig(t)
	spy := newSpyRunner()
	spy.failOn["compile"] = &runner.ExitError{Name: "arduino-cli", ExitCode: 1, Output: []byte("expected ';'")}
	svc := NewService(system.NewTestLogger(), cfg, spy)

	err := svc.Flash(context.Background(), FlashRequest{SketchPath: "blink.ino", Port: "/dev/ttyUSB0"})
	require.Error(t, err)

	var fe *FlashError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, StageCompile, fe.Stage)
	assert.False(t, fe.TimedOut)
	assert.Equal(t, []byte("expected ';'"), fe.Output)

	assert.Equal(t, 1, spy.countSub("compile"))
	assert.Zero(t, spy.countSub("upload"), "upload must never run after a failed compile")
}

func TestFlashCompileTimeout(t *testing.T) {
	cfg, _ := testFlashConfig(t)
	spy := newSpyRunner()
	spy.failOn["compile"] = &runner.ExitError{Name: "arduino-cli", TimedOut: true, Output: []byte("partial")}
	svc := NewService(system.NewTestLogger(), cfg, spy)

	err := svc.Flash(context.Background(), FlashRequest{SketchPath: "blink.ino", Port: "/dev/ttyUSB0"})
	var fe *FlashError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, StageCompile, fe.Stage)
	assert.True(t, fe.TimedOut)
}

func TestFlashUploadFailure(t *testing.T) {
	cfg, _ := testFlashConfig(t)
	spy := newSpyRunner()
	spy.failOn["upload"] = &runner.ExitError{Name: "arduino-cli", ExitCode: 2, Output: []byte("port busy")}
	svc := NewService(system.NewTestLogger(), cfg, spy)

	err := svc.Flash(context.Background(), FlashRequest{SketchPath: "blink.ino", Port: "/dev/ttyUSB0"})
	var fe *FlashError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, StageUpload, fe.Stage)
	assert.Equal(t, 1, spy.countSub("compile"))
	assert.Equal(t, 1, spy.countSub("upload"))
}

func TestFlashSerializesPerPort(t *testing.T) {
	cfg, _ := testFlashConfig(t)
	spy := newSpyRunner()
	spy.blockFor = 50 * time.Millisecond
	svc := NewService(system.NewTestLogger(), cfg, spy)

	req := FlashRequest{SketchPath: "blink.ino", Port: "/dev/ttyUSB0"}

	started := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, svc.Flash(context.Background(), req))
		}()
	}
	wg.Wait()

	// each flash holds the port for compile+upload (2 blocking calls);
	// two concurrent flashes of the same port cannot fully overlap
	assert.GreaterOrEqual(t, time.Since(started), 200*time.Millisecond)
}

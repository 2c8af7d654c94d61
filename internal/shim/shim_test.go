package shim

import (
	"box/internal/config"
	"box/internal/docker"
	"box/internal/executor"
	"box/internal/identity"
	"box/internal/sandbox"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRuntime keeps containers in memory and records every call.
type fakeRuntime struct {
	containers map[string]sandbox.Sandbox
	calls      []string
	execs      []execCall
	exitCode   int
	execFn     func(ctx context.Context) (int, error)
}

type execCall struct {
	name string
	opts docker.ExecOptions
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{containers: make(map[string]sandbox.Sandbox)}
}

func (f *fakeRuntime) State(_ context.Context, name string) (sandbox.Status, string, error) {
	f.calls = append(f.calls, "state")
	if _, ok := f.containers[name]; !ok {
		return sandbox.StatusAbsent, "", nil
	}
	return sandbox.StatusRunning, "running", nil
}

func (f *fakeRuntime) Inspect(_ context.Context, name string) (sandbox.ObservedState, error) {
	f.calls = append(f.calls, "inspect")
	sb, ok := f.containers[name]
	if !ok {
		return sandbox.ObservedState{Status: sandbox.StatusAbsent}, nil
	}
	return sandbox.ObservedState{
		Status:    sandbox.StatusRunning,
		RawStatus: "running",
		Config:    sandbox.KnownConfig(sb.ExpectedMounts(), sb.Image),
	}, nil
}

func (f *fakeRuntime) Create(_ context.Context, sb sandbox.Sandbox) error {
	f.calls = append(f.calls, "create")
	f.containers[sb.Name] = sb
	return nil
}

func (f *fakeRuntime) Start(_ context.Context, _ string) error {
	f.calls = append(f.calls, "start")
	return nil
}

func (f *fakeRuntime) Remove(_ context.Context, name string) error {
	f.calls = append(f.calls, "remove")
	delete(f.containers, name)
	return nil
}

func (f *fakeRuntime) Exec(ctx context.Context, name string, opts docker.ExecOptions) (int, error) {
	f.calls = append(f.calls, "exec")
	f.execs = append(f.execs, execCall{name: name, opts: opts})
	if f.execFn != nil {
		return f.execFn(ctx)
	}
	return f.exitCode, nil
}

type fixture struct {
	root   string
	a, b   string
	config string
}

// newFixture creates directories a and b under a temp root and a config
// file listing them.
func newFixture(t *testing.T, extra string) fixture {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	f := fixture{
		root:   root,
		a:      filepath.Join(root, "a"),
		b:      filepath.Join(root, "b"),
		config: filepath.Join(root, "config.yaml"),
	}
	require.NoError(t, os.MkdirAll(filepath.Join(f.a, "sub"), 0755))
	require.NoError(t, os.MkdirAll(f.b, 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "c"), 0755))

	data := extra + "directories:\n" +
		"  - dir: " + f.a + "\n" +
		"  - dir: " + f.b + "\n" +
		"    image: alpine:3.20\n"
	require.NoError(t, os.WriteFile(f.config, []byte(data), 0644))
	return f
}

func (f fixture) options(rt Runtime, cwd string, args ...string) (Options, *bytes.Buffer) {
	stderr := &bytes.Buffer{}
	return Options{
		ConfigPath: f.config,
		Args:       args,
		Cwd:        cwd,
		Runtime:    rt,
		LockDir:    filepath.Join(f.root, "locks"),
		Stdin:      strings.NewReader(""),
		Stdout:     &bytes.Buffer{},
		Stderr:     stderr,
		Environ:    func() []string { return nil },
		Logger:     log.New(io.Discard),
	}, stderr
}

func TestRun_DirectoryScoping(t *testing.T) {
	f := newFixture(t, "")
	rt := newFakeRuntime()

	opts, stderr := f.options(rt, filepath.Join(f.a, "sub"), "pwd")
	code := Run(context.Background(), opts)
	require.Equal(t, 0, code, stderr.String())

	require.Len(t, rt.execs, 1)
	assert.Equal(t, identity.ForPath(f.a), rt.execs[0].name)
	assert.Equal(t, filepath.Join(f.a, "sub"), rt.execs[0].opts.WorkingDir)
	assert.Equal(t, []string{"pwd"}, rt.execs[0].opts.Cmd)

	sb := rt.containers[identity.ForPath(f.a)]
	assert.Equal(t, []string{f.a}, sb.Mounts)
	assert.Equal(t, sandbox.DefaultImage, sb.Image)
}

func TestRun_EntryImage(t *testing.T) {
	f := newFixture(t, "")
	rt := newFakeRuntime()

	opts, stderr := f.options(rt, f.b, "true")
	require.Equal(t, 0, Run(context.Background(), opts), stderr.String())
	assert.Equal(t, "alpine:3.20", rt.containers[identity.ForPath(f.b)].Image)
}

func TestRun_OutsideConfiguredDirectories(t *testing.T) {
	f := newFixture(t, "")
	rt := newFakeRuntime()

	opts, stderr := f.options(rt, filepath.Join(f.root, "c"), "ls")
	code := Run(context.Background(), opts)

	assert.Equal(t, executor.ExitFailure, code)
	assert.True(t, strings.HasPrefix(stderr.String(), "box: "))
	assert.Contains(t, stderr.String(), "not in any configured directory")
	assert.Contains(t, stderr.String(), f.a)
	assert.Contains(t, stderr.String(), f.b)
	assert.Empty(t, rt.calls, "runtime must not be touched")
}

func TestRun_ExitCodePassthrough(t *testing.T) {
	for _, want := range []int{0, 1, 130} {
		f := newFixture(t, "")
		rt := newFakeRuntime()
		rt.exitCode = want

		opts, _ := f.options(rt, f.a, "sh", "-c", "exit")
		assert.Equal(t, want, Run(context.Background(), opts))
	}
}

func TestRun_Interrupted(t *testing.T) {
	f := newFixture(t, "")
	rt := newFakeRuntime()

	ctx, cancel := context.WithCancelCause(context.Background())
	rt.execFn = func(ctx context.Context) (int, error) {
		cancel(&executor.SignalError{Signal: syscall.SIGINT})
		<-ctx.Done()
		return -1, ctx.Err()
	}

	opts, _ := f.options(rt, f.a, "sleep", "100")
	assert.Equal(t, 130, Run(ctx, opts))
}

func TestRun_SecondInvocationReuses(t *testing.T) {
	f := newFixture(t, "")
	rt := newFakeRuntime()

	opts, _ := f.options(rt, f.a, "true")
	require.Equal(t, 0, Run(context.Background(), opts))
	assert.Equal(t, []string{"inspect", "create", "exec"}, rt.calls)

	rt.calls = nil
	require.Equal(t, 0, Run(context.Background(), opts))
	assert.Equal(t, []string{"inspect", "exec"}, rt.calls)
}

func TestRun_NoCommand(t *testing.T) {
	f := newFixture(t, "")
	rt := newFakeRuntime()

	opts, stderr := f.options(rt, f.a)
	assert.Equal(t, executor.ExitFailure, Run(context.Background(), opts))
	assert.Equal(t, "box: no command specified\n", stderr.String())
	assert.Empty(t, rt.calls)
}

func TestRun_MissingConfig(t *testing.T) {
	rt := newFakeRuntime()
	stderr := &bytes.Buffer{}

	code := Run(context.Background(), Options{
		ConfigPath: filepath.Join(t.TempDir(), "nope.yaml"),
		Args:       []string{"ls"},
		Runtime:    rt,
		Stderr:     stderr,
		Logger:     log.New(io.Discard),
	})
	assert.Equal(t, executor.ExitFailure, code)
	assert.Contains(t, stderr.String(), "config file not found")
	assert.Contains(t, stderr.String(), "- dir:")
	assert.Empty(t, rt.calls)
}

func TestRun_Kill(t *testing.T) {
	t.Run("absent", func(t *testing.T) {
		f := newFixture(t, "")
		rt := newFakeRuntime()

		opts, stderr := f.options(rt, f.a)
		opts.Kill = true
		require.Equal(t, 0, Run(context.Background(), opts), stderr.String())
		assert.Equal(t, []string{"state"}, rt.calls)
	})

	t.Run("existing", func(t *testing.T) {
		f := newFixture(t, "")
		rt := newFakeRuntime()
		rt.containers[identity.ForPath(f.a)] = sandbox.Sandbox{Name: identity.ForPath(f.a)}

		opts, stderr := f.options(rt, filepath.Join(f.a, "sub"), "ignored")
		opts.Kill = true
		require.Equal(t, 0, Run(context.Background(), opts), stderr.String())
		assert.Equal(t, []string{"state", "remove"}, rt.calls)
		assert.Empty(t, rt.execs)
	})
}

func TestRun_ExecModeOverride(t *testing.T) {
	f := newFixture(t, "shell: sh\n")
	rt := newFakeRuntime()

	opts, _ := f.options(rt, f.a, "echo", "a", "|", "wc")
	opts.ExecMode = sandbox.ExecShell
	require.Equal(t, 0, Run(context.Background(), opts))
	require.Len(t, rt.execs, 1)
	assert.Equal(t, []string{"sh", "-c", "echo a | wc"}, rt.execs[0].opts.Cmd)
}

func TestRun_ConfiguredShellMode(t *testing.T) {
	f := newFixture(t, "exec_mode: shell\n")
	rt := newFakeRuntime()

	opts, _ := f.options(rt, f.a, "ls", "-la")
	require.Equal(t, 0, Run(context.Background(), opts))
	require.Len(t, rt.execs, 1)
	assert.Equal(t, []string{"bash", "-c", "ls -la"}, rt.execs[0].opts.Cmd)
}

func TestRun_LockDisabled(t *testing.T) {
	f := newFixture(t, "lock: false\n")
	rt := newFakeRuntime()

	opts, _ := f.options(rt, f.a, "true")
	require.Equal(t, 0, Run(context.Background(), opts))
	assert.NoDirExists(t, opts.LockDir)
}

func TestResolve(t *testing.T) {
	specs := []sandbox.DirectorySpec{
		{Path: "/a", Image: "ubuntu:latest", Profile: sandbox.ProfilePermissive},
		{Path: "/b", Image: "alpine:3.20", Profile: sandbox.ProfileHardened},
	}

	t.Run("per directory", func(t *testing.T) {
		cfg := &config.Config{Directories: specs}

		target, err := Resolve(cfg, "/b/x")
		require.NoError(t, err)
		assert.Equal(t, identity.ForPath("/b"), target.Sandbox.Name)
		assert.Equal(t, "alpine:3.20", target.Sandbox.Image)
		assert.Equal(t, sandbox.ProfileHardened, target.Sandbox.Profile)
		assert.Equal(t, []string{"/b"}, target.Sandbox.Mounts)
		assert.Equal(t, "/b/x", target.Workdir)

		_, err = Resolve(cfg, "/c")
		assert.ErrorIs(t, err, sandbox.ErrNoMatchingDirectory)
	})

	t.Run("shared", func(t *testing.T) {
		cfg := &config.Config{
			Directories: specs,
			Image:       "debian:12",
			Profile:     sandbox.ProfilePermissive,
			Shared:      true,
		}

		target, err := Resolve(cfg, "/a/sub")
		require.NoError(t, err)
		assert.Equal(t, identity.ForPaths("/a", "/b"), target.Sandbox.Name)
		assert.Equal(t, []string{"/a", "/b"}, target.Sandbox.Mounts)
		assert.Equal(t, "debian:12", target.Sandbox.Image)
		assert.Equal(t, "/a/sub", target.Workdir)

		outside, err := Resolve(cfg, "/c")
		require.NoError(t, err)
		assert.Equal(t, target.Sandbox.Name, outside.Sandbox.Name)
		assert.Empty(t, outside.Workdir)
	})
}

func TestNotifyContext(t *testing.T) {
	ctx, stop := NotifyContext(context.Background())
	defer stop()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))

	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context was not cancelled by SIGTERM")
	}

	var sigErr *executor.SignalError
	require.ErrorAs(t, context.Cause(ctx), &sigErr)
	assert.Equal(t, 143, sigErr.ExitCode())
}

func TestNotifyContext_Stop(t *testing.T) {
	ctx, stop := NotifyContext(context.Background())
	stop()
	stop()
	<-ctx.Done()
	assert.ErrorIs(t, context.Cause(ctx), context.Canceled)
}

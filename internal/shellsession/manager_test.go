package shellsession_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/shellkeeper/internal/shellsession"
)

// changeDirectory mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func changeDirectory(testInstance *testing.T, directory string) {
	testInstance.Helper()
	previous, getError := os.Getwd()
	require.NoError(testInstance, getError)
	require.NoError(testInstance, os.Chdir(directory))
	testInstance.Setenv("PWD", directory)
	testInstance.Cleanup(func() {
		_ = os.Chdir(previous)
	})
}

type recordingFactory struct {
	delegate shellsession.SessionFactory
	err      error
	options  []shellsession.Options
}

func (factory *recordingFactory) build(executionContext context.Context, options shellsession.Options) (*shellsession.Session, error) {
	factory.options = append(factory.options, options)
	if factory.err != nil {
		return nil, factory.err
	}
	return factory.delegate(executionContext, options)
}

func TestManagerPropagatesFactoryFailure(testInstance *testing.T) {
	workingDirectory := testInstance.TempDir()
	factory := &recordingFactory{err: errors.New("spawn refused")}
	manager := shellsession.NewManager(shellsession.Options{
		Configuration: shellsession.Configuration{WorkingDirectory: workingDirectory},
	}).WithFactory(factory.build)

	_, execError := manager.Exec(context.Background(), "echo hi", shellsession.ExecOptions{})
	require.EqualError(testInstance, execError, "spawn refused")
	require.Len(testInstance, factory.options, 1)
	require.Equal(testInstance, workingDirectory, factory.options[0].Configuration.WorkingDirectory)
	require.Equal(testInstance, workingDirectory, manager.WorkingDirectory())
	require.NoError(testInstance, manager.Close())
}

func TestManagerFixesWorkingDirectoryOnFirstUse(testInstance *testing.T) {
	changeDirectory(testInstance, testInstance.TempDir())
	factory := &recordingFactory{err: errors.New("not needed")}
	manager := shellsession.NewManager(shellsession.Options{}).WithFactory(factory.build)
	require.Empty(testInstance, manager.WorkingDirectory())

	_, _ = manager.Instance(context.Background())
	fixed := manager.WorkingDirectory()
	require.NotEmpty(testInstance, fixed)

	changeDirectory(testInstance, testInstance.TempDir())
	_, _ = manager.Instance(context.Background())
	require.Equal(testInstance, fixed, manager.WorkingDirectory())
	require.Len(testInstance, factory.options, 2)
	require.Equal(testInstance, fixed, factory.options[1].Configuration.WorkingDirectory)
}

func TestManagerRebuildsSessionAfterShellExit(testInstance *testing.T) {
	configuration := testConfiguration(testInstance, requireBash(testInstance))
	factory := &recordingFactory{delegate: shellsession.NewSession}
	manager := shellsession.NewManager(shellsession.Options{Configuration: configuration, Logger: zap.NewNop()}).WithFactory(factory.build)
	testInstance.Cleanup(func() {
		_ = manager.Close()
	})

	first, firstError := manager.Instance(context.Background())
	require.NoError(testInstance, firstError)
	same, sameError := manager.Instance(context.Background())
	require.NoError(testInstance, sameError)
	require.Same(testInstance, first, same)

	exitResult, exitError := manager.Exec(context.Background(), "exit 3", shellsession.ExecOptions{})
	require.NoError(testInstance, exitError)
	require.Equal(testInstance, 3, exitResult.Code)
	select {
	case <-first.Done():
	case <-time.After(testSessionWaitConstant):
		testInstance.Fatal("session did not stop after exit")
	}

	result, execError := manager.Exec(context.Background(), "echo reborn", shellsession.ExecOptions{})
	require.NoError(testInstance, execError)
	require.Equal(testInstance, "reborn\n", result.Stdout)
	require.Len(testInstance, factory.options, 2)

	second, secondError := manager.Instance(context.Background())
	require.NoError(testInstance, secondError)
	require.NotSame(testInstance, first, second)
}

func TestManagerRestartClosesSession(testInstance *testing.T) {
	configuration := testConfiguration(testInstance, requireBash(testInstance))
	manager := shellsession.NewManager(shellsession.Options{Configuration: configuration, Logger: zap.NewNop()})

	session, instanceError := manager.Instance(context.Background())
	require.NoError(testInstance, instanceError)
	require.NoError(testInstance, manager.Restart())
	require.False(testInstance, session.Alive())

	replacement, replacementError := manager.Instance(context.Background())
	require.NoError(testInstance, replacementError)
	require.NotSame(testInstance, session, replacement)
	require.True(testInstance, replacement.Alive())
	require.NoError(testInstance, manager.Close())
	require.False(testInstance, replacement.Alive())
}

package shellsession

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

const (
	sessionReplacedMessageConstant = "replacing dead shell session"
	sessionRestartMessageConstant  = "restarting shell session"
)

// SessionFactory builds a session; NewSession is the default.
type SessionFactory func(executionContext context.Context, options Options) (*Session, error)

// Manager owns at most one live session bound to a fixed working directory and rebuilds it after death.
type Manager struct {
	mutex            sync.Mutex
	options          Options
	factory          SessionFactory
	workingDirectory string
	session          *Session
}

// NewManager constructs a Manager. An empty configured working directory is fixed on first use.
func NewManager(options Options) *Manager {
	if options.Logger == nil {
		options.Logger = zap.NewNop()
	}
	return &Manager{options: options, factory: NewSession}
}

// WithFactory replaces the session factory.
func (manager *Manager) WithFactory(factory SessionFactory) *Manager {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	if factory != nil {
		manager.factory = factory
	}
	return manager
}

// Instance returns the live session, constructing a new one when none exists or the previous one died.
func (manager *Manager) Instance(executionContext context.Context) (*Session, error) {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	if manager.session != nil {
		if manager.session.Alive() {
			return manager.session, nil
		}
		manager.options.Logger.Info(sessionReplacedMessageConstant, zap.String(logFieldWorkingDirectoryConstant, manager.workingDirectory))
		_ = manager.session.Close()
		manager.session = nil
	}

	if len(manager.workingDirectory) == 0 {
		workingDirectory, resolveError := manager.resolveWorkingDirectory()
		if resolveError != nil {
			return nil, resolveError
		}
		manager.workingDirectory = workingDirectory
	}

	options := manager.options
	options.Configuration.WorkingDirectory = manager.workingDirectory
	session, creationError := manager.factory(executionContext, options)
	if creationError != nil {
		return nil, creationError
	}
	manager.session = session
	return session, nil
}

// Exec runs command on the managed session, rebuilding the session first if it is dead.
func (manager *Manager) Exec(executionContext context.Context, command string, options ExecOptions) (Result, error) {
	session, instanceError := manager.Instance(executionContext)
	if instanceError != nil {
		return Result{}, instanceError
	}
	return session.Exec(executionContext, command, options)
}

// Restart closes the current session; the next Instance call builds a fresh one.
func (manager *Manager) Restart() error {
	manager.mutex.Lock()
	session := manager.session
	manager.session = nil
	manager.mutex.Unlock()

	if session == nil {
		return nil
	}
	manager.options.Logger.Info(sessionRestartMessageConstant, zap.String(logFieldWorkingDirectoryConstant, manager.WorkingDirectory()))
	return session.Close()
}

// Close shuts the current session down.
func (manager *Manager) Close() error {
	return manager.Restart()
}

// WorkingDirectory reports the directory sessions are bound to, empty until the first Instance call.
func (manager *Manager) WorkingDirectory() string {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	return manager.workingDirectory
}

func (manager *Manager) resolveWorkingDirectory() (string, error) {
	configured := manager.options.Configuration.Sanitize().WorkingDirectory
	if len(configured) == 0 {
		currentDirectory, currentDirectoryError := os.Getwd()
		if currentDirectoryError != nil {
			return "", fmt.Errorf(workingDirectoryFailedTemplateConstant, currentDirectoryError)
		}
		return currentDirectory, nil
	}
	absoluteDirectory, absoluteError := filepath.Abs(configured)
	if absoluteError != nil {
		return "", errors.Join(newDirectoryNotFoundError(configured), absoluteError)
	}
	return absoluteDirectory, nil
}

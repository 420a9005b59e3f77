package shellsession

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zapio"

	"github.com/temirov/shellkeeper/internal/execshell"
	pathutils "github.com/temirov/shellkeeper/internal/utils/path"
)

const (
	gitEditorVariableConstant              = "GIT_EDITOR"
	gitEditorValueConstant                 = "true"
	environmentAssignmentTemplateConstant  = "%s=%s"
	bashProfileConstant                    = ".bashrc"
	zshProfileConstant                     = ".zshrc"
	bootstrapScriptTemplateConstant        = "if [ -f \"$HOME/%[1]s\" ]; then . \"$HOME/%[1]s\" < /dev/null; fi\nexport %[2]s=%[3]s\n"
	exportOnlyScriptTemplateConstant       = "export %s=%s\n"
	wrappedScriptTemplateConstant          = "eval %s < /dev/null > %s 2> %s\nSHELLKEEPER_EXIT_CODE=$?\npwd > %s\necho \"$SHELLKEEPER_EXIT_CODE %d\" > %s\n"
	changeDirectoryTemplateConstant        = "cd %s"
	changeDirectoryFailedTemplateConstant  = "unable to change directory to %s: %s"
	syntaxCheckDescriptionConstant         = "check command syntax"
	unquotableCommandExitCodeConstant      = 2
	shutdownGracePeriodConstant            = 2 * time.Second
	processWaitDelayConstant               = 2 * time.Second
	spawnFailedTemplateConstant            = "unable to start shell %s: %w"
	standardInputFailedTemplateConstant    = "unable to open shell input: %w"
	workingDirectoryFailedTemplateConstant = "unable to determine working directory: %w"
	writeOperationConstant                 = "write command"
	bootstrapOperationConstant             = "bootstrap"
	sessionStartedMessageConstant          = "shell session started"
	sessionStoppedMessageConstant          = "shell session stopped"
	commandDispatchedMessageConstant       = "command dispatched"
	commandCompletedMessageConstant        = "command completed"
	syntaxRejectedMessageConstant          = "command rejected by syntax check"
	syntaxCheckSkippedMessageConstant      = "syntax check unavailable, dispatching anyway"
	truncateFailedMessageConstant          = "unable to truncate signal files"
	cleanupFailedMessageConstant           = "unable to remove signal files"
	cwdReadFailedMessageConstant           = "unable to read working directory signal file"
	logFieldCommandConstant                = "command"
	logFieldExitCodeConstant               = "exit_code"
	logFieldInterruptedConstant            = "interrupted"
	logFieldDurationConstant               = "duration"
	logFieldWorkingDirectoryConstant       = "working_directory"
	logFieldProcessIDConstant              = "shell_pid"
	logFieldSignalIdentifierConstant       = "signal_id"
)

// State is a session lifecycle stage.
type State int32

// Session lifecycle stages.
const (
	StateConstructed State = iota
	StateBootstrapped
	StateIdle
	StateBusy
	StateDead
)

var stateNames = map[State]string{
	StateConstructed:  "constructed",
	StateBootstrapped: "bootstrapped",
	StateIdle:         "idle",
	StateBusy:         "busy",
	StateDead:         "dead",
}

// String implements fmt.Stringer.
func (state State) String() string {
	if name, known := stateNames[state]; known {
		return name
	}
	return fmt.Sprintf("state(%d)", int32(state))
}

// SessionEventObserver receives session lifecycle notifications.
type SessionEventObserver interface {
	SessionStarted(binary ShellBinary, workingDirectory string)
	CommandFinished(command string, result Result, elapsed time.Duration)
	SessionStopped(exitCode int)
}

// Options configures NewSession. Only Configuration is required; the rest default to host implementations.
type Options struct {
	Configuration     Configuration
	Logger            *zap.Logger
	Executor          CommandExecutor
	Resolver          ShellResolver
	ProcessController ProcessController
	Observer          SessionEventObserver
}

type commandOutcome struct {
	result Result
	err    error
}

// queuedCommand is one Exec call waiting for, or occupying, the shell.
type queuedCommand struct {
	context  context.Context
	command  string
	timeout  time.Duration
	onOutput OutputCallback
	outcome  chan commandOutcome
}

func (request *queuedCommand) deliver(result Result, deliveryError error) {
	request.outcome <- commandOutcome{result: result, err: deliveryError}
}

// Session owns one persistent shell process and runs commands against it in arrival order.
type Session struct {
	logger        *zap.Logger
	configuration Configuration
	binary        ShellBinary
	executor      CommandExecutor
	controller    ProcessController
	observer      SessionEventObserver
	files         signalFiles
	watcher       *signalWatcher
	detector      completionDetector

	process       *exec.Cmd
	standardInput io.WriteCloser
	shellOutput   *zapio.Writer

	queueMutex sync.Mutex
	queue      []*queuedCommand
	accepting  bool
	notify     chan struct{}

	exited    chan struct{}
	finished  chan struct{}
	closing   chan struct{}
	closeOnce sync.Once
	exitCode  int

	state       atomic.Int32
	interrupted atomic.Bool
	sequence    uint64

	directoryMutex   sync.RWMutex
	workingDirectory string
}

// NewSession resolves a shell, spawns it in the configured working directory and sources the user's profile.
func NewSession(executionContext context.Context, options Options) (*Session, error) {
	if executionContext == nil {
		executionContext = context.Background()
	}
	configuration := options.Configuration.Sanitize()
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	executor := options.Executor
	if executor == nil {
		shellExecutor, executorError := execshell.NewShellExecutor(logger, execshell.NewOSCommandRunner())
		if executorError != nil {
			return nil, executorError
		}
		executor = shellExecutor
	}

	resolver := options.Resolver
	if resolver == nil {
		resolver = NewResolver(logger, executor, ResolverOptions{Override: configuration.Binary, ProbeTimeout: configuration.ProbeTimeout})
	}
	binary, resolveError := resolver.Resolve(executionContext)
	if resolveError != nil {
		return nil, resolveError
	}

	controller := options.ProcessController
	if controller == nil {
		controller = NewSystemProcessController(executor)
	}

	workingDirectory := configuration.WorkingDirectory
	if len(workingDirectory) == 0 {
		currentDirectory, currentDirectoryError := os.Getwd()
		if currentDirectoryError != nil {
			return nil, fmt.Errorf(workingDirectoryFailedTemplateConstant, currentDirectoryError)
		}
		workingDirectory = currentDirectory
	}
	if absoluteDirectory, absoluteError := filepath.Abs(workingDirectory); absoluteError == nil {
		workingDirectory = absoluteDirectory
	}
	if directoryInfo, statError := os.Stat(workingDirectory); statError != nil || !directoryInfo.IsDir() {
		return nil, newDirectoryNotFoundError(workingDirectory)
	}

	files := newSignalFiles(configuration.SignalDirectory)
	if createError := files.create(); createError != nil {
		_ = files.remove()
		return nil, createError
	}

	session := &Session{
		logger:           logger.With(zap.String(logFieldSignalIdentifierConstant, files.identifier)),
		configuration:    configuration,
		binary:           binary,
		executor:         executor,
		controller:       controller,
		observer:         options.Observer,
		files:            files,
		accepting:        true,
		notify:           make(chan struct{}, 1),
		exited:           make(chan struct{}),
		finished:         make(chan struct{}),
		closing:          make(chan struct{}),
		workingDirectory: workingDirectory,
	}
	session.detector = completionDetector{
		logger:         session.logger,
		files:          files,
		pollInterval:   configuration.PollInterval,
		outputThrottle: configuration.OutputThrottle,
	}
	session.state.Store(int32(StateConstructed))

	if startError := session.start(); startError != nil {
		_ = files.remove()
		return nil, startError
	}
	session.watcher = newSignalWatcher(session.logger, files)

	if bootstrapError := session.bootstrap(); bootstrapError != nil {
		session.abandon()
		return nil, bootstrapError
	}
	session.state.Store(int32(StateIdle))

	session.logger.Info(
		sessionStartedMessageConstant,
		zap.String(logFieldShellPathConstant, binary.Path),
		zap.String(logFieldDialectConstant, binary.Dialect.String()),
		zap.String(logFieldWorkingDirectoryConstant, workingDirectory),
		zap.Int(logFieldProcessIDConstant, session.process.Process.Pid),
	)
	if session.observer != nil {
		session.observer.SessionStarted(binary, workingDirectory)
	}

	go session.run()
	return session, nil
}

func (session *Session) start() error {
	process := exec.Command(session.binary.Path, session.binary.Arguments...)
	process.Dir = session.workingDirectory
	process.Env = shellEnvironment(os.Environ())
	process.WaitDelay = processWaitDelayConstant
	detachProcessGroup(process)

	session.shellOutput = &zapio.Writer{Log: session.logger, Level: zapcore.DebugLevel}
	process.Stdout = session.shellOutput
	process.Stderr = session.shellOutput

	standardInput, pipeError := process.StdinPipe()
	if pipeError != nil {
		return fmt.Errorf(standardInputFailedTemplateConstant, pipeError)
	}
	if startError := process.Start(); startError != nil {
		return fmt.Errorf(spawnFailedTemplateConstant, session.binary.Path, startError)
	}

	session.process = process
	session.standardInput = standardInput
	go session.wait()
	return nil
}

func (session *Session) wait() {
	waitError := session.process.Wait()
	session.exitCode = processExitCode(session.process.ProcessState, waitError)
	_ = session.shellOutput.Close()
	close(session.exited)
}

func (session *Session) bootstrap() error {
	profile := bashProfileConstant
	if strings.Contains(strings.ToLower(session.binary.Path), zshNameConstant) {
		profile = zshProfileConstant
	}
	script := fmt.Sprintf(bootstrapScriptTemplateConstant, profile, gitEditorVariableConstant, gitEditorValueConstant)
	if session.configuration.SkipProfile {
		script = fmt.Sprintf(exportOnlyScriptTemplateConstant, gitEditorVariableConstant, gitEditorValueConstant)
	}
	if _, writeError := io.WriteString(session.standardInput, script); writeError != nil {
		return &SessionFatalError{Operation: bootstrapOperationConstant, Cause: writeError}
	}
	session.state.Store(int32(StateBootstrapped))
	return nil
}

// Exec runs command on the shell after every previously submitted command has resolved.
// Timeouts, interruptions and command failures are reported in Result; an error means the session died.
func (session *Session) Exec(executionContext context.Context, command string, options ExecOptions) (Result, error) {
	if executionContext == nil {
		executionContext = context.Background()
	}
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = session.configuration.DefaultTimeout
	}
	request := &queuedCommand{
		context:  executionContext,
		command:  command,
		timeout:  timeout,
		onOutput: options.OnOutput,
		outcome:  make(chan commandOutcome, 1),
	}
	if !session.enqueue(request) {
		return Result{}, ErrSessionDead
	}

	select {
	case outcome := <-request.outcome:
		return outcome.result, outcome.err
	case <-session.finished:
		select {
		case outcome := <-request.outcome:
			return outcome.result, outcome.err
		default:
			return Result{}, ErrSessionDead
		}
	}
}

// SetCwd changes the shell's working directory. The path must exist; relative paths resolve against Pwd.
func (session *Session) SetCwd(executionContext context.Context, path string) error {
	target := pathutils.NewHomeExpander().Resolve(session.Pwd(), path)
	directoryInfo, statError := os.Stat(target)
	if statError != nil || !directoryInfo.IsDir() {
		return newDirectoryNotFoundError(target)
	}

	quotedTarget, quoteError := session.binary.Dialect.Quote(session.binary.Dialect.TranslatePath(target))
	if quoteError != nil {
		return quoteError
	}
	result, execError := session.Exec(executionContext, fmt.Sprintf(changeDirectoryTemplateConstant, quotedTarget), ExecOptions{})
	if execError != nil {
		return execError
	}
	if !result.Succeeded() {
		return fmt.Errorf(changeDirectoryFailedTemplateConstant, target, strings.TrimSpace(result.Stderr))
	}
	return nil
}

// Pwd returns the working directory observed after the last completed command.
func (session *Session) Pwd() string {
	session.directoryMutex.RLock()
	defer session.directoryMutex.RUnlock()
	return session.workingDirectory
}

// KillChildren terminates the shell's direct child processes and marks the in-flight command interrupted.
// The shell itself keeps running.
func (session *Session) KillChildren() {
	session.interrupted.Store(true)
	if !session.Alive() {
		return
	}
	terminateChildren(session.logger, session.controller, session.process.Process.Pid)
}

// Close stops the shell. Queued commands fail with ErrSessionDead.
func (session *Session) Close() error {
	var closeError error
	session.closeOnce.Do(func() {
		close(session.closing)
		if session.State() == StateBusy {
			session.KillChildren()
		}
		if inputError := session.standardInput.Close(); inputError != nil && !errors.Is(inputError, os.ErrClosed) {
			closeError = inputError
		}
		select {
		case <-session.exited:
		case <-time.After(shutdownGracePeriodConstant):
			if killError := session.process.Process.Kill(); killError != nil && !errors.Is(killError, os.ErrProcessDone) {
				closeError = errors.Join(closeError, killError)
			}
			<-session.exited
		}
	})
	<-session.finished
	return closeError
}

// State reports the lifecycle stage.
func (session *Session) State() State {
	return State(session.state.Load())
}

// Alive reports whether the session can still accept commands.
func (session *Session) Alive() bool {
	return session.State() != StateDead
}

// Dialect reports the shell flavor.
func (session *Session) Dialect() Dialect {
	return session.binary.Dialect
}

// Binary reports the resolved shell.
func (session *Session) Binary() ShellBinary {
	return session.binary
}

// Done is closed once the session is dead and its signal files are removed.
func (session *Session) Done() <-chan struct{} {
	return session.finished
}

func (session *Session) enqueue(request *queuedCommand) bool {
	session.queueMutex.Lock()
	defer session.queueMutex.Unlock()
	if !session.accepting {
		return false
	}
	session.queue = append(session.queue, request)
	select {
	case session.notify <- struct{}{}:
	default:
	}
	return true
}

func (session *Session) dequeue() (*queuedCommand, bool) {
	session.queueMutex.Lock()
	defer session.queueMutex.Unlock()
	if len(session.queue) == 0 {
		return nil, false
	}
	next := session.queue[0]
	session.queue[0] = nil
	session.queue = session.queue[1:]
	return next, true
}

// run is the single worker draining the queue; it owns the signal files and the sequence counter.
func (session *Session) run() {
	defer close(session.finished)
	defer session.teardown()

	for {
		select {
		case <-session.closing:
			return
		case <-session.exited:
			return
		default:
		}

		request, available := session.dequeue()
		if !available {
			select {
			case <-session.notify:
			case <-session.closing:
				return
			case <-session.exited:
				return
			}
			continue
		}

		if !session.runCommand(request) {
			return
		}
	}
}

// runCommand runs one request and reports whether the session is still usable.
func (session *Session) runCommand(request *queuedCommand) bool {
	if request.context.Err() != nil {
		request.deliver(Result{Code: TerminatedExitCode, Interrupted: true, Stderr: interruptedMessageConstant}, nil)
		return true
	}

	if rejected, rejection := session.checkSyntax(request); rejected {
		request.deliver(rejection, nil)
		return true
	}

	startedAt := time.Now()
	session.state.Store(int32(StateBusy))
	session.interrupted.Store(false)
	session.sequence++

	script, scriptError := session.wrappedScript(request.command, session.sequence)
	if scriptError != nil {
		session.state.Store(int32(StateIdle))
		request.deliver(Result{Code: unquotableCommandExitCodeConstant, Stderr: scriptError.Error()}, nil)
		return true
	}

	if truncateError := session.files.truncate(); truncateError != nil {
		session.logger.Warn(truncateFailedMessageConstant, zap.Error(truncateError))
	}

	session.logger.Debug(commandDispatchedMessageConstant, zap.String(logFieldCommandConstant, request.command), zap.Uint64(logFieldSequenceConstant, session.sequence))
	if _, writeError := io.WriteString(session.standardInput, script); writeError != nil {
		session.forceStop()
		request.deliver(Result{}, &SessionFatalError{Operation: writeOperationConstant, Cause: writeError})
		return false
	}

	detected := session.detector.await(pendingCommand{
		context:     request.context,
		sequence:    session.sequence,
		timeout:     request.timeout,
		onOutput:    request.onOutput,
		interrupted: session.interrupted.Load,
		terminate:   session.KillChildren,
		shellExited: session.exited,
		wake:        session.watcher.Wake(),
	})

	result := Result{Stdout: detected.stdout, Stderr: detected.stderr, Code: detected.code}
	switch detected.kind {
	case completionFinished:
		session.observeWorkingDirectory()
	case completionTimedOut:
		result.Code, result.Interrupted = TerminatedExitCode, true
		result.Stderr = appendTerminationMessage(result.Stderr, timedOutMessageConstant)
	case completionInterrupted:
		result.Code, result.Interrupted = TerminatedExitCode, true
		result.Stderr = appendTerminationMessage(result.Stderr, interruptedMessageConstant)
	case completionShellExited:
		result.Code = session.exitCode
	}

	elapsed := time.Since(startedAt)
	session.logger.Debug(
		commandCompletedMessageConstant,
		zap.String(logFieldCommandConstant, request.command),
		zap.Int(logFieldExitCodeConstant, result.Code),
		zap.Bool(logFieldInterruptedConstant, result.Interrupted),
		zap.Duration(logFieldDurationConstant, elapsed),
	)
	if session.observer != nil {
		session.observer.CommandFinished(request.command, result, elapsed)
	}

	if detected.kind == completionShellExited {
		session.state.Store(int32(StateDead))
		request.deliver(result, nil)
		return false
	}
	session.state.Store(int32(StateIdle))
	request.deliver(result, nil)
	return true
}

// checkSyntax runs the shell's parse-only mode. A check that cannot run does not block the command.
func (session *Session) checkSyntax(request *queuedCommand) (bool, Result) {
	checkContext, cancel := context.WithTimeout(request.context, session.configuration.SyntaxCheckTimeout)
	defer cancel()

	_, checkError := session.executor.Execute(checkContext, execshell.ShellCommand{
		Name:        session.binary.Path,
		Description: syntaxCheckDescriptionConstant,
		Details: execshell.CommandDetails{
			Arguments:        session.binary.Dialect.SyntaxCheckArguments(request.command),
			WorkingDirectory: session.Pwd(),
			Timeout:          session.configuration.SyntaxCheckTimeout,
		},
	})
	if checkError == nil {
		return false, Result{}
	}

	var failedError execshell.CommandFailedError
	if errors.As(checkError, &failedError) {
		session.logger.Debug(syntaxRejectedMessageConstant, zap.String(logFieldCommandConstant, request.command), zap.Int(logFieldExitCodeConstant, failedError.Result.ExitCode))
		return true, Result{Stdout: failedError.Result.StandardOutput, Stderr: failedError.Result.StandardError, Code: failedError.Result.ExitCode}
	}

	session.logger.Debug(syntaxCheckSkippedMessageConstant, zap.Error(checkError))
	return false, Result{}
}

func (session *Session) wrappedScript(command string, sequence uint64) (string, error) {
	dialect := session.binary.Dialect
	quotedCommand, quoteError := dialect.Quote(command)
	if quoteError != nil {
		return "", quoteError
	}

	quotedPaths := make([]string, 0, 4)
	for _, path := range []string{session.files.stdout, session.files.stderr, session.files.cwd, session.files.status} {
		quotedPath, pathQuoteError := dialect.Quote(dialect.TranslatePath(path))
		if pathQuoteError != nil {
			return "", pathQuoteError
		}
		quotedPaths = append(quotedPaths, quotedPath)
	}

	return fmt.Sprintf(wrappedScriptTemplateConstant, quotedCommand, quotedPaths[0], quotedPaths[1], quotedPaths[2], sequence, quotedPaths[3]), nil
}

func (session *Session) observeWorkingDirectory() {
	content, readError := os.ReadFile(session.files.cwd)
	if readError != nil {
		session.logger.Debug(cwdReadFailedMessageConstant, zap.Error(readError))
		return
	}
	reported := strings.TrimSpace(string(content))
	if len(reported) == 0 {
		return
	}
	session.directoryMutex.Lock()
	session.workingDirectory = session.binary.Dialect.HostPath(reported)
	session.directoryMutex.Unlock()
}

// abandon releases a session whose worker never started.
func (session *Session) abandon() {
	session.forceStop()
	session.state.Store(int32(StateDead))
	_ = session.watcher.Close()
	_ = session.files.remove()
	close(session.finished)
}

func (session *Session) forceStop() {
	if killError := session.process.Process.Kill(); killError != nil && !errors.Is(killError, os.ErrProcessDone) {
		session.logger.Debug(sessionStoppedMessageConstant, zap.Error(killError))
	}
	<-session.exited
}

// teardown marks the session dead once the process is gone, fails queued commands and removes the signal files.
func (session *Session) teardown() {
	session.queueMutex.Lock()
	session.accepting = false
	pending := session.queue
	session.queue = nil
	session.queueMutex.Unlock()

	session.state.Store(int32(StateDead))
	<-session.exited

	for _, request := range pending {
		request.deliver(Result{}, ErrSessionDead)
	}
	if watcherError := session.watcher.Close(); watcherError != nil {
		session.logger.Debug(cleanupFailedMessageConstant, zap.Error(watcherError))
	}
	if removeError := session.files.remove(); removeError != nil {
		session.logger.Warn(cleanupFailedMessageConstant, zap.Error(removeError))
	}

	session.logger.Info(sessionStoppedMessageConstant, zap.Int(logFieldExitCodeConstant, session.exitCode))
	if session.observer != nil {
		session.observer.SessionStopped(session.exitCode)
	}
}

func shellEnvironment(inherited []string) []string {
	environment := make([]string, 0, len(inherited)+1)
	for _, assignment := range inherited {
		if strings.HasPrefix(assignment, gitEditorVariableConstant+"=") {
			continue
		}
		environment = append(environment, assignment)
	}
	return append(environment, fmt.Sprintf(environmentAssignmentTemplateConstant, gitEditorVariableConstant, gitEditorValueConstant))
}

func processExitCode(state *os.ProcessState, waitError error) int {
	if state == nil {
		if waitError != nil {
			return TerminatedExitCode
		}
		return 0
	}
	if code := state.ExitCode(); code >= 0 {
		return code
	}
	return TerminatedExitCode
}

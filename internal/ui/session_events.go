package ui

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/shellkeeper/internal/shellsession"
)

const (
	sessionStartedTemplateConstant     = "Started %s (%s) in %s"
	commandFinishedTemplateConstant    = "%s exited with code %d after %s"
	commandInterruptedTemplateConstant = "%s was interrupted after %s"
	sessionStoppedTemplateConstant     = "Shell exited with code %d"
	maximumCommandLabelLengthConstant  = 60
	commandLabelEllipsisConstant       = "..."
	elapsedRoundingConstant            = time.Millisecond
)

// SessionEventFormatter builds human-readable messages for shell session events.
type SessionEventFormatter struct{}

// BuildStartedMessage describes a freshly bootstrapped session.
func (formatter SessionEventFormatter) BuildStartedMessage(binary shellsession.ShellBinary, workingDirectory string) string {
	return fmt.Sprintf(sessionStartedTemplateConstant, binary.Path, binary.Dialect, workingDirectory)
}

// BuildFinishedMessage describes a resolved command.
func (formatter SessionEventFormatter) BuildFinishedMessage(command string, result shellsession.Result, elapsed time.Duration) string {
	label := formatter.commandLabel(command)
	rounded := elapsed.Round(elapsedRoundingConstant)
	if result.Interrupted {
		return fmt.Sprintf(commandInterruptedTemplateConstant, label, rounded)
	}
	return fmt.Sprintf(commandFinishedTemplateConstant, label, result.Code, rounded)
}

// BuildStoppedMessage describes a session whose shell process ended.
func (formatter SessionEventFormatter) BuildStoppedMessage(exitCode int) string {
	return fmt.Sprintf(sessionStoppedTemplateConstant, exitCode)
}

func (formatter SessionEventFormatter) commandLabel(command string) string {
	label := strings.Join(strings.Fields(command), " ")
	if len(label) > maximumCommandLabelLengthConstant {
		label = label[:maximumCommandLabelLengthConstant] + commandLabelEllipsisConstant
	}
	return label
}

// ConsoleSessionEventLogger renders session lifecycle events through a console logger.
type ConsoleSessionEventLogger struct {
	logger    *zap.Logger
	formatter SessionEventFormatter
}

// NewConsoleSessionEventLogger constructs a session event logger backed by the provided zap logger.
func NewConsoleSessionEventLogger(logger *zap.Logger) *ConsoleSessionEventLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleSessionEventLogger{logger: logger, formatter: SessionEventFormatter{}}
}

// SessionStarted implements shellsession.SessionEventObserver.
func (eventLogger *ConsoleSessionEventLogger) SessionStarted(binary shellsession.ShellBinary, workingDirectory string) {
	if eventLogger == nil {
		return
	}
	eventLogger.logger.Info(eventLogger.formatter.BuildStartedMessage(binary, workingDirectory))
}

// CommandFinished implements shellsession.SessionEventObserver.
func (eventLogger *ConsoleSessionEventLogger) CommandFinished(command string, result shellsession.Result, elapsed time.Duration) {
	if eventLogger == nil {
		return
	}
	message := eventLogger.formatter.BuildFinishedMessage(command, result, elapsed)
	if result.Interrupted {
		eventLogger.logger.Warn(message)
		return
	}
	eventLogger.logger.Debug(message)
}

// SessionStopped implements shellsession.SessionEventObserver.
func (eventLogger *ConsoleSessionEventLogger) SessionStopped(exitCode int) {
	if eventLogger == nil {
		return
	}
	eventLogger.logger.Info(eventLogger.formatter.BuildStoppedMessage(exitCode))
}

package shellsession

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

const (
	outputReadFailedMessageConstant = "signal file unreadable, retrying"
	outputObservedMessageConstant   = "command output observed"
	statusIgnoredMessageConstant    = "ignoring status from a previous command"
	logFieldPathConstant            = "path"
	logFieldSizeConstant            = "size"
	logFieldSequenceConstant        = "sequence"
	logFieldStatusConstant          = "status"
)

type completionKind int

const (
	completionFinished completionKind = iota
	completionTimedOut
	completionInterrupted
	completionShellExited
)

// completion is what the detector concluded about one dispatched command.
type completion struct {
	kind   completionKind
	code   int
	stdout string
	stderr string
}

// pendingCommand carries everything the detector needs about the in-flight command.
type pendingCommand struct {
	context     context.Context
	sequence    uint64
	timeout     time.Duration
	onOutput    OutputCallback
	interrupted func() bool
	terminate   func()
	shellExited <-chan struct{}
	wake        <-chan struct{}
}

type completionDetector struct {
	logger         *zap.Logger
	files          signalFiles
	pollInterval   time.Duration
	outputThrottle time.Duration
}

// fileStamp identifies one observed version of a signal file.
type fileStamp struct {
	size    int64
	modTime time.Time
}

type outputSnapshot struct {
	stdout      string
	stderr      string
	stdoutStamp fileStamp
	stderrStamp fileStamp
}

func (detector completionDetector) await(command pendingCommand) completion {
	ticker := time.NewTicker(detector.pollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(command.timeout)
	defer deadline.Stop()

	cancellation := command.context.Done()
	snapshot := outputSnapshot{stdoutStamp: fileStamp{size: -1}, stderrStamp: fileStamp{size: -1}}
	var reported outputSnapshot
	var lastCallback time.Time
	trigger := completionFinished
	triggered := false

	for {
		detector.refresh(&snapshot)
		if command.onOutput != nil && snapshot.differs(reported) && time.Since(lastCallback) >= detector.outputThrottle {
			command.onOutput(snapshot.stdout, snapshot.stderr)
			reported = snapshot
			lastCallback = time.Now()
		}

		// A terminated command still writes its status once its children die.
		if triggered && trigger != completionShellExited {
			return detector.conclude(command, completion{kind: trigger}, snapshot)
		}
		if command.interrupted() {
			return detector.conclude(command, completion{kind: completionInterrupted}, snapshot)
		}
		if code, finished := detector.readStatus(command.sequence); finished {
			return detector.conclude(command, completion{kind: completionFinished, code: code}, snapshot)
		}
		if triggered {
			return detector.conclude(command, completion{kind: trigger}, snapshot)
		}

		select {
		case <-cancellation:
			command.terminate()
			trigger, triggered = completionInterrupted, true
		case <-deadline.C:
			command.terminate()
			trigger, triggered = completionTimedOut, true
		case <-command.shellExited:
			trigger, triggered = completionShellExited, true
		case <-command.wake:
		case <-ticker.C:
		}
	}
}

func (detector completionDetector) conclude(command pendingCommand, outcome completion, snapshot outputSnapshot) completion {
	if command.onOutput != nil {
		command.onOutput(snapshot.stdout, snapshot.stderr)
	}
	outcome.stdout = snapshot.stdout
	outcome.stderr = snapshot.stderr
	return outcome
}

func (detector completionDetector) refresh(snapshot *outputSnapshot) {
	if content, stamp, changed := detector.readIfChanged(detector.files.stdout, snapshot.stdoutStamp); changed {
		snapshot.stdout, snapshot.stdoutStamp = content, stamp
	}
	if content, stamp, changed := detector.readIfChanged(detector.files.stderr, snapshot.stderrStamp); changed {
		snapshot.stderr, snapshot.stderrStamp = content, stamp
	}
}

// readIfChanged re-reads path only when its size or modification time differs from known.
func (detector completionDetector) readIfChanged(path string, known fileStamp) (string, fileStamp, bool) {
	fileInfo, statError := os.Stat(path)
	if statError != nil {
		detector.logger.Debug(outputReadFailedMessageConstant, zap.String(logFieldPathConstant, path), zap.Error(statError))
		return "", known, false
	}
	current := fileStamp{size: fileInfo.Size(), modTime: fileInfo.ModTime()}
	if current.size == known.size && current.modTime.Equal(known.modTime) {
		return "", known, false
	}
	content, readError := os.ReadFile(path)
	if readError != nil {
		detector.logger.Debug(outputReadFailedMessageConstant, zap.String(logFieldPathConstant, path), zap.Error(readError))
		return "", known, false
	}
	detector.logger.Debug(
		outputObservedMessageConstant,
		zap.String(logFieldPathConstant, path),
		zap.String(logFieldSizeConstant, humanize.Bytes(uint64(len(content)))),
	)
	current.size = int64(len(content))
	return string(content), current, true
}

// readStatus parses "<exit code> <sequence>" and reports completion only for the expected sequence.
func (detector completionDetector) readStatus(sequence uint64) (int, bool) {
	content, readError := os.ReadFile(detector.files.status)
	if readError != nil {
		detector.logger.Debug(outputReadFailedMessageConstant, zap.String(logFieldPathConstant, detector.files.status), zap.Error(readError))
		return 0, false
	}
	fields := strings.Fields(string(content))
	if len(fields) != 2 {
		return 0, false
	}
	code, codeError := strconv.Atoi(fields[0])
	reportedSequence, sequenceError := strconv.ParseUint(fields[1], 10, 64)
	if codeError != nil || sequenceError != nil {
		return 0, false
	}
	if reportedSequence != sequence {
		detector.logger.Debug(
			statusIgnoredMessageConstant,
			zap.Uint64(logFieldSequenceConstant, reportedSequence),
			zap.Int(logFieldStatusConstant, code),
		)
		return 0, false
	}
	return code, true
}

func (snapshot outputSnapshot) differs(other outputSnapshot) bool {
	return snapshot.stdout != other.stdout || snapshot.stderr != other.stderr
}

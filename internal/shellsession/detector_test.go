package shellsession

import (
	"context"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type callbackRecorder struct {
	mutex     sync.Mutex
	snapshots []string
	moments   []time.Time
}

func (recorder *callbackRecorder) record(stdout string, stderr string) {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	recorder.snapshots = append(recorder.snapshots, stdout+"|"+stderr)
	recorder.moments = append(recorder.moments, time.Now())
}

func (recorder *callbackRecorder) times() []time.Time {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	return append([]time.Time{}, recorder.moments...)
}

func (recorder *callbackRecorder) all() []string {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	return append([]string{}, recorder.snapshots...)
}

func newTestDetector(testInstance *testing.T) completionDetector {
	testInstance.Helper()
	files := newSignalFiles(testInstance.TempDir())
	require.NoError(testInstance, files.create())
	return completionDetector{
		logger:         zap.NewNop(),
		files:          files,
		pollInterval:   5 * time.Millisecond,
		outputThrottle: 20 * time.Millisecond,
	}
}

func newTestPendingCommand(sequence uint64, timeout time.Duration) (pendingCommand, *atomic.Int32) {
	terminations := &atomic.Int32{}
	return pendingCommand{
		context:     context.Background(),
		sequence:    sequence,
		timeout:     timeout,
		interrupted: func() bool { return false },
		terminate:   func() { terminations.Add(1) },
		shellExited: make(chan struct{}),
	}, terminations
}

func writeSignal(testInstance *testing.T, path string, content string) {
	testInstance.Helper()
	require.NoError(testInstance, os.WriteFile(path, []byte(content), signalFilePermissionsConstant))
}

func TestDetectorCompletesOnMatchingStatus(testInstance *testing.T) {
	detector := newTestDetector(testInstance)
	writeSignal(testInstance, detector.files.stdout, "hi\n")
	writeSignal(testInstance, detector.files.stderr, "warning\n")
	writeSignal(testInstance, detector.files.status, "3 7\n")

	command, terminations := newTestPendingCommand(7, time.Second)
	outcome := detector.await(command)

	require.Equal(testInstance, completionFinished, outcome.kind)
	require.Equal(testInstance, 3, outcome.code)
	require.Equal(testInstance, "hi\n", outcome.stdout)
	require.Equal(testInstance, "warning\n", outcome.stderr)
	require.Zero(testInstance, terminations.Load())
}

func TestDetectorIgnoresStaleStatusUntilTimeout(testInstance *testing.T) {
	detector := newTestDetector(testInstance)
	writeSignal(testInstance, detector.files.status, "143 6\n")

	command, terminations := newTestPendingCommand(7, 60*time.Millisecond)
	startedAt := time.Now()
	outcome := detector.await(command)

	require.Equal(testInstance, completionTimedOut, outcome.kind)
	require.GreaterOrEqual(testInstance, time.Since(startedAt), 60*time.Millisecond)
	require.Equal(testInstance, int32(1), terminations.Load())
}

func TestDetectorPrefersStatusWrittenBeforeDeadline(testInstance *testing.T) {
	detector := newTestDetector(testInstance)
	command, _ := newTestPendingCommand(2, time.Second)

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = os.WriteFile(detector.files.status, []byte("0 2\n"), signalFilePermissionsConstant)
	}()

	outcome := detector.await(command)
	require.Equal(testInstance, completionFinished, outcome.kind)
	require.Zero(testInstance, outcome.code)
}

func TestDetectorResolvesCancellationAsInterruption(testInstance *testing.T) {
	detector := newTestDetector(testInstance)
	cancellableContext, cancel := context.WithCancel(context.Background())
	command, terminations := newTestPendingCommand(1, time.Minute)
	command.context = cancellableContext

	time.AfterFunc(30*time.Millisecond, cancel)
	outcome := detector.await(command)

	require.Equal(testInstance, completionInterrupted, outcome.kind)
	require.Equal(testInstance, int32(1), terminations.Load())
}

func TestDetectorObservesExternalInterruptFlag(testInstance *testing.T) {
	detector := newTestDetector(testInstance)
	command, terminations := newTestPendingCommand(1, time.Minute)
	flag := &atomic.Bool{}
	command.interrupted = flag.Load

	time.AfterFunc(20*time.Millisecond, func() { flag.Store(true) })
	outcome := detector.await(command)

	require.Equal(testInstance, completionInterrupted, outcome.kind)
	require.Zero(testInstance, terminations.Load())
}

func TestDetectorReportsShellExit(testInstance *testing.T) {
	detector := newTestDetector(testInstance)
	command, _ := newTestPendingCommand(1, time.Minute)
	exited := make(chan struct{})
	command.shellExited = exited
	writeSignal(testInstance, detector.files.stdout, "partial")

	close(exited)
	outcome := detector.await(command)

	require.Equal(testInstance, completionShellExited, outcome.kind)
	require.Equal(testInstance, "partial", outcome.stdout)
}

func TestDetectorStreamsCumulativeOutputAndFlushesFinalSnapshot(testInstance *testing.T) {
	detector := newTestDetector(testInstance)
	recorder := &callbackRecorder{}
	command, _ := newTestPendingCommand(4, 5*time.Second)
	command.onOutput = recorder.record

	go func() {
		_ = os.WriteFile(detector.files.stdout, []byte("a"), signalFilePermissionsConstant)
		time.Sleep(60 * time.Millisecond)
		_ = os.WriteFile(detector.files.stdout, []byte("ab"), signalFilePermissionsConstant)
		time.Sleep(60 * time.Millisecond)
		_ = os.WriteFile(detector.files.stderr, []byte("e"), signalFilePermissionsConstant)
		_ = os.WriteFile(detector.files.status, []byte("0 4\n"), signalFilePermissionsConstant)
	}()

	outcome := detector.await(command)
	require.Equal(testInstance, completionFinished, outcome.kind)

	snapshots := recorder.all()
	require.GreaterOrEqual(testInstance, len(snapshots), 2)
	require.Equal(testInstance, "ab|e", snapshots[len(snapshots)-1])
	require.Contains(testInstance, snapshots, "ab|")
}

func TestDetectorRepeatsFinalSnapshotWhenOutputIsReadyImmediately(testInstance *testing.T) {
	detector := newTestDetector(testInstance)
	recorder := &callbackRecorder{}
	command, _ := newTestPendingCommand(1, time.Second)
	command.onOutput = recorder.record
	writeSignal(testInstance, detector.files.stdout, "done\n")
	writeSignal(testInstance, detector.files.status, "0 1\n")

	detector.await(command)
	require.Equal(testInstance, []string{"done\n|", "done\n|"}, recorder.all())
}

func TestDetectorKeepsTerminationKindWhenStatusFollowsTermination(testInstance *testing.T) {
	testCases := []struct {
		name         string
		prepare      func(command *pendingCommand) func()
		expectedKind completionKind
	}{
		{
			name: "timeout",
			prepare: func(command *pendingCommand) func() {
				command.timeout = 30 * time.Millisecond
				return func() {}
			},
			expectedKind: completionTimedOut,
		},
		{
			name: "cancellation",
			prepare: func(command *pendingCommand) func() {
				cancellableContext, cancel := context.WithCancel(context.Background())
				command.context = cancellableContext
				time.AfterFunc(30*time.Millisecond, cancel)
				return cancel
			},
			expectedKind: completionInterrupted,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			detector := newTestDetector(testInstance)
			command, _ := newTestPendingCommand(9, time.Minute)
			release := testCase.prepare(&command)
			defer release()

			terminations := &atomic.Int32{}
			command.terminate = func() {
				terminations.Add(1)
				writeSignal(testInstance, detector.files.stderr, "Terminated\n")
				writeSignal(testInstance, detector.files.status, "143 9\n")
			}

			outcome := detector.await(command)
			require.Equal(testInstance, testCase.expectedKind, outcome.kind)
			require.Equal(testInstance, "Terminated\n", outcome.stderr)
			require.Equal(testInstance, int32(1), terminations.Load())
		})
	}
}

func TestDetectorPrefersInterruptFlagOverMatchingStatus(testInstance *testing.T) {
	detector := newTestDetector(testInstance)
	command, terminations := newTestPendingCommand(5, time.Minute)
	command.interrupted = func() bool { return true }
	writeSignal(testInstance, detector.files.status, "143 5\n")

	outcome := detector.await(command)
	require.Equal(testInstance, completionInterrupted, outcome.kind)
	require.Zero(testInstance, terminations.Load())
}

func TestDetectorThrottlesOutputCallbacks(testInstance *testing.T) {
	detector := newTestDetector(testInstance)
	detector.outputThrottle = 40 * time.Millisecond
	recorder := &callbackRecorder{}
	command, _ := newTestPendingCommand(3, 5*time.Second)
	command.onOutput = recorder.record

	go func() {
		var output strings.Builder
		stopAt := time.Now().Add(300 * time.Millisecond)
		for time.Now().Before(stopAt) {
			output.WriteString("x")
			_ = os.WriteFile(detector.files.stdout, []byte(output.String()), signalFilePermissionsConstant)
			time.Sleep(detector.pollInterval)
		}
		_ = os.WriteFile(detector.files.status, []byte("0 3\n"), signalFilePermissionsConstant)
	}()

	startedAt := time.Now()
	outcome := detector.await(command)
	elapsed := time.Since(startedAt)
	require.Equal(testInstance, completionFinished, outcome.kind)

	moments := recorder.times()
	require.GreaterOrEqual(testInstance, len(moments), 2)
	for index := 1; index < len(moments)-1; index++ {
		require.GreaterOrEqual(testInstance, moments[index].Sub(moments[index-1]), detector.outputThrottle)
	}
	require.LessOrEqual(testInstance, len(moments), int(elapsed/detector.outputThrottle)+2)
	require.Equal(testInstance, outcome.stdout+"|", recorder.all()[len(moments)-1])
}

func TestDetectorRereadsSameSizeRewrite(testInstance *testing.T) {
	detector := newTestDetector(testInstance)
	path := detector.files.stdout
	firstModification := time.Now().Add(-time.Minute)

	writeSignal(testInstance, path, "aaaa")
	require.NoError(testInstance, os.Chtimes(path, firstModification, firstModification))
	content, stamp, changed := detector.readIfChanged(path, fileStamp{size: -1})
	require.True(testInstance, changed)
	require.Equal(testInstance, "aaaa", content)

	_, _, changed = detector.readIfChanged(path, stamp)
	require.False(testInstance, changed)

	writeSignal(testInstance, path, "bbbb")
	secondModification := firstModification.Add(time.Second)
	require.NoError(testInstance, os.Chtimes(path, secondModification, secondModification))
	content, _, changed = detector.readIfChanged(path, stamp)
	require.True(testInstance, changed)
	require.Equal(testInstance, "bbbb", content)
}

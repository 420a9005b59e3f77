package shellsession

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	signalFilePrefixConstant              = "shellkeeper-"
	statusSuffixConstant                  = "-status"
	stdoutSuffixConstant                  = "-stdout"
	stderrSuffixConstant                  = "-stderr"
	cwdSuffixConstant                     = "-cwd"
	sessionIdentifierLengthConstant       = 8
	signalFilePermissionsConstant         = 0o600
	signalFileCreateErrorTemplateConstant = "unable to create signal file %s: %w"
)

// signalFiles are the per-session paths the wrapped script writes to.
type signalFiles struct {
	identifier string
	status     string
	stdout     string
	stderr     string
	cwd        string
}

func newSignalFiles(directory string) signalFiles {
	if len(directory) == 0 {
		directory = os.TempDir()
	}
	identifier := strings.ReplaceAll(uuid.NewString(), "-", "")[:sessionIdentifierLengthConstant]
	base := filepath.Join(directory, signalFilePrefixConstant+identifier)
	return signalFiles{
		identifier: identifier,
		status:     base + statusSuffixConstant,
		stdout:     base + stdoutSuffixConstant,
		stderr:     base + stderrSuffixConstant,
		cwd:        base + cwdSuffixConstant,
	}
}

func (files signalFiles) all() []string {
	return []string{files.status, files.stdout, files.stderr, files.cwd}
}

func (files signalFiles) directory() string {
	return filepath.Dir(files.status)
}

func (files signalFiles) create() error {
	for _, path := range files.all() {
		if writeError := os.WriteFile(path, nil, signalFilePermissionsConstant); writeError != nil {
			return fmt.Errorf(signalFileCreateErrorTemplateConstant, path, writeError)
		}
	}
	return nil
}

// truncate empties the status and output files before a command is dispatched.
func (files signalFiles) truncate() error {
	var truncateErrors []error
	for _, path := range []string{files.status, files.stdout, files.stderr} {
		if writeError := os.WriteFile(path, nil, signalFilePermissionsConstant); writeError != nil {
			truncateErrors = append(truncateErrors, writeError)
		}
	}
	return errors.Join(truncateErrors...)
}

func (files signalFiles) remove() error {
	var removeErrors []error
	for _, path := range files.all() {
		if removeError := os.Remove(path); removeError != nil && !errors.Is(removeError, os.ErrNotExist) {
			removeErrors = append(removeErrors, removeError)
		}
	}
	return errors.Join(removeErrors...)
}

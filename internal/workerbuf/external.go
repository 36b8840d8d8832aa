//go:build unix

package workerbuf

import (
	"fmt"
	"os"

	"github.com/honggfuzz-go/corpus/internal/corpuslog"
)

// SubprocExec runs argv synchronously and returns its exit code, standing
// in for the external subproc_System collaborator (spec.md §6) so this
// package never links against an actual process-spawning implementation.
type SubprocExec func(argv []string) int

// PrepareExternal implements input_prepareExternalFile: it hands an empty
// scratch file to an external producer command via the /dev/fd/<n>
// convention, then reads back whatever the command wrote.
func PrepareExternal(buf *Buffer, workDir, externalCommand string, exec SubprocExec) error {
	tmp, err := os.CreateTemp(workDir, "honggfuzz-ext-*")
	if err != nil {
		return fmt.Errorf("workerbuf: create external scratch file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	fdPath := fmt.Sprintf("/dev/fd/%d", tmp.Fd())
	if code := exec([]string{externalCommand, fdPath}); code != 0 {
		return fmt.Errorf("workerbuf: external command %q exited %d", externalCommand, code)
	}
	corpuslog.Debugf("workerbuf: external command %q finished with success", externalCommand)

	if _, err := tmp.Seek(0, 0); err != nil {
		return fmt.Errorf("workerbuf: rewind external scratch file: %w", err)
	}
	if _, err := buf.FillFrom(tmp, buf.maxInputSz); err != nil {
		return err
	}
	return nil
}

// PostProcess implements input_postProcessFile: it writes the current
// buffer content to a scratch file, runs an external filter command
// against it via /dev/fd/<n>, and reads the filtered result back.
func PostProcess(buf *Buffer, workDir, cmd string, exec SubprocExec) error {
	tmp, err := os.CreateTemp(workDir, "honggfuzz-ext-*")
	if err != nil {
		return fmt.Errorf("workerbuf: create post-process scratch file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("workerbuf: write post-process scratch file: %w", err)
	}

	fdPath := fmt.Sprintf("/dev/fd/%d", tmp.Fd())
	if code := exec([]string{cmd, fdPath}); code != 0 {
		return fmt.Errorf("workerbuf: post-process command %q exited %d", cmd, code)
	}
	corpuslog.Debugf("workerbuf: post-process command %q finished with success", cmd)

	if _, err := tmp.Seek(0, 0); err != nil {
		return fmt.Errorf("workerbuf: rewind post-process scratch file: %w", err)
	}
	if _, err := buf.FillFrom(tmp, buf.maxInputSz); err != nil {
		return err
	}
	return nil
}

package utils

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// LevelTrace is the most verbose log level, used for command tracing
const LevelTrace = slog.Level(-8)

// CommandError is returned by RunCommand when the command was started but
// exited with an error. Output holds the captured stdout and stderr lines.
type CommandError struct {
	Cmd    string
	Output []string
	Err    error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("Run(%s): err:%v { output: %q }", e.Cmd, e.Err, strings.Join(e.Output, "\n"))
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// DirIsEmpty returns true if given dir has no entries
func DirIsEmpty(path string) (bool, error) {
	dirents, err := os.ReadDir(path)
	if err != nil {
		return false, err
	}
	return len(dirents) == 0, nil
}

// RunCommand runs given command with given arguments on given CWD
// only given envs are passed to the command, the parent environment is not inherited.
func RunCommand(ctx context.Context, log *slog.Logger, envs []string, cwd string, command string, args ...string) (string, error) {

	cmdStr := command + " " + strings.Join(args, " ")
	log.Log(ctx, LevelTrace, "running command", "cwd", cwd, "cmd", cmdStr)

	cmd := exec.CommandContext(ctx, command, args...)
	// force kill git & child process 5 seconds after sending it sigterm (when ctx is cancelled/timed out)
	cmd.WaitDelay = 5 * time.Second
	if cwd != "" {
		cmd.Dir = cwd
	}
	outbuf := bytes.NewBuffer(nil)
	errbuf := bytes.NewBuffer(nil)
	cmd.Stdout = outbuf
	cmd.Stderr = errbuf

	// If Env is nil, the new process uses the current process's environment.
	cmd.Env = []string{}

	if len(envs) > 0 {
		cmd.Env = append(cmd.Env, envs...)
	}

	start := time.Now()
	err := cmd.Run()
	runTime := time.Since(start)

	stdout := strings.TrimSpace(outbuf.String())
	stderr := strings.TrimSpace(errbuf.String())
	// a command which exited successfully is not failed by late cancellation
	if err != nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		return "", &CommandError{Cmd: cmdStr, Output: outputLines(stdout, stderr), Err: err}
	}
	log.Log(ctx, LevelTrace, "command result", "stdout", stdout, "stderr", stderr, "time", runTime)

	return stdout, nil
}

func outputLines(outputs ...string) []string {
	var lines []string
	for _, out := range outputs {
		if out == "" {
			continue
		}
		lines = append(lines, strings.Split(out, "\n")...)
	}
	return lines
}

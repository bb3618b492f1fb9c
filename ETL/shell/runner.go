package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/LilVoxy/wdi_pipeline/ETL/utils"
)

// Command описывает запуск внешней утилиты (rclone, wrangler)
type Command struct {
	Name  string
	Args  []string
	Dir   string
	Stdin io.Reader
}

// String возвращает команду в виде строки для логов
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result содержит результат выполнения команды
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// ExitError возвращается, когда команда завершилась с ненулевым кодом
type ExitError struct {
	Command Command
	Result  *Result
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Result.Stderr)
	if msg == "" {
		msg = strings.TrimSpace(e.Result.Stdout)
	}
	return fmt.Sprintf("команда %q завершилась с кодом %d: %s", e.Command.String(), e.Result.ExitCode, msg)
}

// Runner выполняет внешние команды
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExecRunner выполняет команды через os/exec
type ExecRunner struct {
	logger *utils.ETLLogger
}

// NewExecRunner создает новый экземпляр ExecRunner
func NewExecRunner(logger *utils.ETLLogger) *ExecRunner {
	return &ExecRunner{logger: logger}
}

// Run запускает команду и ждет ее завершения
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	r.logger.Debug("Выполнение команды: %s", cmd.String())

	execCmd := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	execCmd.Dir = cmd.Dir
	execCmd.Stdin = cmd.Stdin

	var stdoutBuf, stderrBuf bytes.Buffer
	execCmd.Stdout = &stdoutBuf
	execCmd.Stderr = &stderrBuf

	startTime := time.Now()
	err := execCmd.Run()

	result := &Result{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		Duration: time.Since(startTime),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, &ExitError{Command: cmd, Result: result}
		}
		result.ExitCode = -1
		return result, fmt.Errorf("не удалось запустить %q: %w", cmd.String(), err)
	}

	r.logger.Debug("Команда %s выполнена за %v", cmd.Name, result.Duration)
	return result, nil
}

// ExitCode возвращает код завершения из ошибки Run или -1, если это не ExitError
func ExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Result.ExitCode
	}
	return -1
}

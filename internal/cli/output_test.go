package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cosimkit/internal/simerr"
	"github.com/roach88/cosimkit/internal/store"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(map[string]string{"run_id": "run-1"})
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error(ErrCodeExecution, "simulation failed", map[string]int{"exit_code": 3})
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E005", resp.Error.Code)
	assert.Equal(t, "simulation failed", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success(RunReport{RunID: "run-1", WorkDir: "/tmp/cosimkit_tmp/sim_run-1"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Run run-1 finished")
	assert.Contains(t, buf.String(), "/tmp/cosimkit_tmp/sim_run-1")
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: false,
	}

	err := formatter.Error(ErrCodeGeneric, "something broke", map[string]string{"k": "v"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E001]")
	assert.Contains(t, buf.String(), "something broke")
	assert.NotContains(t, buf.String(), "Details:")
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	err := formatter.Error(ErrCodeGeneric, "something broke", map[string]string{"k": "v"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E001]")
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			errBuf := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:    "json",
				Writer:    buf,
				ErrWriter: errBuf,
				Verbose:   tt.verbose,
			}

			formatter.VerboseLog("Staging %s", "chassis.fmu")

			assert.Empty(t, buf.String())
			if tt.wantLog {
				assert.Contains(t, errBuf.String(), "Staging chassis.fmu")
			} else {
				assert.Empty(t, errBuf.String())
			}
		})
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
		exit int
	}{
		{"validation", simerr.Validation("bad duration"), ErrCodeValidation, ExitCommandError},
		{"deployment", simerr.Deployment("/x.fmu", "missing", nil), ErrCodeDeployment, ExitCommandError},
		{"environment", simerr.Environment("cosim", "not found", nil), ErrCodeEnvironment, ExitCommandError},
		{"execution", simerr.Execution(3, "log", nil), ErrCodeExecution, ExitFailure},
		{"result parsing", simerr.ResultParsing("/r.csv", "bad header", nil), ErrCodeResultParsing, ExitFailure},
		{"not found", fmt.Errorf("run x: %w", store.ErrNotFound), ErrCodeNotFound, ExitCommandError},
		{"generic", errors.New("boom"), ErrCodeGeneric, ExitCommandError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, ErrorCode(tt.err))
			assert.Equal(t, tt.exit, exitCodeFor(tt.err))
		})
	}
}

func TestOutputFormatter_Fail_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := formatter.Fail("simulation failed", simerr.Execution(3, "fatal: step failed", nil))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, simerr.IsExecution(err))

	var resp struct {
		Status string `json:"status"`
		Error  struct {
			Code    string       `json:"code"`
			Details errorDetails `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeExecution, resp.Error.Code)
	assert.Equal(t, "EXECUTION", resp.Error.Details.Kind)
	assert.Equal(t, 3, resp.Error.Details.ExitCode)
	assert.Equal(t, "fatal: step failed", resp.Error.Details.Log)
}

func TestOutputFormatter_Fail_TextShowsLog(t *testing.T) {
	buf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf, ErrWriter: errBuf}

	err := formatter.Fail("simulation failed", simerr.Execution(1, "fatal: step failed", nil))
	require.Error(t, err)

	assert.Contains(t, buf.String(), "Error [E005]")
	assert.Contains(t, errBuf.String(), "--- cosim log ---")
	assert.Contains(t, errBuf.String(), "fatal: step failed")
}

func TestOutputFormatter_Fail_PlainError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := formatter.Fail("failed", errors.New("boom"))
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	resp := CLIResponse{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeGeneric, resp.Error.Code)
	assert.Nil(t, resp.Error.Details)
}

func TestExitError(t *testing.T) {
	inner := errors.New("disk full")
	err := WrapExitError(ExitFailure, "write failed", inner)
	assert.Equal(t, "write failed: disk full", err.Error())
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitCommandError, "bad"))))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
}

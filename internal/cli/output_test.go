package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgerdb/internal/config"
	"github.com/roach88/ledgerdb/internal/criteria"
	"github.com/roach88/ledgerdb/internal/querysql"
	"github.com/roach88/ledgerdb/internal/store"
)

func fixedTraceID() string { return "trace-1" }

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:     "json",
		Writer:     buf,
		NewTraceID: fixedTraceID,
	}

	err := formatter.Success(map[string]int{"tip": 3})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "trace-1", resp.TraceID)
	assert.Equal(t, map[string]interface{}{"tip": float64(3)}, resp.Data)
}

func TestOutputFormatter_DefaultTraceIDIsUUIDv7(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success("ok"))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	id, err := uuid.Parse(resp.TraceID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:     "json",
		Writer:     buf,
		NewTraceID: fixedTraceID,
	}

	details := map[string]string{"height": "2"}
	require.NoError(t, formatter.Error("MIDDLE_DELETION", "rollback refused", details))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "trace-1", resp.TraceID)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "MIDDLE_DELETION", resp.Error.Code)
	assert.Equal(t, "rollback refused", resp.Error.Message)
	assert.Equal(t, map[string]interface{}{"height": "2"}, resp.Error.Details)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success("Schema at version 1"))
	assert.Equal(t, "Schema at version 1\n", buf.String())
}

func TestOutputFormatter_TextError(t *testing.T) {
	tests := []struct {
		name        string
		verbose     bool
		wantDetails bool
	}{
		{"quiet", false, false},
		{"verbose", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: tt.verbose}

			require.NoError(t, formatter.Error("E004", "block 9 not found", map[string]string{"height": "9"}))
			assert.Contains(t, buf.String(), "Error [E004]: block 9 not found")
			if tt.wantDetails {
				assert.Contains(t, buf.String(), "Details:")
			} else {
				assert.NotContains(t, buf.String(), "Details:")
			}
		})
	}
}

func TestOutputFormatter_VerboseLogUsesErrWriter(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut, Verbose: true}

	formatter.VerboseLog("running %s", "rollback_top")

	assert.Empty(t, out.String())
	assert.Equal(t, "running rollback_top\n", errOut.String())

	formatter.Verbose = false
	formatter.VerboseLog("hidden")
	assert.Equal(t, "running rollback_top\n", errOut.String())
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))

	wrapped := fmt.Errorf("run: %w", WrapExitError(ExitCommandError, "open", errors.New("refused")))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
	assert.Equal(t, "run: open: refused", wrapped.Error())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
		wantExit int
	}{
		{
			name:     "corruption",
			err:      fmt.Errorf("delete blocks: %w", &store.CorruptionError{Code: store.ErrCodeMiddleDeletion, Message: "gap"}),
			wantCode: "MIDDLE_DELETION",
			wantExit: ExitFailure,
		},
		{
			name:     "schema",
			err:      &querysql.SchemaError{Code: querysql.ErrCodeColumnNotFound, Table: "blocks", Property: "colour"},
			wantCode: "COLUMN_NOT_FOUND",
			wantExit: ExitCommandError,
		},
		{
			name:     "invalid criteria",
			err:      &criteria.InvalidError{Field: "height", Message: "bad range"},
			wantCode: ErrCodeInvalidArgument,
			wantExit: ExitCommandError,
		},
		{
			name:     "bad flag",
			err:      NewExitError(ExitCommandError, "offset must be non-negative"),
			wantCode: ErrCodeInvalidArgument,
			wantExit: ExitCommandError,
		},
		{
			name:     "config",
			err:      &config.ValidationError{Details: "rounds.active_delegates: invalid value"},
			wantCode: ErrCodeConfig,
			wantExit: ExitCommandError,
		},
		{
			name:     "unmapped column",
			err:      &store.AssertionError{Table: "blocks", Column: "extra"},
			wantCode: ErrCodeGeneric,
			wantExit: ExitFailure,
		},
		{
			name:     "storage",
			err:      &store.StorageError{Op: "search", Retryable: true, Err: errors.New("deadlock")},
			wantCode: ErrCodeStorage,
			wantExit: ExitFailure,
		},
		{
			name:     "unknown",
			err:      errors.New("boom"),
			wantCode: ErrCodeGeneric,
			wantExit: ExitFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, exit := classify(tt.err)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantExit, exit)
		})
	}
}

func TestOutputFormatter_Fail(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf, NewTraceID: fixedTraceID}

	cause := &store.StorageError{Op: "find latest", Retryable: false, Err: errors.New("disk I/O error")}
	err := formatter.Fail("failed to read tip", cause)

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.ErrorIs(t, err, cause)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeStorage, resp.Error.Code)
	assert.Equal(t, "failed to read tip: find latest: disk I/O error", resp.Error.Message)
	assert.Equal(t, map[string]interface{}{"op": "find latest", "retryable": false}, resp.Error.Details)
}

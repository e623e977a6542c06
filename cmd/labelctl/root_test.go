package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nutrilabel/internal/apperr"
	"nutrilabel/internal/nutrition"
	"nutrilabel/internal/vlm"
)

const granolaAnswer = "```json\n" + `{
	"total_calories": 120,
	"metadata": {"confidence_score": 0.9},
	"product_details": {"serving_size": {"amount": 40, "unit": "g"}},
	"nutrients": {"protein": {"amount": 3, "unit": "g"}}
}` + "\n```"

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

type stubExtractor struct {
	out vlm.Output
	err error
	got string
}

func (s *stubExtractor) Extract(_ context.Context, imageURL string) (vlm.Output, error) {
	s.got = imageURL
	return s.out, s.err
}

type closeRecorder struct{ closed bool }

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func stubModel(t *testing.T, model extractor, err error) *closeRecorder {
	t.Helper()
	original := newExtractor
	t.Cleanup(func() { newExtractor = original })

	closer := &closeRecorder{}
	newExtractor = func(context.Context) (extractor, io.Closer, error) {
		if err != nil {
			return nil, nil, err
		}
		return model, closer, nil
	}
	return closer
}

func TestRootCmd_ListsSubcommands(t *testing.T) {
	root := newRootCmd()
	names := make([]string, 0, len(root.Commands()))
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"schema", "parse", "extract", "names"}, names)

	flag := root.PersistentFlags().Lookup("log-level")
	require.NotNil(t, flag)
	assert.Equal(t, "warn", flag.DefValue)
}

func TestRootCmd_RejectsUnknownLogLevel(t *testing.T) {
	_, err := execute(t, "", "names", "--log-level", "loud")
	assert.Error(t, err)
}

func TestSchemaCmd(t *testing.T) {
	out, err := execute(t, "", "schema")
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &schema))
	assert.Equal(t, "object", schema["type"])

	out, err = execute(t, "", "schema", "--prompt")
	require.NoError(t, err)
	assert.Equal(t, nutrition.Instruction()+"\n", out)

	out, err = execute(t, "", "schema", "--example")
	require.NoError(t, err)
	assert.Contains(t, out, `"total_calories"`)

	_, err = execute(t, "", "schema", "--prompt", "--example")
	assert.Error(t, err)
}

func TestParseCmd_ReadsStdin(t *testing.T) {
	out, err := execute(t, granolaAnswer, "parse")
	require.NoError(t, err)

	var label nutrition.Label
	require.NoError(t, json.Unmarshal([]byte(out), &label))
	assert.Equal(t, 120, label.TotalCalories)
	assert.Equal(t, 3.0, label.Amount("protein"))
}

func TestParseCmd_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "answer.json")
	require.NoError(t, os.WriteFile(path, []byte(granolaAnswer), 0o600))

	out, err := execute(t, "", "parse", path)
	require.NoError(t, err)
	assert.Contains(t, out, `"total_calories": 120`)

	_, err = execute(t, "", "parse", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestParseCmd_ReportsSchemaViolation(t *testing.T) {
	_, err := execute(t, `{"total_calories": 1}`, "parse", "-")
	require.Error(t, err)
	assert.Equal(t, apperr.KindSchemaViolation, apperr.KindOf(err))
}

func TestExtractCmd(t *testing.T) {
	model := &stubExtractor{out: vlm.Output{
		Content:  granolaAnswer,
		Model:    "stub",
		Attempts: 2,
		Latency:  1500 * time.Millisecond,
		Usage:    vlm.Usage{TotalTokens: 42},
	}}
	closer := stubModel(t, model, nil)

	out, err := execute(t, "", "extract", "https://example/img.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://example/img.jpg", model.got)
	assert.True(t, closer.closed)

	var got extraction
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "stub", got.Model)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, int64(1500), got.LatencyMillis)
	assert.Equal(t, 42, got.Usage.TotalTokens)
	assert.Equal(t, 120, got.NutritionInfo.TotalCalories)
}

func TestExtractCmd_Raw(t *testing.T) {
	stubModel(t, &stubExtractor{out: vlm.Output{Content: "not json"}}, nil)

	out, err := execute(t, "", "extract", "--raw", "https://example/img.jpg")
	require.NoError(t, err)
	assert.Equal(t, "not json\n", out)
}

func TestExtractCmd_Errors(t *testing.T) {
	_, err := execute(t, "", "extract")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")

	stubModel(t, nil, errors.New("vlm: api key must not be empty"))
	_, err = execute(t, "", "extract", "https://example/img.jpg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configure model")

	stubModel(t, &stubExtractor{err: apperr.Msg(apperr.KindModelUnavailable, "test", "down")}, nil)
	_, err = execute(t, "", "extract", "https://example/img.jpg")
	assert.Equal(t, apperr.KindModelUnavailable, apperr.KindOf(err))
}

func TestNamesCmd(t *testing.T) {
	out, err := execute(t, "", "names")
	require.NoError(t, err)
	assert.Equal(t, strings.Join(nutrition.CanonicalNames(), "\n")+"\n", out)

	out, err = execute(t, "", "names", "Sat. Fat", "Total Carbohydrate", "Caffeine")
	require.NoError(t, err)
	assert.Equal(t, "Sat. Fat\tsaturated_fat\nTotal Carbohydrate\tcarbohydrates\nCaffeine\t-\n", out)
}

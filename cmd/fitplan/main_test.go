package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/2beens/fitplan/internal/testinternals"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func templatesDir(t *testing.T, withBroken bool) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "starter"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "advanced"), 0o755))
	write := func(rel, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(root, rel), []byte(content), 0o600))
	}
	write("starter/"+testinternals.StarterFatLossGymID+".json", testinternals.StarterFatLossGymJSON)
	write("advanced/"+testinternals.AdvancedGymID+".json", testinternals.AdvancedGymJSON)
	if withBroken {
		write("starter/broken.json", `{"plan_id": "broken", "type": "starter"}`)
	}
	return root
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := newRootCmd()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCmd_Subcommands(t *testing.T) {
	names := []string{}
	for _, c := range newRootCmd().Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "validate", "preview", "generate", "migrate"})
}

func TestValidate_Dir(t *testing.T) {
	out, err := run(t, "validate", "--dir", templatesDir(t, false))
	require.NoError(t, err)

	var report validationReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 2, report.Catalog.Loaded)
	assert.Empty(t, report.Catalog.Rejected)
	assert.Equal(t, 2, report.Statistics.Total)
}

func TestValidate_Rejects(t *testing.T) {
	dir := templatesDir(t, true)

	out, err := run(t, "validate", "--dir", dir)
	require.ErrorIs(t, err, errValidationFailed)
	var report validationReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Catalog.Rejected, 1)
	assert.Contains(t, report.Catalog.Rejected[0].Source, "broken.json")

	_, err = run(t, "validate", "--dir", dir, "--allow-rejects", "--format", "yaml")
	assert.NoError(t, err)
}

func TestValidate_InjuryConflicts(t *testing.T) {
	injuriesPath := filepath.Join(t.TempDir(), "injuries.json")
	require.NoError(t, os.WriteFile(injuriesPath, []byte(`{
		"knee": {"avoid_keywords": ["squat"], "substitute_exercises": ["box_squat", "glute_bridge"]}
	}`), 0o600))

	out, err := run(t, "validate", "--dir", templatesDir(t, false), "--injuries", injuriesPath)
	require.NoError(t, err)
	var report validationReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.NotNil(t, report.Injuries)
	assert.Equal(t, 1, report.Injuries.InjuryTypes)
	require.Len(t, report.InjuryConflict, 1)
	assert.Equal(t, "box_squat", report.InjuryConflict[0].ExerciseID)
}

func TestPreview_FromConfig(t *testing.T) {
	dir := t.TempDir()
	injuriesPath := filepath.Join(dir, "injuries.json")
	require.NoError(t, os.WriteFile(injuriesPath, []byte(testinternals.InjuryMappingJSON), 0o600))
	configPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
[development]
log_level = "error"
templates_dir = "`+templatesDir(t, false)+`"
injury_paths = ["`+injuriesPath+`"]
`), 0o600))

	out, err := run(t, "preview", "--config", configPath,
		"--goal", "lose_weight", "--location", "gym", "--days", "3", "--injuries", "knee")
	require.NoError(t, err)

	var draft struct {
		Template struct {
			ID string `json:"id"`
		} `json:"template"`
		Substituted int `json:"substituted"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &draft))
	assert.Equal(t, testinternals.StarterFatLossGymID, draft.Template.ID)
	assert.Positive(t, draft.Substituted)

	_, err = run(t, "preview", "--config", configPath, "--type", "legendary")
	assert.ErrorContains(t, err, "unknown template type")
	_, err = run(t, "preview", "--config", configPath, "--start", "14/10/2026")
	assert.ErrorContains(t, err, "invalid start date")
}

func TestGenerate_RequiresUser(t *testing.T) {
	_, err := run(t, "generate", "--goal", "fat_loss")
	assert.EqualError(t, err, "--user is required")
}

func TestWriteOutput(t *testing.T) {
	v := map[string]any{"loaded": 2, "rejected": []string{"broken.json"}}

	buf := &bytes.Buffer{}
	require.NoError(t, writeOutput(buf, formatYAML, v))
	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 2, decoded["loaded"])

	buf.Reset()
	require.NoError(t, writeOutput(buf, formatJSON, v))
	assert.True(t, strings.HasPrefix(buf.String(), "{\n  "))

	assert.EqualError(t, writeOutput(buf, "xml", v), "unknown output format: xml")
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nickm615/personalization-custom-app-example/pkg/panel"
	"github.com/Nickm615/personalization-custom-app-example/pkg/personalization"
)

const (
	demoEnv     = "demo-env"
	defaultLang = "00000000-0000-0000-0000-000000000000"
	baseItem    = "11111111-0000-4000-8000-000000000001"
	teachers    = "b2e3d4c5-0002-4000-8000-000000000003"
)

var snapshotFixture = filepath.Join("..", "..", "pkg", "store", "testdata", "snapshot.json")

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// offline isolates a test from the caller's environment and returns the
// flags pointing at a fresh SQLite file.
func offline(t *testing.T) []string {
	t.Helper()
	for _, k := range []string{"KONTENT_ENVIRONMENT_ID", "KONTENT_MANAGEMENT_API_KEY", "PERSONALIZATION_DB", "PERSONALIZATION_ADDR"} {
		t.Setenv(k, "")
	}
	tmp := t.TempDir()
	return []string{
		"--config", filepath.Join(tmp, "missing.yaml"),
		"--db", filepath.Join(tmp, "personalization.db"),
		"--env", demoEnv,
	}
}

func TestCLI_Offline(t *testing.T) {
	flags := offline(t)

	out, err := run(t, append([]string{"import", snapshotFixture}, flags...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 13 entities for environment demo-env")

	out, err = run(t, append([]string{"show", baseItem, defaultLang}, flags...)...)
	require.NoError(t, err)
	var st panel.State
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, panel.StateSuccess, st.Loading)
	require.NotNil(t, st.Snapshot)
	require.Len(t, st.Snapshot.Variants, 1)

	out, err = run(t, append([]string{"variant", "create", baseItem, defaultLang, teachers}, flags...)...)
	require.NoError(t, err)
	var created personalization.CreateVariantResponse
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.Equal(t, "Spring sale (Teachers)", created.ItemName)

	out, err = run(t, append([]string{"show", baseItem, defaultLang}, flags...)...)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Len(t, st.Snapshot.Variants, 2)

	out, err = run(t, append([]string{"variant", "delete", baseItem, defaultLang, created.ItemID}, flags...)...)
	require.NoError(t, err)
	assert.Equal(t, "Deleted variant "+created.ItemID+"\n", out)
}

func TestCLI_ShowMissingItemPrintsErrorState(t *testing.T) {
	flags := offline(t)
	_, err := run(t, append([]string{"import", snapshotFixture}, flags...)...)
	require.NoError(t, err)

	out, err := run(t, append([]string{"show", "missing", defaultLang}, flags...)...)
	require.Error(t, err)
	var st panel.State
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, panel.StateError, st.Loading)
	assert.NotEmpty(t, st.Error)
	assert.Nil(t, st.Snapshot)
}

func TestCLI_Errors(t *testing.T) {
	flags := offline(t)
	tmp := t.TempDir()
	noDB := []string{"--config", filepath.Join(tmp, "missing.yaml")}

	_, err := run(t, append([]string{"import", snapshotFixture}, noDB...)...)
	assert.ErrorContains(t, err, "import writes to SQLite")

	_, err = run(t, append([]string{"show", baseItem, defaultLang, "--db", filepath.Join(tmp, "x.db")}, noDB...)...)
	assert.ErrorContains(t, err, "no environment id")

	_, err = run(t, append([]string{"show", baseItem}, flags...)...)
	assert.Error(t, err, "show takes two arguments")

	_, err = run(t, append([]string{"import", filepath.Join(tmp, "nope.json")}, flags...)...)
	assert.Error(t, err)
}

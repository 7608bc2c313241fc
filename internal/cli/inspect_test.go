package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cachesync/internal/store"
)

func seedDatabase(t *testing.T, artifactName string, inputs ...string) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "cache.db")
	for _, in := range inputs {
		_, _, err := execute(t, in, "serve", "--db", db, "--artifact", artifactName)
		require.NoError(t, err)
	}
	return db
}

func TestInspect_Text(t *testing.T) {
	db := seedDatabase(t, "s", "set b 2\nset a <1>\n")

	out, _, err := execute(t, "", "inspect", "--db", db, "--artifact", "s")
	require.NoError(t, err)
	assert.Contains(t, out, "artifact s seq 1 version 2 (2 entries)\n")
	assert.Contains(t, out, "a=<1>\nb=2\n")
	assert.NotContains(t, out, "MISMATCH")
}

func TestInspect_JSON(t *testing.T) {
	db := seedDatabase(t, "s", "set a 1\n")

	out, _, err := execute(t, "", "inspect", "--db", db, "--artifact", "s", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   InspectResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Verified)
	assert.Equal(t, map[string]string{"a": "1"}, resp.Data.Entries)
}

func TestInspect_NotFound(t *testing.T) {
	db := seedDatabase(t, "s", "set a 1\n")

	out, _, err := execute(t, "", "inspect", "--db", db, "--artifact", "other")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [NOT_FOUND]")
}

func TestInspect_NotFoundListsKnownArtifacts(t *testing.T) {
	db := seedDatabase(t, "s", "set a 1\n")

	out, _, err := execute(t, "", "inspect", "--db", db, "--artifact", "other", "--format", "json")
	require.Error(t, err)

	var resp struct {
		Status string `json:"status"`
		Error  struct {
			Code    string              `json:"code"`
			Details map[string][]string `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	assert.Equal(t, []string{"s"}, resp.Error.Details["artifacts"])
}

func TestInspect_MissingDatabase(t *testing.T) {
	_, _, err := execute(t, "", "inspect", "--db", filepath.Join(t.TempDir(), "nope.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "database not found")
}

func TestInspect_ChecksumMismatch(t *testing.T) {
	db := seedDatabase(t, "s", "set a 1\n")

	st, err := store.Open(db)
	require.NoError(t, err)
	_, err = st.DB().Exec(`UPDATE snapshots SET body = ?`, []byte(`{"a":"2"}`))
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, _, err := execute(t, "", "inspect", "--db", db, "--artifact", "s")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "MISMATCH")
}

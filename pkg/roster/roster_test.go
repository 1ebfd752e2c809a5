//nolint:thelper // ok for tests
package roster

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	r := Default()
	team, ok := r.Team(2025, "VER")
	assert.True(t, ok)
	assert.Equal(t, "Red Bull Racing", team)

	team, ok = r.Team(2025, "DOO")
	assert.True(t, ok)
	assert.Equal(t, "Alpine", team)

	_, ok = r.Team(2023, "VER")
	assert.False(t, ok, "season without overrides")

	_, ok = r.Team(2025, "XYZ")
	assert.False(t, ok)

	color, ok := r.TeamColor("McLaren")
	assert.True(t, ok)
	assert.Equal(t, "#FF8000", color)
}

func TestLoad_Formats(t *testing.T) {
	dir := t.TempDir()
	yamlFile := filepath.Join(dir, "roster.yaml")
	require.NoError(t, os.WriteFile(yamlFile, []byte(`
seasons:
  "2024":
    teams:
      VER: Red Bull
team_colors:
  Red Bull: "#112233"
`), 0o600))
	tomlFile := filepath.Join(dir, "roster.toml")
	require.NoError(t, os.WriteFile(tomlFile, []byte(`
[seasons.2024.teams]
VER = "Red Bull"

[team_colors]
"Red Bull" = "#112233"
`), 0o600))

	for _, f := range []string{yamlFile, tomlFile} {
		r, err := Load(f)
		require.NoError(t, err, f)
		team, ok := r.Team(2024, "VER")
		assert.True(t, ok, f)
		assert.Equal(t, "Red Bull", team, f)
		color, ok := r.TeamColor("Red Bull")
		assert.True(t, ok, f)
		assert.Equal(t, "#112233", color, f)
		assert.Equal(t, []string{"2024"}, r.Seasons())
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	unknown := filepath.Join(dir, "roster.json")
	require.NoError(t, os.WriteFile(unknown, []byte(`{}`), 0o600))
	_, err = Load(unknown)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("unknown_key: 1\n"), 0o600))
	_, err = Load(invalid)
	assert.Error(t, err)
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "roster.yaml")
	write := func(team string) {
		require.NoError(t, os.WriteFile(f, []byte(`
seasons:
  "2025":
    teams:
      VER: `+team+"\n"), 0o600))
	}
	write("Team A")
	r, err := Load(f)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, r.Watch(ctx))

	write("Team B")
	assert.Eventually(t, func() bool {
		team, _ := r.Team(2025, "VER")
		return team == "Team B"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatch_NoFile(t *testing.T) {
	assert.ErrorIs(t, Default().Watch(context.Background()), ErrNoFile)
}

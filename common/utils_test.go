package common

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateScanID(t *testing.T) {
	before := time.Now().UTC().Truncate(time.Second)
	id := GenerateScanID()
	after := time.Now().UTC()

	assert.Regexp(t, regexp.MustCompile(`^\d{14}-[0-9a-f]{8}$`), id)

	started, err := time.Parse("20060102150405", id[:14])
	require.NoError(t, err)
	assert.False(t, started.Before(before))
	assert.False(t, started.After(after))

	assert.NotEqual(t, id, GenerateScanID())
}

func TestReadKeywordsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keywords.txt")
	content := "# senior topics\n시니어 운동\n\n  실버 요리  \n# trailing comment\n노후 준비\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	keywords, err := ReadKeywordsFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"시니어 운동", "실버 요리", "노후 준비"}, keywords)

	_, err = ReadKeywordsFromFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestParseTiers(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want [][]string
	}{
		{"single tier", "시니어, 실버", [][]string{{"시니어", "실버"}}},
		{"two tiers", "시니어,실버;운동,요리", [][]string{{"시니어", "실버"}, {"운동", "요리"}}},
		{"empty tiers dropped", "시니어;;  ;요리,", [][]string{{"시니어"}, {"요리"}}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseTiers(tt.expr))
		})
	}
}

func TestSetupLogging(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	require.NoError(t, SetupLogging(LogConfig{Level: "debug", Format: "json"}))
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	logFile := filepath.Join(t.TempDir(), "logs", "trends.log")
	require.NoError(t, SetupLogging(LogConfig{Level: "warn", File: logFile}))
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
	assert.DirExists(t, filepath.Dir(logFile))

	assert.Error(t, SetupLogging(LogConfig{Level: "loud"}))
}

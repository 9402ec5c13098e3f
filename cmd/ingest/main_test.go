package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/legisync/internal/config"
	"github.com/timmy/legisync/internal/domain"
)

func TestBuildOptions(t *testing.T) {
	cfg := &config.Config{Job: config.JobConfig{DefaultDestination: "local"}}

	t.Run("defaults and id parsing", func(t *testing.T) {
		opts, err := buildOptions(cfg, "deputados", " 204554, ,220593 ", 57, 0, "2023-02-01", "", "", false, true)
		require.NoError(t, err)
		assert.Equal(t, domain.DestinationLocal, opts.Destination)
		assert.Equal(t, []string{"204554", "220593"}, opts.IDs)
		require.NotNil(t, opts.StartDate)
		assert.Nil(t, opts.EndDate)
		assert.True(t, opts.Verbose)
	})

	t.Run("explicit destination wins", func(t *testing.T) {
		opts, err := buildOptions(cfg, "partidos", "", 0, 5, "", "", "remote", true, false)
		require.NoError(t, err)
		assert.Equal(t, domain.DestinationRemote, opts.Destination)
		assert.True(t, opts.DryRun)
	})

	tests := []struct {
		name               string
		family, start, end string
		destination        string
		limit              int
	}{
		{name: "missing family"},
		{name: "bad date", family: "orgaos", start: "2023/01/01"},
		{name: "reversed range", family: "orgaos", start: "2023-05-01", end: "2023-01-01"},
		{name: "bad destination", family: "orgaos", destination: "ftp"},
		{name: "negative limit", family: "orgaos", limit: -2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildOptions(cfg, tt.family, "", 0, tt.limit, tt.start, tt.end, tt.destination, false, false)
			assert.ErrorIs(t, err, domain.ErrInvalidOptions)
		})
	}
}

package main

import (
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/hegemon/config"
	"github.com/poiesic/hegemon/core"
)

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		level   string
		wantErr bool
	}{
		{"debug", false},
		{"info", false},
		{"warn", false},
		{"error", false},
		{"INFO", false},
		{"verbose", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run("level "+tt.level, func(t *testing.T) {
			set := flag.NewFlagSet("test", 0)
			set.String("log-level", tt.level, "")
			ctx := cli.NewContext(nil, set, nil)

			err := setupLogger(ctx)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid log level")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBuildConnectors(t *testing.T) {
	registry := core.NewRegistry(core.DefaultRoster())

	t.Run("all sources disabled", func(t *testing.T) {
		cfg := &config.Config{}
		assert.Empty(t, buildConnectors(cfg, registry))
	})

	t.Run("enabled sources become connectors", func(t *testing.T) {
		cfg := &config.Config{
			Sources: config.Sources{
				Disclosures: config.Disclosures{
					Enabled: true,
					BaseURL: "https://opendart.fss.or.kr/api",
				},
				News: config.News{
					Enabled: true,
					Feeds: []config.Feed{
						{CompanyCode: "005930", URL: "https://example.com/feed.xml"},
					},
				},
				Market: config.Market{
					Enabled: true,
					BaseURL: "https://quotes.example.com",
				},
			},
		}

		connectors := buildConnectors(cfg, registry)
		require.Len(t, connectors, 3)

		ids := make([]string, len(connectors))
		for i, connector := range connectors {
			ids[i] = connector.ID()
		}
		assert.Contains(t, ids, "dart:disclosures")
		assert.Contains(t, ids, "rss:news")
		assert.Contains(t, ids, "quotes:market")
	})

	t.Run("news without feeds is skipped", func(t *testing.T) {
		cfg := &config.Config{
			Sources: config.Sources{
				News: config.News{Enabled: true},
			},
		}
		assert.Empty(t, buildConnectors(cfg, registry))
	})
}

func TestSchedulerOptionsFromConfig(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)

	opts, err := schedulerOptions(cfg)
	require.NoError(t, err)
	assert.Len(t, opts, 6)
}

func TestRetrievalOptionsFromConfig(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Retrieval.TopK = 16
	cfg.Retrieval.HalfLife = config.Duration(7 * 24 * time.Hour)

	opts := retrievalOptions(cfg)
	require.Len(t, opts, 1)
}

func TestExportCommandFlags(t *testing.T) {
	var exportCmd *cli.Command
	app := &cli.App{
		Name: "hegemon",
		Commands: []*cli.Command{
			{
				Name: "export",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "what", Value: "documents"},
					&cli.StringSliceFlag{Name: "company"},
					&cli.BoolFlag{Name: "vectors"},
				},
			},
		},
	}
	exportCmd = app.Commands[0]

	t.Run("what defaults to documents", func(t *testing.T) {
		var whatFlag *cli.StringFlag
		for _, f := range exportCmd.Flags {
			if sf, ok := f.(*cli.StringFlag); ok && sf.Name == "what" {
				whatFlag = sf
				break
			}
		}
		require.NotNil(t, whatFlag)
		assert.Equal(t, "documents", whatFlag.Value)
	})

	t.Run("vectors defaults to false", func(t *testing.T) {
		var vectorsFlag *cli.BoolFlag
		for _, f := range exportCmd.Flags {
			if bf, ok := f.(*cli.BoolFlag); ok && bf.Name == "vectors" {
				vectorsFlag = bf
				break
			}
		}
		require.NotNil(t, vectorsFlag)
		assert.False(t, vectorsFlag.Value)
	})
}

// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package hegemon

import (
	"log/slog"

	"github.com/poiesic/hegemon/ai"
	"github.com/poiesic/hegemon/ai/openai"
	"github.com/poiesic/hegemon/chunk"
	"github.com/poiesic/hegemon/core"
	"github.com/poiesic/hegemon/export"
	"github.com/poiesic/hegemon/ingestion"
	"github.com/poiesic/hegemon/report"
	"github.com/poiesic/hegemon/retrieval"
	"github.com/poiesic/hegemon/service"
	"github.com/poiesic/hegemon/sources"
	"github.com/poiesic/hegemon/storage"
	"github.com/poiesic/hegemon/storage/badger"
)

// Database bundles the storage backend, repositories, company registry,
// and AI provider, and hands out the pipeline components built on them.
type Database struct {
	backend  *badger.Backend
	docRepo  storage.DocumentRepository
	chunks   storage.ChunkRepository
	ledger   storage.LedgerRepository
	registry *core.Registry
	provider ai.Provider
	logger   *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	aiConfig *ai.Config
	roster   []core.Company
}

// WithAIConfig overrides the default AI provider configuration.
func WithAIConfig(config *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		if config != nil {
			o.aiConfig = config
		}
	}
}

// WithRoster overrides the built-in company roster.
func WithRoster(roster []core.Company) DatabaseOption {
	return func(o *databaseOptions) {
		if len(roster) > 0 {
			o.roster = roster
		}
	}
}

func NewDatabase(filePath string, opts ...DatabaseOption) (*Database, error) {
	// Apply options
	options := &databaseOptions{
		aiConfig: ai.DefaultConfig(), // Default if not provided
		roster:   core.DefaultRoster(),
	}
	for _, opt := range opts {
		opt(options)
	}
	// Open backend
	backend, err := badger.OpenBackend(filePath, false)
	if err != nil {
		return nil, err
	}

	docRepo := badger.NewDocumentRepository(backend)
	chunkRepo := badger.NewChunkRepository(backend)
	ledgerRepo := badger.NewLedgerRepository(backend)

	// Create AI provider with configured settings
	provider, err := openai.NewProvider(options.aiConfig)
	if err != nil {
		backend.Close()
		return nil, err
	}

	return &Database{
		backend:  backend,
		docRepo:  docRepo,
		chunks:   chunkRepo,
		ledger:   ledgerRepo,
		registry: core.NewRegistry(options.roster),
		provider: provider,
		logger:   slog.Default(),
	}, nil
}

func (db *Database) Close() error {
	// Close AI provider first
	if err := db.provider.Close(); err != nil {
		db.logger.Error("error closing AI provider", "err", err)
	}

	// Repositories share the backend; closing it closes them all.
	if err := db.backend.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

func (db *Database) DocumentRepository() storage.DocumentRepository {
	return db.docRepo
}

func (db *Database) ChunkRepository() storage.ChunkRepository {
	return db.chunks
}

func (db *Database) LedgerRepository() storage.LedgerRepository {
	return db.ledger
}

func (db *Database) Registry() *core.Registry {
	return db.registry
}

func (db *Database) Provider() ai.Provider {
	return db.provider
}

func (db *Database) NewScheduler(connectors []sources.Connector, opts ...ingestion.Option) (*ingestion.Scheduler, error) {
	return ingestion.NewScheduler(db.docRepo, db.chunks, db.ledger, db.registry, db.provider.Embedder(), connectors, opts...)
}

func (db *Database) NewBackfiller(splitter *chunk.Splitter) (*ingestion.Backfiller, error) {
	return ingestion.NewBackfiller(db.docRepo, db.chunks, db.registry, db.provider.Embedder(), splitter)
}

func (db *Database) NewEngine(opts ...retrieval.Option) (*retrieval.Engine, error) {
	return retrieval.NewEngine(db.chunks, db.provider.Embedder(), opts...)
}

func (db *Database) NewComposer(opts ...report.Option) (*report.Composer, error) {
	return report.NewComposer(db.provider.Generator(), opts...)
}

// NewServer builds the prediction HTTP server on a fresh retrieval
// engine and composer.
func (db *Database) NewServer(engineOpts []retrieval.Option, composerOpts []report.Option, opts ...service.Option) (*service.Server, error) {
	engine, err := db.NewEngine(engineOpts...)
	if err != nil {
		return nil, err
	}
	composer, err := db.NewComposer(composerOpts...)
	if err != nil {
		return nil, err
	}
	return service.NewServer(db.registry, engine, composer, db.docRepo, db.ledger, opts...), nil
}

func (db *Database) NewExporter() (*export.Exporter, error) {
	return export.NewExporter(db.docRepo, db.chunks, db.registry, db.logger)
}

func (db *Database) NewTrainingExporter(engineOpts []retrieval.Option, composerOpts []report.Option) (*export.TrainingExporter, error) {
	engine, err := db.NewEngine(engineOpts...)
	if err != nil {
		return nil, err
	}
	composer, err := db.NewComposer(composerOpts...)
	if err != nil {
		return nil, err
	}
	return export.NewTrainingExporter(db.registry, engine, composer, db.logger)
}

// Package app wires the game-master runtime: storage, intake, AI
// collaborators, the action pipeline, and the health endpoint.
package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fableguard/fableguard/internal/catalog"
	"github.com/fableguard/fableguard/internal/intake"
	intakeredis "github.com/fableguard/fableguard/internal/intake/redis"
	"github.com/fableguard/fableguard/internal/memory"
	memoryqdrant "github.com/fableguard/fableguard/internal/memory/qdrant"
	"github.com/fableguard/fableguard/internal/narration"
	"github.com/fableguard/fableguard/internal/narration/openai"
	"github.com/fableguard/fableguard/internal/pipeline"
	platformgrpc "github.com/fableguard/fableguard/internal/platform/grpc"
	"github.com/fableguard/fableguard/internal/platform/timeouts"
	"github.com/fableguard/fableguard/internal/random"
	"github.com/fableguard/fableguard/internal/session"
	"github.com/fableguard/fableguard/internal/storage/sqlite"
	"github.com/fableguard/fableguard/internal/telemetry"
)

// RuntimeConfig controls runtime startup, dependencies, and pipeline
// behavior.
type RuntimeConfig struct {
	Port    int
	DBPath  string
	Workers int

	// CatalogPath points at a Lua world-content script. Empty uses a
	// built-in starter catalog.
	CatalogPath string

	// RedisAddr enables the Redis Streams intake. Empty falls back to
	// the in-process queue.
	RedisAddr string

	// OpenAIKey enables narration. Empty runs the pipeline without a
	// renderer; results still commit.
	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string

	// QdrantHost enables narrative memory retrieval. Requires OpenAIKey
	// for embeddings.
	QdrantHost       string
	QdrantPort       int
	QdrantVectorSize uint64

	// BootstrapWorld seeds a starter session on an empty database so a
	// fresh deployment is playable. Empty disables seeding.
	BootstrapWorld string
	BootstrapSeed  int64

	UpstreamTimeout time.Duration
}

const (
	defaultPort       = 8090
	defaultDBPath     = "data/gm.db"
	defaultWorkers    = 4
	defaultVectorSize = 1536
	defaultQdrantPort = 6334
)

// Run starts the runtime and blocks until the context is canceled.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultDBPath
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = timeouts.Upstream
	}
	if cfg.QdrantPort <= 0 {
		cfg.QdrantPort = defaultQdrantPort
	}
	if cfg.QdrantVectorSize == 0 {
		cfg.QdrantVectorSize = defaultVectorSize
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create storage dir: %w", err)
		}
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open sqlite store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close sqlite store: %v", closeErr)
		}
	}()

	cat, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	log.Printf("catalog %s loaded with %d item types", cat.Version(), cat.Len())

	queue, err := openQueue(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open intake queue: %w", err)
	}
	defer func() {
		if closeErr := queue.Close(); closeErr != nil {
			log.Printf("close intake queue: %v", closeErr)
		}
	}()

	opts := []pipeline.ProcessorOption{
		pipeline.WithEmitter(telemetry.NewEmitter(store)),
		pipeline.WithUpstreamTimeout(cfg.UpstreamTimeout),
	}

	if strings.TrimSpace(cfg.OpenAIKey) != "" {
		var clientOpts []openai.Option
		if cfg.OpenAIModel != "" {
			clientOpts = append(clientOpts, openai.WithModel(cfg.OpenAIModel))
		}
		aiClient, err := openai.New(cfg.OpenAIKey, cfg.OpenAIBaseURL, clientOpts...)
		if err != nil {
			return fmt.Errorf("build openai client: %w", err)
		}
		opts = append(opts, pipeline.WithRenderer(aiClient))

		if strings.TrimSpace(cfg.QdrantHost) != "" {
			memories, err := memoryqdrant.New(ctx, cfg.QdrantHost, cfg.QdrantPort, aiClient, cfg.QdrantVectorSize)
			if err != nil {
				return fmt.Errorf("connect qdrant: %w", err)
			}
			defer func() {
				if closeErr := memories.Close(); closeErr != nil {
					log.Printf("close qdrant store: %v", closeErr)
				}
			}()
			opts = append(opts, pipeline.WithMemoryStore(memories))
		}
	} else {
		log.Printf("no openai key configured, narrating from templates")
		opts = append(opts,
			pipeline.WithRenderer(narration.TemplateRenderer{}),
			pipeline.WithMemoryStore(memory.NoopStore{}))
	}

	if err := bootstrapSession(ctx, store, cfg); err != nil {
		return fmt.Errorf("bootstrap session: %w", err)
	}

	processor := pipeline.NewProcessor(store, store, cat, opts...)
	pool := pipeline.NewPool(queue, processor, cfg.Workers)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", cfg.Port, err)
	}
	defer listener.Close()

	grpcServer, healthServer := platformgrpc.NewHealthServer("gm.runtime")

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()
	defer func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		<-serveErr
	}()

	log.Printf("gm server listening at %v with %d workers", listener.Addr(), cfg.Workers)
	return pool.Run(ctx)
}

// loadCatalog loads the Lua world-content script, or the built-in
// starter catalog when no script is configured.
func loadCatalog(path string) (*catalog.Catalog, error) {
	if strings.TrimSpace(path) != "" {
		return catalog.LoadFile(path)
	}
	return catalog.New("builtin-v1", []catalog.ItemType{
		{ID: "iron_sword", Name: "Iron Sword", Category: "weapon", Equippable: true, DamageDie: 6},
		{ID: "oak_staff", Name: "Oak Staff", Category: "weapon", Equippable: true, DamageDie: 6},
		{ID: "healing_draught", Name: "Healing Draught", Category: "consumable", Usable: true, HealAmount: 8, StackLimit: 5},
		{ID: "torch", Name: "Torch", Category: "misc", Usable: true},
	})
}

func openQueue(ctx context.Context, cfg RuntimeConfig) (intake.Queue, error) {
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		return intakeredis.New(ctx, cfg.RedisAddr)
	}
	log.Printf("no redis address configured, using in-process intake queue")
	return intake.NewMemoryQueue(64), nil
}

// bootstrapSession seeds one starter session on an empty database.
func bootstrapSession(ctx context.Context, store *sqlite.Store, cfg RuntimeConfig) error {
	if strings.TrimSpace(cfg.BootstrapWorld) == "" {
		return nil
	}
	ids, err := store.ListSessions(ctx)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		return nil
	}

	seed := cfg.BootstrapSeed
	if seed == 0 {
		if seed, err = random.NewSeed(); err != nil {
			return err
		}
	}

	sess, err := session.Create(session.CreateInput{
		WorldID: cfg.BootstrapWorld,
		Seed:    seed,
		Characters: []session.Character{
			{
				ID:         "pc-wanderer",
				Name:       "The Wanderer",
				Controller: session.ControllerPlayer,
				Attributes: map[session.Attribute]int{
					session.AttrStrength: 12,
					session.AttrAgility:  14,
					session.AttrWisdom:   10,
				},
				Level:     1,
				Health:    20,
				MaxHealth: 20,
				Inventory: session.Inventory{Items: []session.Item{
					{ID: "pc-wanderer:iron_sword", TypeID: "iron_sword", Quantity: 1, Equipped: true},
					{ID: "pc-wanderer:healing_draught", TypeID: "healing_draught", Quantity: 2},
				}},
			},
			{
				ID:         "npc-marsh-wolf",
				Name:       "Marsh Wolf",
				Controller: session.ControllerNPC,
				Hostile:    true,
				Attributes: map[session.Attribute]int{
					session.AttrStrength: 11,
					session.AttrAgility:  12,
				},
				Level:     1,
				Health:    12,
				MaxHealth: 12,
			},
		},
	}, time.Now, nil)
	if err != nil {
		return err
	}
	sess.Quest = session.QuestState{
		ActiveQuestID: "clear-the-marsh",
		Title:         "Clear the Marsh Road",
		Objectives: []session.Objective{
			{Description: "Drive off the marsh wolf"},
		},
		Rewards: session.Rewards{XP: 150, Currency: 25, ItemIDs: []string{"healing_draught"}},
	}
	if err := store.PutSession(ctx, sess); err != nil {
		return err
	}
	log.Printf("seeded starter session %s in world %s", sess.ID, sess.WorldID)
	return nil
}

package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"study-planner/internal/models"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
)

const (
	collectionPrefix = "syllabus."
	positionKey      = "position"
	sourceKey        = "source"
)

var errNoEmbedFunc = errors.New("chunks must be embedded before indexing")

// noEmbed stops chromem from falling back to its default OpenAI embedder.
func noEmbed(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedFunc
}

// VectorDBManager keeps one chromem collection per source. Every rebuild goes into a new
// generation and the current pointer moves only once the generation is complete.
type VectorDBManager struct {
	db            *chromem.DB
	dbPath        string
	compress      bool
	encryptionKey string

	mu      sync.RWMutex
	current map[string]*chromem.Collection
	gens    map[string]int
}

// NewVectorDBManager opens the persistent DB at dbPath, or an in-memory DB when inMemory is set.
func NewVectorDBManager(dbPath string, inMemory, compress bool, encryptionKey string) (*VectorDBManager, error) {
	if encryptionKey != "" && len(encryptionKey) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(encryptionKey))
	}
	var db *chromem.DB
	if inMemory {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(dbPath, compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %v", err)
		}
	}

	m := &VectorDBManager{
		db:            db,
		dbPath:        dbPath,
		compress:      compress,
		encryptionKey: encryptionKey,
	}
	m.reload()
	return m, nil
}

// reload rebuilds the current pointers from the collections on disk, keeping the newest
// generation per source and dropping leftovers from interrupted rebuilds.
func (m *VectorDBManager) reload() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = make(map[string]*chromem.Collection)
	m.gens = make(map[string]int)
	stale := []string{}
	for name, c := range m.db.ListCollections() {
		source, gen, size, ok := parseName(name)
		if !ok {
			if strings.HasPrefix(name, collectionPrefix) {
				stale = append(stale, name)
			}
			continue
		}
		if gen > m.gens[source] {
			m.gens[source] = gen
		}
		if c.Count() != size {
			// interrupted build
			stale = append(stale, name)
			continue
		}
		if prev, seen := m.current[source]; seen {
			_, prevGen, _, _ := parseName(prev.Name)
			if gen < prevGen {
				stale = append(stale, name)
				continue
			}
			stale = append(stale, prev.Name)
		}
		m.current[source] = c
	}
	for _, name := range stale {
		if err := m.db.DeleteCollection(name); err != nil {
			log.Warn().Err(err).Str("collection", name).Msg("failed to drop stale collection")
		}
	}
	log.Debug().Int("sources", len(m.current)).Msg("vector index loaded")
}

// collectionName encodes the expected chunk count so a reload can tell finished
// generations from interrupted ones.
func collectionName(source string, gen, size int) string {
	return fmt.Sprintf("%s%s.%d.%d", collectionPrefix, source, gen, size)
}

// parseName reads gen and size from the right so source may itself contain dots.
func parseName(name string) (source string, gen, size int, ok bool) {
	if !strings.HasPrefix(name, collectionPrefix) {
		return "", 0, 0, false
	}
	rest := strings.TrimPrefix(name, collectionPrefix)
	i := strings.LastIndex(rest, ".")
	if i < 0 {
		return "", 0, 0, false
	}
	size, err := strconv.Atoi(rest[i+1:])
	if err != nil {
		return "", 0, 0, false
	}
	rest = rest[:i]
	if i = strings.LastIndex(rest, "."); i <= 0 {
		return "", 0, 0, false
	}
	gen, err = strconv.Atoi(rest[i+1:])
	if err != nil {
		return "", 0, 0, false
	}
	return rest[:i], gen, size, true
}

func chunkID(position int) string {
	return fmt.Sprintf("chunk-%05d", position)
}

// Replace builds a fresh generation from chunks and swaps it in for source.
func (m *VectorDBManager) Replace(ctx context.Context, source string, chunks []models.IndexedChunk) error {
	m.mu.Lock()
	gen := m.gens[source] + 1
	m.gens[source] = gen
	m.mu.Unlock()

	name := collectionName(source, gen, len(chunks))
	c, err := m.db.CreateCollection(name, map[string]string{sourceKey: source}, noEmbed)
	if err != nil {
		return fmt.Errorf("failed to create collection: %v", err)
	}

	docs := make([]chromem.Document, 0, len(chunks))
	for _, ch := range chunks {
		docs = append(docs, chromem.Document{
			ID:        chunkID(ch.Position),
			Content:   ch.Text,
			Metadata:  map[string]string{positionKey: strconv.Itoa(ch.Position), sourceKey: source},
			Embedding: ch.Vector,
		})
	}
	if len(docs) > 0 {
		if err := c.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			if delErr := m.db.DeleteCollection(name); delErr != nil {
				log.Warn().Err(delErr).Str("collection", name).Msg("failed to drop partial collection")
			}
			return fmt.Errorf("failed to add documents: %v", err)
		}
	}

	m.mu.Lock()
	old := m.current[source]
	m.current[source] = c
	m.mu.Unlock()

	if old != nil {
		if err := m.db.DeleteCollection(old.Name); err != nil {
			log.Warn().Err(err).Str("collection", old.Name).Msg("failed to drop previous generation")
		}
	}
	log.Debug().Str("source", source).Int("generation", gen).Int("chunks", len(docs)).Msg("index swapped")
	return nil
}

func (m *VectorDBManager) collection(source string) (*chromem.Collection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.current[source]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrIndexNotFound, source)
	}
	return c, nil
}

// Search ranks every chunk of source by cosine similarity and returns the best k.
// Equal scores keep chunk order.
func (m *VectorDBManager) Search(ctx context.Context, source string, vector []float32, k int) ([]models.ScoredChunk, error) {
	c, err := m.collection(source)
	if err != nil {
		return nil, err
	}
	n := c.Count()
	if n == 0 || k <= 0 {
		return []models.ScoredChunk{}, nil
	}

	// rank the whole collection so ties at the cut are decided by position
	results, err := c.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %v", err)
	}

	hits := make([]models.ScoredChunk, 0, len(results))
	for _, r := range results {
		pos, _ := strconv.Atoi(r.Metadata[positionKey])
		hits = append(hits, models.ScoredChunk{
			Chunk: models.Chunk{Text: r.Content, Position: pos},
			Score: r.Similarity,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Position < hits[j].Position
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// All returns every chunk of source in position order.
func (m *VectorDBManager) All(ctx context.Context, source string) ([]models.Chunk, error) {
	c, err := m.collection(source)
	if err != nil {
		return nil, err
	}
	n := c.Count()
	chunks := make([]models.Chunk, 0, n)
	for i := 0; i < n; i++ {
		doc, err := c.GetByID(ctx, chunkID(i))
		if err != nil {
			return nil, fmt.Errorf("failed to read chunk %d: %v", i, err)
		}
		chunks = append(chunks, models.Chunk{Text: doc.Content, Position: i})
	}
	return chunks, nil
}

// Sources lists the sources that currently have an index.
func (m *VectorDBManager) Sources() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.current))
	for s := range m.current {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Export writes the current generation of every source to filePath.
func (m *VectorDBManager) Export(ctx context.Context, filePath string) error {
	if filePath == "" {
		return fmt.Errorf("file path is required")
	}
	m.mu.RLock()
	names := make([]string, 0, len(m.current))
	for _, c := range m.current {
		names = append(names, c.Name)
	}
	m.mu.RUnlock()
	if len(names) == 0 {
		return fmt.Errorf("nothing to export: %w", models.ErrIndexNotFound)
	}

	log.Debug().Strs("collections", names).Str("file", filePath).Bool("compress", m.compress).Msg("exporting index")
	if err := m.db.ExportToFile(filePath, m.compress, m.encryptionKey, names...); err != nil {
		return fmt.Errorf("failed to export database: %v", err)
	}
	return nil
}

// Import loads collections from an export and makes their newest generations current.
func (m *VectorDBManager) Import(ctx context.Context, filePath string) error {
	if err := m.db.ImportFromFile(filePath, m.encryptionKey); err != nil {
		return fmt.Errorf("failed to import database: %v", err)
	}
	m.reload()
	return nil
}

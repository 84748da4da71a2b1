package models

// Chunk is one contiguous span of the syllabus. Position is its order in the source text.
type Chunk struct {
	Text     string
	Position int
}

// IndexedChunk pairs a chunk with its embedding.
type IndexedChunk struct {
	Chunk
	Vector []float32
}

// ScoredChunk is a retrieval hit with its cosine similarity.
type ScoredChunk struct {
	Chunk
	Score float32
}

// Texts returns the chunk bodies in order.
func Texts[T interface{ GetText() string }](chunks []T) []string {
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, c.GetText())
	}
	return out
}

func (c Chunk) GetText() string { return c.Text }

type Role string

const (
	RoleStudent Role = "student"
	RoleTutor   Role = "tutor"
)

func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTutor
}

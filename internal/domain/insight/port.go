package insight

import "context"

// Client produces a JSON narration for a subject.
type Client interface {
	Narrate(ctx context.Context, s Subject) (string, error)
}

// Repository port for persisting and querying insights
type Repository interface {
	Save(ctx context.Context, in *Insight) error
	LatestByAnalysis(ctx context.Context, analysisID string) (*Insight, error)
	Paginate(ctx context.Context, owner string, page, pageSize int) ([]*Insight, error)
}

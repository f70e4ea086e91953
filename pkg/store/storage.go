// Package store defines the persistence contracts of the resolution core.
// The core only needs lookup and append semantics; pkg/store/memory and
// pkg/store/pgx implement them.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/faro-watch/faro/backend/pkg/common"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
)

// ArticleStore keeps submitted articles and their processing mark.
type ArticleStore interface {
	SaveArticle(ctx context.Context, article common.Article) error
	GetArticle(ctx context.Context, id string) (common.Article, error)
	ListUnprocessed(ctx context.Context, limit int) ([]common.Article, error)
	MarkProcessed(ctx context.Context, id string, at time.Time) error
}

// MentionStore is the append-only staging area for extracted mentions and
// relations. AppendMention and AppendRelation insert only when the id is
// new and report whether they did.
type MentionStore interface {
	AppendMention(ctx context.Context, mention common.Mention) (bool, error)
	GetMention(ctx context.Context, id string) (common.Mention, error)
	UpdateMentionText(ctx context.Context, id, rawText, normalizedText string) error
	SetMentionNode(ctx context.Context, id, nodeID string) error
	ListMentionsByType(ctx context.Context, t common.MentionType) ([]common.Mention, error)
	ListMentionsByArticle(ctx context.Context, articleID string) ([]common.Mention, error)

	AppendRelation(ctx context.Context, relation common.RelationMention) (bool, error)
	ListRelationsByArticle(ctx context.Context, articleID string) ([]common.RelationMention, error)
	ListRelationsByMention(ctx context.Context, mentionID string) ([]common.RelationMention, error)
}

// GraphStore persists nodes and edges. CreateNode fails with ErrConflict
// when (type, name key) is taken, CreateEdge when (src, dst, type) is.
type GraphStore interface {
	FindNodeByKey(ctx context.Context, t common.MentionType, nameKey string) (common.GraphNode, error)
	GetNode(ctx context.Context, id string) (common.GraphNode, error)
	CreateNode(ctx context.Context, node common.GraphNode) error
	UpdateNode(ctx context.Context, node common.GraphNode) error
	ListNodes(ctx context.Context) ([]common.GraphNode, error)

	FindEdge(ctx context.Context, srcID, dstID, edgeType string) (common.GraphEdge, error)
	GetEdge(ctx context.Context, id string) (common.GraphEdge, error)
	CreateEdge(ctx context.Context, edge common.GraphEdge) error
	UpdateEdge(ctx context.Context, edge common.GraphEdge) error
	ListEdges(ctx context.Context) ([]common.GraphEdge, error)
}

// TransitionFunc mutates a queue item in place. Returning an error aborts
// the transition and leaves the stored item untouched.
type TransitionFunc func(item *common.ReviewQueueItem) error

// QueueStore keeps the review queue. Transition and TransitionMany apply fn
// atomically: no other transition of the same items interleaves.
type QueueStore interface {
	CreateItem(ctx context.Context, item common.ReviewQueueItem) error
	GetItem(ctx context.Context, mentionID string) (common.ReviewQueueItem, error)
	ListItems(ctx context.Context, status common.ReviewStatus) ([]common.ReviewQueueItem, error)
	Transition(ctx context.Context, mentionID string, fn TransitionFunc) (common.ReviewQueueItem, error)
	TransitionMany(ctx context.Context, mentionIDs []string, fn func(items []*common.ReviewQueueItem) error) ([]common.ReviewQueueItem, error)
}

// JobStore tracks queued article jobs.
type JobStore interface {
	CreateJob(ctx context.Context, job common.Job) error
	GetJob(ctx context.Context, id string) (common.Job, error)
	UpdateJob(ctx context.Context, id string, fn func(job *common.Job)) (common.Job, error)
}

// IdentityStore keeps the imported registry snapshot.
type IdentityStore interface {
	ReplaceIdentities(ctx context.Context, identities []common.Identity) error
	ListIdentities(ctx context.Context) ([]common.Identity, error)
}

// Store is the full persistence surface.
type Store interface {
	ArticleStore
	MentionStore
	GraphStore
	QueueStore
	JobStore
	IdentityStore
}

package store

import "time"

type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	ProfileImage string
	Bio          string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Author is the public projection of a User attached to threads.
type Author struct {
	ID           string
	Name         string
	ProfileImage string
}

type Thread struct {
	ID               string
	UserID           string
	Title            string
	Tags             []string
	IsPublished      bool
	OriginalThreadID string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type Segment struct {
	ID        string
	ThreadID  string
	Content   string
	Order     int
	CreatedAt time.Time
}

type SegmentInput struct {
	Content string
	Order   int
}

type NewThread struct {
	ID          string
	UserID      string
	Title       string
	Tags        []string
	IsPublished bool
	Segments    []SegmentInput
}

type ReactionType string

const (
	ReactionMindBlown  ReactionType = "🤯"
	ReactionLightBulb  ReactionType = "💡"
	ReactionRelaxed    ReactionType = "😌"
	ReactionFire       ReactionType = "🔥"
	ReactionHeartHands ReactionType = "🫶"
)

// ReactionTypes lists the accepted reaction values in display order.
var ReactionTypes = []ReactionType{
	ReactionMindBlown,
	ReactionLightBulb,
	ReactionRelaxed,
	ReactionFire,
	ReactionHeartHands,
}

func (t ReactionType) Valid() bool {
	for _, candidate := range ReactionTypes {
		if t == candidate {
			return true
		}
	}
	return false
}

type Reaction struct {
	ID        string
	UserID    string
	SegmentID string
	Type      ReactionType
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ToggleAction reports what a toggle did to the underlying row.
type ToggleAction string

const (
	ActionAdded   ToggleAction = "added"
	ActionUpdated ToggleAction = "updated"
	ActionRemoved ToggleAction = "removed"
)

type ThreadSort string

const (
	SortNewest  ThreadSort = "newest"
	SortPopular ThreadSort = "popular"
	SortForked  ThreadSort = "forked"
)

type ThreadFilter struct {
	Tag  string
	Sort ThreadSort
	// Limit of zero means no limit.
	Limit  int
	Offset int
}

type ThreadSummary struct {
	Thread
	Author        Author
	Preview       *Segment
	BookmarkCount int
	ForkCount     int
}

type SegmentDetail struct {
	Segment
	Reactions []Reaction
}

type Lineage struct {
	ID         string
	Title      string
	AuthorID   string
	AuthorName string
}

type ThreadDetail struct {
	Thread
	Author   Author
	Segments []SegmentDetail
	Lineage  *Lineage
}

type Bookmark struct {
	ID        string
	UserID    string
	ThreadID  string
	CreatedAt time.Time
}

type BookmarkEntry struct {
	Bookmark
	Thread ThreadSummary
}

type Collection struct {
	ID          string
	UserID      string
	Name        string
	Description string
	IsPrivate   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type CollectionItem struct {
	ID           string
	CollectionID string
	ThreadID     string
	ThreadTitle  string
	AddedAt      time.Time
}

type CollectionWithItems struct {
	Collection
	Items []CollectionItem
}

type ThreadCount struct {
	ThreadID string
	Title    string
	Count    int
}

type MonthlyCount struct {
	Year  int
	Month time.Month
	Count int
}

type Analytics struct {
	TotalThreads  int
	TopReacted    []ThreadCount
	TopBookmarked []ThreadCount
	TopForked     []ThreadCount
	Activity      []MonthlyCount
}

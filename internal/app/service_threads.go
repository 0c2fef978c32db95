package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"wisdom/api/internal/export"
	"wisdom/api/internal/rbac"
	"wisdom/api/internal/storage"
	"wisdom/api/internal/store"
	"wisdom/api/internal/util"
)

const (
	maxTitleLength = 200
	maxTags        = 20
	relatedLimit   = 3
)

type SegmentInput struct {
	Content string `json:"content"`
	// Order defaults to the segment's position when omitted.
	Order *int `json:"order"`
}

type CreateThreadInput struct {
	Title       string         `json:"title"`
	Tags        []string       `json:"tags"`
	Segments    []SegmentInput `json:"segments"`
	IsPublished bool           `json:"isPublished"`
}

// CreateThread validates everything up front so a rejected request never touches the store.
func (s *Service) CreateThread(ctx context.Context, userID string, input CreateThreadInput) (store.Thread, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return store.Thread{}, validationError("Title and at least one segment are required", map[string]any{"field": "title"})
	}
	if len([]rune(title)) > maxTitleLength {
		return store.Thread{}, validationError(fmt.Sprintf("title must be at most %d characters", maxTitleLength), map[string]any{"field": "title"})
	}
	if len(input.Segments) == 0 {
		return store.Thread{}, validationError("Title and at least one segment are required", map[string]any{"field": "segments"})
	}

	tags := normalizeTags(input.Tags)
	if len(tags) > maxTags {
		return store.Thread{}, validationError(fmt.Sprintf("at most %d tags are allowed", maxTags), map[string]any{"field": "tags"})
	}

	seen := make(map[int]struct{}, len(input.Segments))
	segments := make([]store.SegmentInput, 0, len(input.Segments))
	for i, segment := range input.Segments {
		order := i
		if segment.Order != nil {
			order = *segment.Order
		}
		if order < 0 {
			return store.Thread{}, validationError("segment order must not be negative", map[string]any{"field": fmt.Sprintf("segments[%d].order", i)})
		}
		if _, dup := seen[order]; dup {
			return store.Thread{}, validationError("segment orders must be distinct", map[string]any{"field": fmt.Sprintf("segments[%d].order", i)})
		}
		seen[order] = struct{}{}
		segments = append(segments, store.SegmentInput{Content: segment.Content, Order: order})
	}

	thread, err := s.store.CreateThread(ctx, store.NewThread{
		ID:          util.NewUUID(),
		UserID:      userID,
		Title:       title,
		Tags:        tags,
		IsPublished: input.IsPublished,
		Segments:    segments,
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			return store.Thread{}, validationError("segment orders must be distinct", nil)
		case errors.Is(err, store.ErrInvalidReference):
			return store.Thread{}, unauthorizedError()
		default:
			return store.Thread{}, err
		}
	}
	return thread, nil
}

// normalizeTags trims, drops empties and removes duplicates while keeping order.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tag), "#"))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// ForkThread copies a published thread into a new draft owned by userID.
func (s *Service) ForkThread(ctx context.Context, userID, sourceID string) (store.Thread, error) {
	sourceID = strings.TrimSpace(sourceID)
	if sourceID == "" {
		return store.Thread{}, validationError("threadId is required", map[string]any{"field": "threadId"})
	}
	forked, err := s.store.ForkThread(ctx, util.NewUUID(), userID, sourceID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return store.Thread{}, notFoundError("Original thread")
		case errors.Is(err, store.ErrInvalidReference):
			return store.Thread{}, unauthorizedError()
		default:
			return store.Thread{}, err
		}
	}
	return forked, nil
}

// ThreadID strips anything after a ':' from a path id.
func ThreadID(raw string) string {
	id, _, _ := strings.Cut(strings.TrimSpace(raw), ":")
	return id
}

// GetThread returns the full projection. Drafts are only visible to their author.
func (s *Service) GetThread(ctx context.Context, viewerID, id string) (store.ThreadDetail, error) {
	return s.loadThreadDetail(ctx, viewerID, ThreadID(id), rbac.ActionRead)
}

// ListThreads lists published threads. An empty tag or "All" disables the filter.
const maxThreadPage = 100

func (s *Service) ListThreads(ctx context.Context, tag, sort string, limit, offset int) ([]store.ThreadSummary, error) {
	threadSort, err := parseSort(sort)
	if err != nil {
		return nil, err
	}
	tag = strings.TrimSpace(tag)
	if strings.EqualFold(tag, "all") {
		tag = ""
	}
	if limit < 0 || offset < 0 {
		return nil, validationError("limit and offset must not be negative", nil)
	}
	// Without a limit every published thread is returned; an explicit page is capped.
	if limit > maxThreadPage {
		limit = maxThreadPage
	}
	return s.store.ListThreads(ctx, store.ThreadFilter{Tag: tag, Sort: threadSort, Limit: limit, Offset: offset})
}

func parseSort(sort string) (store.ThreadSort, error) {
	switch store.ThreadSort(strings.TrimSpace(sort)) {
	case "", store.SortNewest:
		return store.SortNewest, nil
	case store.SortPopular:
		return store.SortPopular, nil
	case store.SortForked:
		return store.SortForked, nil
	default:
		return "", validationError("sort must be one of newest, popular, forked", map[string]any{"field": "sort"})
	}
}

func (s *Service) ListForks(ctx context.Context, viewerID, id string) ([]store.ThreadSummary, error) {
	thread, err := s.loadThread(ctx, viewerID, ThreadID(id), rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	return s.store.ListForks(ctx, thread.ID)
}

func (s *Service) ListRelated(ctx context.Context, viewerID, id string) ([]store.ThreadSummary, error) {
	thread, err := s.loadThread(ctx, viewerID, ThreadID(id), rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	return s.store.ListRelated(ctx, thread.ID, thread.Tags, relatedLimit)
}

// ListMyThreads includes drafts.
func (s *Service) ListMyThreads(ctx context.Context, userID string) ([]store.ThreadSummary, error) {
	return s.store.ListThreadsByUser(ctx, userID)
}

// SetPublished lets the author publish or unpublish. Forks of an unpublished
// thread keep their lineage.
func (s *Service) SetPublished(ctx context.Context, userID, id string, published bool) (store.Thread, error) {
	thread, err := s.loadThread(ctx, userID, ThreadID(id), rbac.ActionPublish)
	if err != nil {
		return store.Thread{}, err
	}
	updated, err := s.store.SetThreadPublished(ctx, thread.ID, published)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNoSegments):
			return store.Thread{}, validationError("a thread needs at least one segment to be published", nil)
		case errors.Is(err, store.ErrNotFound):
			return store.Thread{}, notFoundError("Thread")
		default:
			return store.Thread{}, err
		}
	}
	return updated, nil
}

func (s *Service) DeleteThread(ctx context.Context, userID, id string) error {
	thread, err := s.loadThread(ctx, userID, ThreadID(id), rbac.ActionDelete)
	if err != nil {
		return err
	}
	if err := s.store.DeleteThread(ctx, thread.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFoundError("Thread")
		}
		return err
	}
	return nil
}

// ExportThread renders a thread the viewer can read as HTML or PDF.
func (s *Service) ExportThread(ctx context.Context, viewerID, id, format string) (*export.Result, error) {
	exportFormat, err := export.ParseFormat(strings.ToLower(strings.TrimSpace(format)))
	if err != nil {
		return nil, validationError("format must be html or pdf", map[string]any{"field": "format"})
	}
	detail, err := s.loadThreadDetail(ctx, viewerID, ThreadID(id), rbac.ActionExport)
	if err != nil {
		return nil, err
	}
	result, err := s.exporter.Export(ctx, exportThread(detail), exportFormat)
	if err != nil {
		if errors.Is(err, export.ErrPDFDependencyMissing) {
			return nil, unavailableError("EXPORT_UNAVAILABLE", "PDF export is not available on this server")
		}
		return nil, fmt.Errorf("export thread: %w", err)
	}
	return result, nil
}

// ArchiveExport renders the thread and stores the file in the export bucket.
func (s *Service) ArchiveExport(ctx context.Context, userID, id, format string) (storage.Object, error) {
	if s.archive == nil {
		return storage.Object{}, unavailableError("STORAGE_UNAVAILABLE", "Export archiving is not configured")
	}
	result, err := s.ExportThread(ctx, userID, id, format)
	if err != nil {
		return storage.Object{}, err
	}
	ext := strings.TrimPrefix(result.Filename[strings.LastIndex(result.Filename, "."):], ".")
	key := storage.ObjectKey(ThreadID(id), ext, s.now())
	object, err := s.archive.Put(ctx, key, result.MimeType, result.Data)
	if err != nil {
		return storage.Object{}, fmt.Errorf("archive export: %w", err)
	}
	return object, nil
}

func exportThread(detail store.ThreadDetail) export.Thread {
	thread := export.Thread{
		ID:          detail.ID,
		Title:       detail.Title,
		AuthorName:  detail.Author.Name,
		Tags:        detail.Tags,
		IsPublished: detail.IsPublished,
		CreatedAt:   detail.CreatedAt,
		UpdatedAt:   detail.UpdatedAt,
	}
	if detail.Lineage != nil {
		thread.OriginalTitle = detail.Lineage.Title
	}
	for _, segment := range detail.Segments {
		thread.Segments = append(thread.Segments, export.Segment{
			Order:     segment.Order,
			Content:   segment.Content,
			Reactions: reactionTally(segment.Reactions),
		})
	}
	return thread
}

// reactionTally counts reactions per type with every known type present.
func reactionTally(reactions []store.Reaction) map[string]int {
	counts := make(map[string]int, len(store.ReactionTypes))
	for _, reactionType := range store.ReactionTypes {
		counts[string(reactionType)] = 0
	}
	for _, reaction := range reactions {
		counts[string(reaction.Type)]++
	}
	return counts
}

package app

import (
	"fmt"
	"time"

	"wisdom/api/internal/store"
)

// JSON projections. Password hashes never leave this package.

func userJSON(user store.User) map[string]any {
	return map[string]any{
		"id":           user.ID,
		"email":        user.Email,
		"name":         user.Name,
		"profileImage": nullable(user.ProfileImage),
		"bio":          nullable(user.Bio),
		"createdAt":    user.CreatedAt,
	}
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func authorJSON(author store.Author) map[string]any {
	return map[string]any{
		"id":           author.ID,
		"name":         author.Name,
		"profileImage": nullable(author.ProfileImage),
	}
}

func threadJSON(thread store.Thread) map[string]any {
	tags := thread.Tags
	if tags == nil {
		tags = []string{}
	}
	return map[string]any{
		"id":               thread.ID,
		"userId":           thread.UserID,
		"title":            thread.Title,
		"tags":             tags,
		"isPublished":      thread.IsPublished,
		"originalThreadId": nullable(thread.OriginalThreadID),
		"createdAt":        thread.CreatedAt,
		"updatedAt":        thread.UpdatedAt,
	}
}

func threadSummaryJSON(summary store.ThreadSummary) map[string]any {
	payload := threadJSON(summary.Thread)
	payload["author"] = authorJSON(summary.Author)
	payload["bookmarkCount"] = summary.BookmarkCount
	payload["forkCount"] = summary.ForkCount
	segments := []map[string]any{}
	if summary.Preview != nil {
		segments = append(segments, map[string]any{
			"id":      summary.Preview.ID,
			"content": summary.Preview.Content,
			"order":   summary.Preview.Order,
		})
	}
	payload["segments"] = segments
	return payload
}

func threadSummariesJSON(summaries []store.ThreadSummary) []map[string]any {
	out := make([]map[string]any, 0, len(summaries))
	for _, summary := range summaries {
		out = append(out, threadSummaryJSON(summary))
	}
	return out
}

func reactionJSON(reaction store.Reaction) map[string]any {
	return map[string]any{
		"id":        reaction.ID,
		"userId":    reaction.UserID,
		"segmentId": reaction.SegmentID,
		"type":      string(reaction.Type),
	}
}

func threadDetailJSON(detail store.ThreadDetail) map[string]any {
	payload := threadJSON(detail.Thread)
	payload["author"] = authorJSON(detail.Author)

	totals := reactionTally(nil)
	segments := make([]map[string]any, 0, len(detail.Segments))
	for _, segment := range detail.Segments {
		reactions := make([]map[string]any, 0, len(segment.Reactions))
		for _, reaction := range segment.Reactions {
			reactions = append(reactions, map[string]any{
				"id":     reaction.ID,
				"userId": reaction.UserID,
				"type":   string(reaction.Type),
			})
		}
		counts := reactionTally(segment.Reactions)
		for reactionType, count := range counts {
			totals[reactionType] += count
		}
		segments = append(segments, map[string]any{
			"id":             segment.ID,
			"content":        segment.Content,
			"order":          segment.Order,
			"reactions":      reactions,
			"reactionCounts": counts,
		})
	}
	payload["segments"] = segments
	payload["reactionCounts"] = totals

	if detail.Lineage != nil {
		payload["originalThread"] = map[string]any{
			"id":     detail.Lineage.ID,
			"title":  detail.Lineage.Title,
			"userId": detail.Lineage.AuthorID,
			"author": map[string]any{"id": detail.Lineage.AuthorID, "name": detail.Lineage.AuthorName},
		}
	} else {
		payload["originalThread"] = nil
	}
	return payload
}

func bookmarkEntriesJSON(entries []store.BookmarkEntry) []map[string]any {
	out := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		out = append(out, map[string]any{
			"id":        entry.ID,
			"userId":    entry.UserID,
			"threadId":  entry.ThreadID,
			"createdAt": entry.CreatedAt,
			"thread":    threadSummaryJSON(entry.Thread),
		})
	}
	return out
}

func collectionJSON(collection store.Collection) map[string]any {
	return map[string]any{
		"id":          collection.ID,
		"userId":      collection.UserID,
		"name":        collection.Name,
		"description": nullable(collection.Description),
		"isPrivate":   collection.IsPrivate,
		"createdAt":   collection.CreatedAt,
		"updatedAt":   collection.UpdatedAt,
	}
}

func collectionItemJSON(item store.CollectionItem) map[string]any {
	return map[string]any{
		"id":           item.ID,
		"collectionId": item.CollectionID,
		"threadId":     item.ThreadID,
		"addedAt":      item.AddedAt,
		"thread":       map[string]any{"id": item.ThreadID, "title": item.ThreadTitle},
	}
}

func collectionWithItemsJSON(collection store.CollectionWithItems) map[string]any {
	payload := collectionJSON(collection.Collection)
	items := make([]map[string]any, 0, len(collection.Items))
	for _, item := range collection.Items {
		items = append(items, collectionItemJSON(item))
	}
	payload["items"] = items
	return payload
}

func threadCountsJSON(counts []store.ThreadCount) []map[string]any {
	out := make([]map[string]any, 0, len(counts))
	for _, count := range counts {
		out = append(out, map[string]any{"threadId": count.ThreadID, "title": count.Title, "count": count.Count})
	}
	return out
}

func analyticsJSON(analytics store.Analytics) map[string]any {
	activity := make([]map[string]any, 0, len(analytics.Activity))
	for _, month := range analytics.Activity {
		activity = append(activity, map[string]any{
			"month": fmt.Sprintf("%04d-%02d", month.Year, int(month.Month)),
			"label": time.Date(month.Year, month.Month, 1, 0, 0, 0, 0, time.UTC).Format("Jan 2006"),
			"count": month.Count,
		})
	}
	return map[string]any{
		"totalThreads":  analytics.TotalThreads,
		"topReacted":    threadCountsJSON(analytics.TopReacted),
		"topBookmarked": threadCountsJSON(analytics.TopBookmarked),
		"topForked":     threadCountsJSON(analytics.TopForked),
		"activity":      activity,
	}
}

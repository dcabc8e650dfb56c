package llm

import (
	"context"
	"sort"
)

// ModelInfo is a remote model descriptor enriched with locally known static
// metadata.
type ModelInfo struct {
	ID              string
	Created         int64
	ContextWindow   int
	KnowledgeCutoff string
	SupportsImages  bool
}

type modelMeta struct {
	contextWindow   int
	knowledgeCutoff string
	supportsImages  bool
}

// Static metadata keyed by model id. Ids the remote endpoint reports that
// are missing here surface as UnknownModelError rather than invented values.
var modelMetadata = map[string]modelMeta{
	"gpt-3.5-turbo":       {16385, "2021-09", false},
	"gpt-3.5-turbo-16k":   {16385, "2021-09", false},
	"gpt-4":               {8192, "2021-09", false},
	"gpt-4-32k":           {32768, "2021-09", false},
	"gpt-4-turbo":         {128000, "2023-12", true},
	"gpt-4-turbo-preview": {128000, "2023-04", false},
	"gpt-4o":              {128000, "2023-10", true},
	"gpt-4o-mini":         {128000, "2023-10", true},
}

// ListModels fetches the remote model list and enriches each entry from the
// static metadata table. An id without a table entry fails the whole listing
// with UnknownModelError; callers may skip enrichment instead by catching it.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	list, err := c.api.ListModels(ctx)
	if err != nil {
		return nil, wrapAPIError(err)
	}

	models := make([]ModelInfo, 0, len(list.Models))
	for _, m := range list.Models {
		meta, ok := modelMetadata[m.ID]
		if !ok {
			return nil, &UnknownModelError{ID: m.ID}
		}
		models = append(models, ModelInfo{
			ID:              m.ID,
			Created:         m.CreatedAt,
			ContextWindow:   meta.contextWindow,
			KnowledgeCutoff: meta.knowledgeCutoff,
			SupportsImages:  meta.supportsImages,
		})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// KnownModelIDs returns the ids present in the static metadata table, for
// offline listings.
func KnownModelIDs() []string {
	ids := make([]string, 0, len(modelMetadata))
	for id := range modelMetadata {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

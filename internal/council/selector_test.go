package council_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/symposium/internal/council"
	"github.com/davidbz/symposium/internal/domain"
)

func TestSelector_Select(t *testing.T) {
	ctx := context.Background()
	catalog := mustCatalog(t)

	newSelector := func(t *testing.T, content string, err error) *council.Selector {
		t.Helper()
		reg := newTestRegistry(t,
			func(_ context.Context, _ *domain.CompletionRequest) (*domain.CompletionResponse, error) {
				if err != nil {
					return nil, err
				}
				return &domain.CompletionResponse{Content: content}, nil
			}, nil)
		return council.NewSelector(reg, catalog, testCouncilConfig())
	}

	t.Run("parses a catalog selection", func(t *testing.T) {
		sel := newSelector(t, selectionJSON("stoicism and evidence", "stoic", "empiricist"), nil)

		got := sel.Select(ctx, "should I quit my job?", nil)
		require.Len(t, got.Picks, 2)
		require.Equal(t, "stoic", got.Picks[0].Spec.Key)
		require.Equal(t, "empiricist", got.Picks[1].Spec.Key)
		require.Equal(t, "stoicism and evidence", got.Rationale)
	})

	t.Run("accepts fenced JSON", func(t *testing.T) {
		fenced := "```json\n" + selectionJSON("r", "strategist") + "\n```"
		sel := newSelector(t, fenced, nil)

		got := sel.Select(ctx, "q", nil)
		require.Len(t, got.Picks, 1)
		require.Equal(t, "strategist", got.Picks[0].Spec.Key)
	})

	t.Run("carries per-voice sub-queries", func(t *testing.T) {
		content := `{"voices":[
			{"source":"catalog","key":"stoic","query":"What can the asker actually control here?"},
			{"source":"catalog","key":"empiricist"}],"rationale":"r"}`
		sel := newSelector(t, content, nil)

		got := sel.Select(ctx, "should I quit my job?", nil)
		require.Len(t, got.Picks, 2)
		require.Equal(t, "What can the asker actually control here?", got.Picks[0].SubQuery)
		require.Empty(t, got.Picks[1].SubQuery)
	})

	t.Run("accepts ad hoc voices", func(t *testing.T) {
		content := `{"voices":[{"source":"adhoc","name":"The Chef","description":"cooks"}],"rationale":"food question"}`
		sel := newSelector(t, content, nil)

		got := sel.Select(ctx, "how do I sharpen a knife?", nil)
		require.Len(t, got.Picks, 1)
		require.Equal(t, domain.VoiceSourceAdHoc, got.Picks[0].Spec.Source)
		require.Equal(t, "The Chef", got.Picks[0].Spec.Name)
	})

	t.Run("deduplicates repeated picks", func(t *testing.T) {
		sel := newSelector(t, selectionJSON("r", "stoic", "stoic", "empiricist"), nil)

		got := sel.Select(ctx, "q", nil)
		require.Len(t, got.Picks, 2)
	})

	t.Run("falls back on unparseable output", func(t *testing.T) {
		sel := newSelector(t, "I think the stoic would be great here!", nil)

		got := sel.Select(ctx, "q", nil)
		require.Len(t, got.Picks, 1)
		require.Equal(t, "generalist", got.Picks[0].Spec.Key)
		require.Contains(t, got.Rationale, "fallback selection due to error:")
	})

	t.Run("falls back on provider error", func(t *testing.T) {
		sel := newSelector(t, "", errors.New("upstream down"))

		got := sel.Select(ctx, "q", nil)
		require.Len(t, got.Picks, 1)
		require.Equal(t, "generalist", got.Picks[0].Spec.Key)
		require.Contains(t, got.Rationale, "upstream down")
	})

	t.Run("falls back on unknown catalog key", func(t *testing.T) {
		sel := newSelector(t, selectionJSON("r", "stoic", "alchemist"), nil)

		got := sel.Select(ctx, "q", nil)
		require.Equal(t, "generalist", got.Picks[0].Spec.Key)
	})

	t.Run("rejects an explicit fallback pick", func(t *testing.T) {
		sel := newSelector(t, selectionJSON("r", "generalist"), nil)

		got := sel.Select(ctx, "q", nil)
		require.Len(t, got.Picks, 1)
		require.Equal(t, "generalist", got.Picks[0].Spec.Key)
		require.Contains(t, got.Rationale, "fallback selection due to error:")
	})

	t.Run("falls back on empty selection", func(t *testing.T) {
		sel := newSelector(t, `{"voices":[],"rationale":"none"}`, nil)

		got := sel.Select(ctx, "q", nil)
		require.Equal(t, "generalist", got.Picks[0].Spec.Key)
	})

	t.Run("caps the composition at max voices", func(t *testing.T) {
		content := `{"voices":[
			{"source":"adhoc","name":"A"},{"source":"adhoc","name":"B"},
			{"source":"adhoc","name":"C"},{"source":"adhoc","name":"D"},
			{"source":"adhoc","name":"E"},{"source":"adhoc","name":"F"},
			{"source":"adhoc","name":"G"}],"rationale":"many"}`
		sel := newSelector(t, content, nil)

		got := sel.Select(ctx, "q", nil)
		require.Len(t, got.Picks, 5)
	})
}

// ABOUTME: History trimming applied before conversion: cache marking, image retention
// ABOUTME: Both helpers mutate the history slice in place and are idempotent

package ai

// cacheBreakpoints is how many recent user turns get a cache marker; one
// provider-side breakpoint is left for the system prompt and tools.
const cacheBreakpoints = 3

// MarkCacheBreakpoints marks the last content block of each of the 3 most
// recent user turns as cache-eligible, and strips the stale marker from the
// next older user turn. Only one older turn can carry a stale marker per
// loop iteration, so the walk stops there. Re-applying is a no-op.
func MarkCacheBreakpoints(history []Message) {
	remaining := cacheBreakpoints
	for i := len(history) - 1; i >= 0; i-- {
		msg := &history[i]
		if msg.Role != RoleUser || len(msg.Content) == 0 {
			continue
		}
		last := &msg.Content[len(msg.Content)-1]
		if remaining > 0 {
			remaining--
			last.CacheControl = &CacheControl{Type: "ephemeral"}
			continue
		}
		last.CacheControl = nil
		break
	}
}

// FilterRecentImages removes all but the final keep tool_result images from
// the history, oldest first. Screenshots lose value as the conversation
// progresses. Removal happens in chunks of minRemoval so the provider's
// implicit prompt cache is invalidated less often. keep <= 0 keeps everything.
func FilterRecentImages(history []Message, keep, minRemoval int) {
	if keep <= 0 {
		return
	}
	if minRemoval <= 0 {
		minRemoval = 1
	}

	total := 0
	for _, msg := range history {
		for _, block := range msg.Content {
			if block.Type == ContentToolResult {
				total += countImages(block.Blocks)
			}
		}
	}

	toRemove := total - keep
	toRemove -= toRemove % minRemoval
	if toRemove <= 0 {
		return
	}

	for mi := range history {
		for bi := range history[mi].Content {
			block := &history[mi].Content[bi]
			if block.Type != ContentToolResult || len(block.Blocks) == 0 {
				continue
			}
			kept := block.Blocks[:0]
			for _, inner := range block.Blocks {
				if inner.Type == ContentImage && toRemove > 0 {
					toRemove--
					continue
				}
				kept = append(kept, inner)
			}
			block.Blocks = kept
		}
	}
}

func countImages(blocks []Content) int {
	n := 0
	for _, b := range blocks {
		if b.Type == ContentImage {
			n++
		}
	}
	return n
}

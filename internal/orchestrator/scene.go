// internal/orchestrator/scene.go
package orchestrator

import (
	"hash/fnv"
	"strconv"
)

var sceneCatalog = []string{
	"aurora", "tidepool", "lanterns", "orchard", "nebula", "harbor",
	"dunes", "glacier", "meadow", "canyon", "reef", "citadel",
}

// FallbackScene picks the locally drawn scene for a round. The choice depends
// only on the round and the scenes already shown, so both clients agree, and
// it avoids repeating a previous scene while the catalog has unused ones.
func FallbackScene(round int, previousSceneIDs []string) (sceneID string, seed int64) {
	h := fnv.New64a()
	h.Write([]byte(strconv.Itoa(round)))
	for _, id := range previousSceneIDs {
		h.Write([]byte{0})
		h.Write([]byte(id))
	}
	sum := h.Sum64()
	seed = int64(sum >> 1)

	used := make(map[string]bool, len(previousSceneIDs))
	for _, id := range previousSceneIDs {
		used[id] = true
	}
	start := int(sum % uint64(len(sceneCatalog)))
	for i := range sceneCatalog {
		id := sceneCatalog[(start+i)%len(sceneCatalog)]
		if !used[id] {
			return id, seed
		}
	}
	return sceneCatalog[start], seed
}

// Coherence for a round: the art starts literal and gets more abstract.
func Coherence(round int) float64 {
	const (
		first = 1.0
		step  = 0.1
		floor = 0.2
	)
	if round < 1 {
		return first
	}
	c := first - step*float64(round-1)
	if c < floor {
		return floor
	}
	return c
}

package prompt

import (
	"hash/fnv"
	"math/rand"

	"github.com/PAIR-code/deliberate-lab-sub006/experiment"
)

// seedFor derives the shuffle seed string from the configured scope. The
// same scope and id always yield the same ordering, so every evaluation of a
// shuffled group is reproducible.
func seedFor(config *experiment.ShuffleConfig, pctx *Context) string {
	switch config.Seed {
	case experiment.SeedSourceExperiment:
		return pctx.Experiment.ID
	case experiment.SeedSourceCohort:
		return pctx.CohortID
	case experiment.SeedSourceParticipant:
		return pctx.Profile.PublicID
	case experiment.SeedSourceCustom:
		return config.CustomSeed
	default:
		return config.CustomSeed
	}
}

// shuffleItems returns a copy of items in the order determined by seed. The
// generator is created per call; shuffles never share state, so evaluation
// order across groups cannot change any group's result.
func shuffleItems(items []experiment.PromptItem, seed string) []experiment.PromptItem {
	h := fnv.New64a()
	h.Write([]byte(seed))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	shuffled := make([]experiment.PromptItem, len(items))
	copy(shuffled, items)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled
}

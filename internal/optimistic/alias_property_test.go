package optimistic

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestAliasTableIsBijective(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("aliases are stable, unique and reversible", prop.ForAll(
		func(keys []int) bool {
			table := NewAliasTable()
			ids := make([]string, len(keys))
			for i, k := range keys {
				ids[i] = fmt.Sprintf("id-%d", k)
			}
			first := make(map[string]int64)
			seen := make(map[int64]string)
			for _, id := range ids {
				a := table.Alias(id)
				if prev, ok := first[id]; ok && prev != a {
					return false
				}
				if other, ok := seen[a]; ok && other != id {
					return false
				}
				first[id] = a
				seen[a] = id
				if back, ok := table.ID(a); !ok || back != id {
					return false
				}
			}
			return table.Len() == len(first)
		},
		gen.SliceOf(gen.IntRange(0, 6)),
	))

	properties.TestingRun(t)
}

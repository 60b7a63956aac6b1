package knock

import (
	"fmt"
	"strings"
)

// ExclusionSet collects the identifiers already present in the directory
func ExclusionSet(users []*RemoteUser) Set[string] {
	var ids = NewSet[string]()
	for _, u := range users {
		if len(u.Id) > 0 {
			ids.Add(u.Id)
		}
	}
	return ids
}

// ExclusionFilter renders the exclusion set as a NOT IN predicate on column,
// numbering its placeholders from firstArg. An empty set renders no predicate.
func ExclusionFilter(column string, ids Set[string], firstArg int) (fragment string, args []any) {
	if len(ids) == 0 {
		return
	}
	var keys = sortedKeys(ids)
	var placeholders = make([]string, 0, len(keys))
	for i, id := range keys {
		placeholders = append(placeholders, fmt.Sprintf("$%d", firstArg+i))
		args = append(args, id)
	}
	fragment = fmt.Sprintf("%s NOT IN (%s)", column, strings.Join(placeholders, ", "))
	return
}

package schema

// topologicalSort orders items so that every item comes after the items it
// depends on. Dependencies outside of `items` are ignored. On a circular
// dependency it returns the items unchanged and false.
func topologicalSort[T any](items []T, dependencies map[string][]string, getID func(T) string) ([]T, bool) {
	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[string]int, len(items))
	itemMap := make(map[string]T, len(items))
	for _, item := range items {
		itemMap[getID(item)] = item
	}

	sorted := make([]T, 0, len(items))
	var visit func(string) bool
	visit = func(id string) bool {
		switch state[id] {
		case visiting:
			return false
		case visited:
			return true
		}
		state[id] = visiting
		for _, dep := range dependencies[id] {
			if _, ok := itemMap[dep]; ok && dep != id {
				if !visit(dep) {
					return false
				}
			}
		}
		state[id] = visited
		sorted = append(sorted, itemMap[id])
		return true
	}

	for _, item := range items {
		if !visit(getID(item)) {
			return items, false
		}
	}
	return sorted, true
}

// sortTablesByDependencies orders tables so that referenced tables come first.
func sortTablesByDependencies(tables []*Table) []*Table {
	if len(tables) < 2 {
		return tables
	}
	dependencies := make(map[string][]string, len(tables))
	for _, table := range tables {
		for _, fk := range table.ForeignKeys {
			dependencies[normalizeName(table.Name)] = append(dependencies[normalizeName(table.Name)], normalizeName(fk.ReferencedTable))
		}
	}
	sorted, _ := topologicalSort(tables, dependencies, func(t *Table) string {
		return normalizeName(t.Name)
	})
	return sorted
}

package toposort

// SymbolTable interns node names as dense integer IDs.
type SymbolTable struct {
	strToID map[string]int
	idToStr []string
}

// NewSymbolTable creates an empty SymbolTable.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{strToID: make(map[string]int)}
}

// Intern returns the ID for name, assigning the next free ID on first use.
func (table *SymbolTable) Intern(name string) int {
	if id, ok := table.strToID[name]; ok {
		return id
	}

	id := len(table.idToStr)
	table.idToStr = append(table.idToStr, name)
	table.strToID[name] = id

	return id
}

// Lookup returns the ID for name without interning it.
func (table *SymbolTable) Lookup(name string) (int, bool) {
	id, ok := table.strToID[name]

	return id, ok
}

// Resolve returns the name for id, or "" for an unknown ID.
func (table *SymbolTable) Resolve(id int) string {
	if id < 0 || id >= len(table.idToStr) {
		return ""
	}

	return table.idToStr[id]
}

// Len returns the number of interned names.
func (table *SymbolTable) Len() int {
	return len(table.idToStr)
}

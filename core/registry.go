package core

// registry is an arena of items: the id is the slice index and ids are never reclaimed.
type registry struct {
	items []Item
}

func (r *registry) count() int {
	return len(r.items)
}

func (r *registry) allocate(it Item) ItemID {
	it.ID = ItemID(len(r.items))
	it.Minted = true
	r.items = append(r.items, it)
	return it.ID
}

// get returns a copy; callers mutate the copy and commit it with put.
func (r *registry) get(id ItemID) (Item, bool) {
	if uint64(id) >= uint64(len(r.items)) {
		return Item{}, false
	}
	it := r.items[id]
	return it, it.Minted
}

func (r *registry) put(it Item) {
	r.items[it.ID] = it
}

package cursormgr

// cursorContainer groups all entries sharing a namespace. Every cursor in the
// container carries the container's 32-bit id prefix. Containers are created
// on first registration for a namespace and erased together with their last
// entry. Guarded by the Manager mutex.
type cursorContainer struct {
	// prefix is the common upper half of every cursor id in this container.
	prefix uint32

	entries map[CursorID]*cursorEntry
}

// containerForNamespace finds or creates the container for a namespace,
// allocating a fresh unused prefix on creation.
// CALLER MUST HOLD m.mu.
func (m *Manager) containerForNamespace(namespace string) *cursorContainer {
	if c, ok := m.containers[namespace]; ok {
		return c
	}

	// Draw random prefixes until one is unused. Zero is skipped so that a
	// packed id can never be the reserved null id.
	var prefix uint32
	for {
		prefix = m.rand()
		if prefix == 0 {
			continue
		}
		if _, taken := m.prefixToNamespace[prefix]; !taken {
			break
		}
	}

	c := &cursorContainer{
		prefix:  prefix,
		entries: make(map[CursorID]*cursorEntry),
	}
	m.containers[namespace] = c
	m.prefixToNamespace[prefix] = namespace
	return c
}

// allocateCursorID draws random suffixes until the packed id is unused in
// the container. Suffix zero is retried.
// CALLER MUST HOLD m.mu.
func (c *cursorContainer) allocateCursorID(rand func() uint32) CursorID {
	for {
		suffix := rand()
		if suffix == 0 {
			continue
		}
		id := makeCursorID(c.prefix, suffix)
		if _, taken := c.entries[id]; !taken {
			return id
		}
	}
}

// eraseEntry removes the entry and, if that left the container empty, the
// container and its prefix mapping. Reports whether the container was erased.
// CALLER MUST HOLD m.mu.
func (m *Manager) eraseEntry(namespace string, id CursorID) (containerErased bool) {
	c, ok := m.containers[namespace]
	if !ok {
		panic("cursormgr: erasing entry from unknown namespace")
	}
	delete(c.entries, id)
	if len(c.entries) == 0 {
		delete(m.containers, namespace)
		delete(m.prefixToNamespace, c.prefix)
		containerErased = true
	}
	m.drained.Broadcast()
	return containerErased
}

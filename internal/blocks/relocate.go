package blocks

// AppendFileContent implements the cache-stability file-relocation
// algorithm from spec §4.5: live FileContent blocks are kept as a
// contiguous suffix at the tail of the stream, so invalidating one file's
// cache only forfeits cache for blocks at or after the first live
// FileContent block.
func (m *Manager) AppendFileContent(filepath, text string, originToolCallID string) {
	firstIdx := -1
	for i, b := range m.stream {
		if b.Kind == KindFileContent && !b.Deleted && b.Filepath == filepath {
			firstIdx = i
			break
		}
	}
	if firstIdx == -1 {
		m.append(Block{Kind: KindFileContent, Content: text, Filepath: filepath, OriginToolCall: originToolCallID})
		return
	}

	// Collect every live FileContent block from firstIdx to the end, in
	// order, tombstoning each as we go.
	var collected []Block
	for i := firstIdx; i < len(m.stream); i++ {
		b := m.stream[i]
		if b.Kind == KindFileContent && !b.Deleted {
			collected = append(collected, b.clone())
			m.stream[i].Deleted = true
		}
	}

	// Re-append every collected block whose filepath differs from the
	// target, preserving relative order.
	for _, b := range collected {
		if b.Filepath != filepath {
			m.append(Block{
				Kind:           KindFileContent,
				Content:        b.Content,
				Filepath:       b.Filepath,
				OriginToolCall: b.OriginToolCall,
			})
		}
	}

	// Finally append the target file with its new content; it now sits at
	// the tail.
	m.append(Block{Kind: KindFileContent, Content: text, Filepath: filepath, OriginToolCall: originToolCallID})
}

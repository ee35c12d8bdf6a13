package chat

// FormatHistory pairs messages two at a time in their original order as
// (user text, assistant text). A trailing unpaired message is emitted with an
// empty reply.
func FormatHistory(msgs []Message) [][2]string {
	pairs := make([][2]string, 0, (len(msgs)+1)/2)
	for i := 0; i < len(msgs); i += 2 {
		if i+1 < len(msgs) {
			pairs = append(pairs, [2]string{msgs[i].Content, msgs[i+1].Content})
			continue
		}
		pairs = append(pairs, [2]string{msgs[i].Content, ""})
	}
	return pairs
}

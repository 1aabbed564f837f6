package huestream

// Frame transformations applied by the stream splitter before forwarding to
// an upstream bridge. Both builders return fresh buffers: the source frame
// is also delivered to the local mirror path and must never be mutated.

// RewriteUUID returns the frame with the v2 entertainment UUID replaced by
// target. Frames that are not v2, are too short, or already carry the target
// UUID are returned unchanged (same slice).
func RewriteUUID(frame []byte, target string) []byte {
	if len(target) != UUIDEnd-UUIDStart || !IsV2(frame) {
		return frame
	}
	if string(frame[UUIDStart:UUIDEnd]) == target {
		return frame
	}
	out := make([]byte, len(frame))
	copy(out, frame[:UUIDStart])
	copy(out[UUIDStart:], target)
	copy(out[UUIDEnd:], frame[UUIDEnd:])
	return out
}

// RemapChannels rebuilds a v2 frame keeping only the records whose channel
// index appears in channelMap, rewriting each kept index to its mapped
// value. Record order follows the source order of kept indices. The 52-byte
// header is carried over verbatim. Frames that are not v2, or an empty map,
// pass through unchanged.
func RemapChannels(frame []byte, channelMap map[uint8]uint8) []byte {
	if len(channelMap) == 0 || !IsV2(frame) {
		return frame
	}

	out := make([]byte, headerLenV2, len(frame))
	copy(out, frame[:headerLenV2])

	for i := headerLenV2; i+recordLenV2 <= len(frame); i += recordLenV2 {
		mapped, ok := channelMap[frame[i]]
		if !ok {
			continue
		}
		out = append(out, mapped)
		out = append(out, frame[i+1:i+recordLenV2]...)
	}
	return out
}

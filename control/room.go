package control

import "sort"

// GlobalRoom is the default, unsynchronized chat room.
const GlobalRoom = "global"

// RoomKey derives the channel key for a private pair. The two user IDs are
// sorted first so both participants compute the same key no matter who
// initiates.
func RoomKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return "private_" + ids[0] + "_" + ids[1]
}

// IsPrivateRoom reports whether roomID names a synchronized pair channel.
func IsPrivateRoom(roomID string) bool {
	return len(roomID) > len("private_") && roomID[:len("private_")] == "private_"
}

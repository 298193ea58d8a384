package global

import (
	"hash/crc32"
)

// HashPartition maps a key onto one of numPartitions buckets.
func HashPartition(key string, numPartitions int) int32 {
	if numPartitions <= 0 {
		return 0
	}
	checksum := crc32.ChecksumIEEE([]byte(key))
	return int32(checksum % uint32(numPartitions))
}

// MessageEventKey keys the message event stream by room so one room's
// events stay on one partition in append order.
func MessageEventKey(roomID string) string {
	return "room-evt:" + roomID
}

// PresenceKey is the redis set holding a user's live connection ids.
func PresenceKey(userID string) string {
	return "im:presence:" + userID
}

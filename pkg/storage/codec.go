package storage

import (
	"encoding/json"
	"strconv"
)

// Values are JSON so the database stays inspectable with pebble tooling
func encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func decode(b []byte, v any) error {
	return json.Unmarshal(b, v)
}

func encodeUint(v uint64) []byte {
	return []byte(strconv.FormatUint(v, 10))
}

func decodeUint(b []byte) (uint64, error) {
	return strconv.ParseUint(string(b), 10, 64)
}

var flagSet = []byte{1}

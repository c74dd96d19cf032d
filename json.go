package adapters

import (
	jsoniter "github.com/json-iterator/go"
)

// json is the same drop-in json-iterator facade go-utcp uses internally, so
// arguments and results round-trip through an identical codec on both sides
// of the adapter.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

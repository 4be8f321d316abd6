package storage

import (
	"github.com/vmihailenco/msgpack/v5"
)

// DBRecord wraps a stored value with a per-key version counter.
type DBRecord struct {
	Value     []byte `msgpack:"value"`
	Version   uint64 `msgpack:"version"`
	UpdatedAt int64  `msgpack:"updatedAt"` // Unix milliseconds
}

func (r *DBRecord) MarshalBinary() (data []byte, err error) {
	type alias DBRecord
	return msgpack.Marshal((*alias)(r))
}

func (r *DBRecord) UnmarshalBinary(data []byte) error {
	type alias DBRecord
	return msgpack.Unmarshal(data, (*alias)(r))
}

// next builds the record that replaces r with value.
func (r *DBRecord) next(value []byte, now int64) *DBRecord {
	return &DBRecord{
		Value:     value,
		Version:   r.Version + 1,
		UpdatedAt: now,
	}
}

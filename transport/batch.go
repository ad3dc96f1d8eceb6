package transport

import "encoding/json"

// Batches travel on the wire as a JSON array of the contained events' wire
// forms, so the log accepts or rejects all records together and every
// implementation agrees on record granularity.

// EncodeBatch packs marshaled event bytes into a single batch payload.
func EncodeBatch(records [][]byte) ([]byte, error) {
	raws := make([]json.RawMessage, len(records))
	for i, r := range records {
		raws[i] = r
	}
	return json.Marshal(raws)
}

// DecodeBatch unpacks a batch payload into its individual records.
func DecodeBatch(batch []byte) ([][]byte, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(batch, &raws); err != nil {
		return nil, err
	}
	records := make([][]byte, len(raws))
	for i, r := range raws {
		records[i] = r
	}
	return records, nil
}

// EncodedBatchSize returns the wire size of a batch holding records of the
// given sizes, without building it.
func EncodedBatchSize(recordSizes []int) int {
	size := 2 // brackets
	for i, s := range recordSizes {
		if i > 0 {
			size++ // comma
		}
		size += s
	}
	return size
}

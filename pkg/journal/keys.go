package journal

import "fmt"

// Key layout
//
//	o:<started unix nanos, 20 digits>:<id>  -> JSON Record
//	i:<id>                                  -> record key (for Get)
//
// Zero-padded start times make lexical key order chronological, so the
// newest records are found by a reverse prefix scan.
const (
	prefixOperation = "o:"
	prefixIndex     = "i:"
)

func keyOperation(r *Record) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", prefixOperation, r.Started.UnixNano(), r.ID))
}

func keyIndex(id string) []byte {
	return []byte(prefixIndex + id)
}

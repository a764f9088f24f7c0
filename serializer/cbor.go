package serializer

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/hadi77ir/go-catalog/pagination"
	"github.com/hadi77ir/go-catalog/query"
)

// CBOR renders the JSON document shape in deterministic CBOR.
type CBOR struct {
	mode cbor.EncMode
}

// NewCBOR creates a CBOR serializer. Times are encoded as RFC 3339 strings.
func NewCBOR() *CBOR {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	mode, err := opts.EncMode()
	if err != nil {
		// the options above are static
		panic(err)
	}
	return &CBOR{mode: mode}
}

func (s *CBOR) ContentType() string { return "application/cbor" }

func (s *CBOR) SerializeCatalog(records []query.Record, info *pagination.Info) ([]byte, error) {
	return s.marshal(newCatalogPage(records, info))
}

func (s *CBOR) SerializeDataset(record query.Record) ([]byte, error) {
	return s.marshal(record)
}

func (s *CBOR) marshal(v interface{}) ([]byte, error) {
	data, err := s.mode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode cbor: %w", err)
	}
	return data, nil
}

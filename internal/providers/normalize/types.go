package normalize

import "context"

// NormalizedAddress is the structured form of a raw Indian address.
type NormalizedAddress struct {
	Line1      string  `json:"line1"`
	Line2      string  `json:"line2,omitempty"`
	Locality   string  `json:"locality,omitempty"`
	City       string  `json:"city"`
	District   string  `json:"district,omitempty"`
	State      string  `json:"state"`
	PINCode    string  `json:"pin_code"`
	Country    string  `json:"country"`
	Confidence float64 `json:"confidence"`
}

// Normalizer turns free-form address text into a NormalizedAddress. It may
// fail or time out; callers own the refund semantics around it.
type Normalizer interface {
	Normalize(ctx context.Context, rawAddress string) (*NormalizedAddress, error)
}

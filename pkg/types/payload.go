package types

// PayloadTypeVolume is the fixed discriminator for water/volume meters,
// the only meter family this system normalizes.
const PayloadTypeVolume = "W"

// NormalizedPoint is one canonical time-series sample: local civil time
// and the cumulative volume as a fixed 3-decimal string.
type NormalizedPoint struct {
	DT  string `json:"dt"`
	Val string `json:"val"`
}

// PayloadHeader identifies the meter in the billing API's terms. MSN is
// the meter serial number when an identity has been observed, otherwise
// the message-level device id.
type PayloadHeader struct {
	MSN  string `json:"msn"`
	Type string `json:"type"`
}

type PayloadBody struct {
	Data []NormalizedPoint `json:"data"`
}

// OutputPayload is the wire-level record handed to the delivery
// collaborator, one per input message that yields output.
type OutputPayload struct {
	Header  PayloadHeader `json:"header"`
	Payload PayloadBody   `json:"payload"`
}

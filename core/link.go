package core

// LinkQuality is a coarse, human-readable classification of a link by its
// margin over receiver sensitivity.
type LinkQuality string

const (
	LinkQualityDown      LinkQuality = "down"
	LinkQualityPoor      LinkQuality = "poor"
	LinkQualityFair      LinkQuality = "fair"
	LinkQualityGood      LinkQuality = "good"
	LinkQualityExcellent LinkQuality = "excellent"
)

// LinkResult is everything a channel reports for one transmitter/receiver
// pair at one instant.
type LinkResult struct {
	TransmitterID string `csv:"tx_id"`
	ReceiverID    string `csv:"rx_id"`

	DistanceM        float64 `csv:"distance_m"`
	FrequencyHz      float64 `csv:"frequency_hz"`
	PathLossDb       float64 `csv:"path_loss_db"`
	DelaySeconds     float64 `csv:"delay_s"`
	FadingPower      float64 `csv:"fading_power"`
	FadingDb         float64 `csv:"fading_db"`
	ReceivedPowerDbm float64 `csv:"rx_power_dbm"`
	SensitivityDbm   float64 `csv:"sensitivity_dbm"`
	MarginDb         float64 `csv:"margin_db"`

	// Viable is true when the received power reaches the sensitivity.
	Viable       bool        `csv:"viable"`
	Quality      LinkQuality `csv:"quality"`
	Obstructions int         `csv:"obstructions"`
}

// classifyLinkByMargin buckets the margin over sensitivity. Thresholds
// are soft and for display.
func classifyLinkByMargin(margin float64) LinkQuality {
	switch {
	case margin < 0:
		return LinkQualityDown
	case margin < 5:
		return LinkQualityPoor
	case margin < 10:
		return LinkQualityFair
	case margin < 20:
		return LinkQualityGood
	default:
		return LinkQualityExcellent
	}
}

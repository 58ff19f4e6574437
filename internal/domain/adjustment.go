package domain

import (
	"fmt"
	"strings"
)

const (
	AdjustmentMin     = 0
	AdjustmentMax     = 200
	AdjustmentDefault = 100
)

type Channel string

const (
	ChannelBrightness Channel = "brightness"
	ChannelContrast   Channel = "contrast"
	ChannelSaturation Channel = "saturation"
)

// Channels lists the adjustment channels in the order they are applied.
var Channels = []Channel{ChannelBrightness, ChannelContrast, ChannelSaturation}

func ParseChannel(s string) (Channel, error) {
	switch Channel(strings.ToLower(strings.TrimSpace(s))) {
	case ChannelBrightness:
		return ChannelBrightness, nil
	case ChannelContrast:
		return ChannelContrast, nil
	case ChannelSaturation:
		return ChannelSaturation, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownChannel, s)
	}
}

// AdjustmentSettings are CSS-filter percentages: 100 leaves the channel
// untouched, 0 is the minimum and 200 doubles it.
type AdjustmentSettings struct {
	Brightness int `json:"brightness"`
	Contrast   int `json:"contrast"`
	Saturation int `json:"saturation"`
}

func DefaultAdjustments() AdjustmentSettings {
	return AdjustmentSettings{
		Brightness: AdjustmentDefault,
		Contrast:   AdjustmentDefault,
		Saturation: AdjustmentDefault,
	}
}

func (s AdjustmentSettings) IsIdentity() bool {
	return s == DefaultAdjustments()
}

func (s AdjustmentSettings) Get(ch Channel) int {
	switch ch {
	case ChannelBrightness:
		return s.Brightness
	case ChannelContrast:
		return s.Contrast
	case ChannelSaturation:
		return s.Saturation
	}
	return AdjustmentDefault
}

// With returns a copy of s with only ch changed.
func (s AdjustmentSettings) With(ch Channel, value int) (AdjustmentSettings, error) {
	if value < AdjustmentMin || value > AdjustmentMax {
		return s, fmt.Errorf("%w: %s=%d", ErrAdjustmentOutOfRange, ch, value)
	}
	switch ch {
	case ChannelBrightness:
		s.Brightness = value
	case ChannelContrast:
		s.Contrast = value
	case ChannelSaturation:
		s.Saturation = value
	default:
		return s, fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
	}
	return s, nil
}

func (s AdjustmentSettings) Validate() error {
	for _, ch := range Channels {
		if _, err := s.With(ch, s.Get(ch)); err != nil {
			return err
		}
	}
	return nil
}

// CSSFilter renders the settings as a CSS filter value. The order matches
// the order the renderer applies them in.
func (s AdjustmentSettings) CSSFilter() string {
	return fmt.Sprintf("brightness(%d%%) contrast(%d%%) saturate(%d%%)", s.Brightness, s.Contrast, s.Saturation)
}

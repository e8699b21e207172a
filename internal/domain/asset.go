// Package domain holds the types shared by the composition pipeline stages:
// asset references, layout and encoding configuration, the final artifact,
// and the error taxonomy the HTTP layer maps to status codes.
package domain

import "strings"

// AssetKind identifies the role a remote asset plays in the composition.
type AssetKind string

const (
	// AssetAudio is the soundtrack; its duration drives the video duration.
	AssetAudio AssetKind = "audio"
	// AssetForeground is the image scaled and centered on the canvas.
	AssetForeground AssetKind = "foreground"
	// AssetBackground is the image stretched to fill the canvas.
	AssetBackground AssetKind = "background"
	// AssetFrame is the composed canvas written for the encoder.
	AssetFrame AssetKind = "frame"
)

// AssetReference points at a remote asset to retrieve.
type AssetReference struct {
	URL  string
	Kind AssetKind
}

// AssetSet is the three references one render needs.
type AssetSet struct {
	Audio      AssetReference
	Foreground AssetReference
	Background AssetReference
}

// NewAssetSet builds an AssetSet from raw URLs, tagging each with its kind.
func NewAssetSet(audioURL, foregroundURL, backgroundURL string) AssetSet {
	return AssetSet{
		Audio:      AssetReference{URL: strings.TrimSpace(audioURL), Kind: AssetAudio},
		Foreground: AssetReference{URL: strings.TrimSpace(foregroundURL), Kind: AssetForeground},
		Background: AssetReference{URL: strings.TrimSpace(backgroundURL), Kind: AssetBackground},
	}
}

// Refs returns the references in fetch order.
func (s AssetSet) Refs() []AssetReference {
	return []AssetReference{s.Audio, s.Foreground, s.Background}
}

// Validate reports the first missing reference as a ValidationError.
// The field names match the JSON request body.
func (s AssetSet) Validate() error {
	fields := []struct {
		name string
		ref  AssetReference
	}{
		{"audio_url", s.Audio},
		{"image_url", s.Foreground},
		{"bg_url", s.Background},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.ref.URL) == "" {
			return &ValidationError{Field: f.name, Message: "missing parameter"}
		}
	}
	return nil
}

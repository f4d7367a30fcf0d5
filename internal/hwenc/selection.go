// Package hwenc picks an H.264 encoder element by vendor priority,
// probing a fixed list of element names (see candidates) for availability
// at construction time. The GStreamer registry is not enumerated, so an
// encoder element outside that list is never selected.
//
// Selection here is advisory: it drives logging and the encoder worker's
// choice of which element name to instantiate, but the media pipeline does
// not hard-bind to a vendor-specific element beyond that choice.
package hwenc

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/tinyzimmer/go-gst/gst"
)

// Vendor classifies an encoder candidate by the hardware vendor whose
// plugin registers it.
type Vendor int

const (
	VendorNVIDIA Vendor = iota
	VendorIntel
	VendorAMD
	VendorOther
	VendorSoftware
)

func (v Vendor) String() string {
	switch v {
	case VendorNVIDIA:
		return "nvidia"
	case VendorIntel:
		return "intel"
	case VendorAMD:
		return "amd"
	case VendorOther:
		return "other"
	case VendorSoftware:
		return "software"
	default:
		return "unknown"
	}
}

// Candidate is one named encoder element and the vendor priority class it
// falls into.
type Candidate struct {
	ElementName string
	Vendor      Vendor
}

// candidates is the fixed probe list, ordered NVIDIA, Intel, AMD, other
// H.264-named, software fallback.
var candidates = []Candidate{
	{"nvh264enc", VendorNVIDIA},
	{"vaapih264enc", VendorIntel},
	{"qsvh264enc", VendorIntel},
	{"amfh264enc", VendorAMD},
	{"v4l2h264enc", VendorOther},
	{"x264enc", VendorSoftware},
}

// h264NameTokens are the friendly-name substrings an encoder's name must
// contain (case-insensitive) to be considered at all.
var h264NameTokens = []string{"h264", "h.264", "avc", "x264"}

func matchesH264Name(elementName string) bool {
	lower := strings.ToLower(elementName)
	for _, tok := range h264NameTokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}

// Selection is the outcome of probing: the chosen element name and vendor,
// plus whether the choice fell back to software because no hardware
// encoder was available.
type Selection struct {
	ElementName string
	Vendor      Vendor
	Fallback    bool
}

// Select probes every candidate element with gst.NewElement, in priority
// order, and returns the first one that can be instantiated. It first
// restricts itself to hardware vendors; if none are available, it retries
// allowing the software encoder.
func Select() (Selection, error) {
	gst.Init(nil)

	if sel, ok := probe(false); ok {
		return sel, nil
	}
	if sel, ok := probe(true); ok {
		return sel, nil
	}
	return Selection{}, fmt.Errorf("hwenc: no H.264 encoder element available")
}

func probe(allowSoftware bool) (Selection, bool) {
	for _, c := range candidates {
		if !allowSoftware && c.Vendor == VendorSoftware {
			continue
		}
		if !matchesH264Name(c.ElementName) {
			continue
		}
		elem, err := gst.NewElement(c.ElementName)
		if err != nil {
			continue
		}
		elem.SetState(gst.StateNull)

		slog.Info("hwenc: selected encoder", "element", c.ElementName, "vendor", c.Vendor.String())
		return Selection{ElementName: c.ElementName, Vendor: c.Vendor, Fallback: allowSoftware}, true
	}
	return Selection{}, false
}

package capture

import (
	"fmt"
	"runtime"

	"github.com/tinyzimmer/go-gst/gst"
)

// sourceElement returns the platform screen-capture source element name
// for runtime.GOOS, one per desktop duplication API.
func sourceElement() (name string, props map[string]interface{}) {
	switch runtime.GOOS {
	case "windows":
		return "dxgiscreencapsrc", map[string]interface{}{"show-cursor": true}
	case "darwin":
		return "avfvideosrc", map[string]interface{}{"capture-screen": true}
	default:
		return "ximagesrc", map[string]interface{}{"use-damage": false}
	}
}

// gdiFallbackElement is used when dxgiscreencapsrc cannot be instantiated
// (older Windows, no DXGI desktop duplication API available).
const gdiFallbackElement = "gdiscreencapsrc"

// buildSourceElement instantiates the platform source, falling back from
// dxgiscreencapsrc to gdiscreencapsrc on Windows when DXGI duplication is
// unavailable.
func buildSourceElement() (*gst.Element, error) {
	name, props := sourceElement()

	elem, err := gst.NewElement(name)
	if err != nil && name == "dxgiscreencapsrc" {
		elem, err = gst.NewElement(gdiFallbackElement)
		props = map[string]interface{}{"show-cursor": true}
	}
	if err != nil {
		return nil, fmt.Errorf("capture: create source element: %w", err)
	}

	for k, v := range props {
		elem.SetProperty(k, v)
	}
	return elem, nil
}

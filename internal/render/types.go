// Package render provides an HTTP client for the external slide conversion service.
// The service accepts a whole presentation package, renders every slide to an
// image and exposes one download locator per page.
package render

// Conversion is the result of submitting a package for rendering.
type Conversion struct {
	// PageCount is the number of slides the converter rendered.
	PageCount int
	// ImageLocators holds one download locator per page, in page order.
	// A locator is either a path relative to the converter base URL or an absolute URL.
	ImageLocators []string
}

// Locator returns the download locator of a 1-based page, if the converter supplied one.
func (c Conversion) Locator(page int) (string, bool) {
	if page < 1 || page > len(c.ImageLocators) {
		return "", false
	}
	loc := c.ImageLocators[page-1]
	return loc, loc != ""
}

// convertResponse represents the response from the converter's /convert endpoint.
type convertResponse struct {
	TotalPages        int      `json:"total_pages"`
	ImageDownloadURLs []string `json:"image_download_urls"`
}

// errorResponse represents the error body returned by the converter.
type errorResponse struct {
	Error string `json:"error"`
}

package utils

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// Fetch downloads the resource found at uri and returns its content.
func Fetch(uri string) ([]byte, error) {
	res, err := httpClient.Get(uri)
	if err != nil {
		return nil, fmt.Errorf("unable to download file from URI: %s: %w", uri, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unable to download file from URI: %s, status %v", uri, res.Status)
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("unable to read response body: %w", err)
	}
	return data, nil
}

// ReadSource returns the content of src, which might be an url,
// a local file or "-" for the standard input.
func ReadSource(src string) ([]byte, error) {
	switch {
	case src == "-":
		return io.ReadAll(os.Stdin)
	case IsValidUrl(src):
		return Fetch(src)
	default:
		return os.ReadFile(src)
	}
}

// IsValidUrl tests a string to determine if it is a well-structured url or not.
func IsValidUrl(uri string) bool {
	_, err := url.ParseRequestURI(uri)
	if err != nil {
		return false
	}

	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}

	return true
}

// DetectContentType sniffs the MIME type of data.
// It always returns a valid content-type, "application/octet-stream" if no others seemed to match.
func DetectContentType(data []byte) string {
	// Only the first 512 bytes are used to sniff the content type.
	if len(data) > 512 {
		data = data[:512]
	}
	return http.DetectContentType(data)
}
